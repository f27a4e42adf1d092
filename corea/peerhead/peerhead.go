// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package peerhead implements the per-peer head-location state machine: an
// exponential/binary "hunt" search that locates a peer's canonical head
// without knowing its height in advance, then tracks it as the chain grows.
package peerhead

import (
	"context"
	"time"

	"github.com/luxfi/snapsync/log"
)

// Tuning constants, non-negotiable per spec §4.3.
const (
	LockedMinReply         = 8
	LockedQueryOverlap     = 4
	LockedQuerySize        = 192
	HuntQuerySize          = 16
	HuntForwardExpandShift = 4
	HuntBackwardExpandShift = 1
)

// Mode is the tracker's current phase. Only the fields meaningful to the
// current mode are populated; see Tracker.State.
type Mode int

const (
	ModeOnlyHash Mode = iota
	ModeLocked
	ModeHuntForward
	ModeHuntBackward
	ModeHuntRange
	ModeHuntRangeFinal
)

func (m Mode) String() string {
	switch m {
	case ModeOnlyHash:
		return "OnlyHash"
	case ModeLocked:
		return "Locked"
	case ModeHuntForward:
		return "HuntForward"
	case ModeHuntBackward:
		return "HuntBackward"
	case ModeHuntRange:
		return "HuntRange"
	case ModeHuntRangeFinal:
		return "HuntRangeFinal"
	default:
		return "Unknown"
	}
}

// State is a tagged variant over Mode: only the fields relevant to the
// current mode are authoritative (per spec §9's "state machine with
// mode-dependent fields" design note -- BestNumber is meaningful only in
// Locked, Low/High/Step only in the Hunt* modes).
type State struct {
	Mode Mode

	BestNumber uint64
	BestHash   [32]byte

	Low  uint64
	High uint64
	Step uint64
}

// HeaderMeta is the minimal shape of a GetBlockHeaders reply item this
// package needs; the full header body is an external collaborator's concern.
type HeaderMeta struct {
	Number uint64
	Hash   [32]byte
}

// Peer is the external collaborator a Tracker drives. Implementations wrap
// the real eth/66 wire protocol; tests use a simulated peer.
type Peer interface {
	// GetBlockHeadersByNumber requests count headers starting at start,
	// skipping skip between each, in forward or reverse order.
	GetBlockHeadersByNumber(ctx context.Context, start uint64, count, skip int, reverse bool) ([]HeaderMeta, error)
	// GetBlockHeadersByHash is the OnlyHash-mode variant.
	GetBlockHeadersByHash(ctx context.Context, start [32]byte, count, skip int, reverse bool) ([]HeaderMeta, error)
}

// Tracker runs the head-location state machine for a single peer. At most
// one GetBlockHeaders call is ever in flight; a second caller contending for
// it sleeps 500ms and returns, per spec §4.3's concurrency note.
type Tracker struct {
	peer  Peer
	state State

	inFlight chan struct{} // capacity 1, used as a non-blocking mutex
}

// NewOnlyHash starts a tracker in OnlyHash mode, following a peer by the hash
// of the last block we ourselves believe is canonical.
func NewOnlyHash(peer Peer) *Tracker {
	return &Tracker{peer: peer, state: State{Mode: ModeOnlyHash}, inFlight: make(chan struct{}, 1)}
}

// NewHuntForward starts a tracker hunting forward from a known floor.
func NewHuntForward(peer Peer, low uint64) *Tracker {
	return &Tracker{peer: peer, state: State{Mode: ModeHuntForward, Low: low, Step: HuntQuerySize}, inFlight: make(chan struct{}, 1)}
}

func (t *Tracker) State() State { return t.state }

// tryAcquire implements the single-in-flight-request gate: it returns false
// (after sleeping 500ms) if another call already holds the slot.
func (t *Tracker) tryAcquire(ctx context.Context) bool {
	select {
	case t.inFlight <- struct{}{}:
		return true
	default:
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
		}
		return false
	}
}

func (t *Tracker) release() { <-t.inFlight }

// Advance runs one round-trip of the state machine, issuing exactly one
// GetBlockHeaders call (or none, if the in-flight gate is contended) and
// updating t.state accordingly.
func (t *Tracker) Advance(ctx context.Context) error {
	if !t.tryAcquire(ctx) {
		return nil
	}
	defer t.release()

	switch t.state.Mode {
	case ModeLocked:
		return t.advanceLocked(ctx)
	case ModeOnlyHash:
		return t.advanceOnlyHash(ctx)
	case ModeHuntForward:
		return t.advanceHuntForward(ctx)
	case ModeHuntBackward:
		return t.advanceHuntBackward(ctx)
	case ModeHuntRange:
		return t.advanceHuntRange(ctx)
	case ModeHuntRangeFinal:
		return t.advanceHuntRangeFinal(ctx)
	default:
		return nil
	}
}

func (t *Tracker) setLocked(number uint64, hash [32]byte) {
	t.state = State{Mode: ModeLocked, BestNumber: number, BestHash: hash}
}

func (t *Tracker) advanceLocked(ctx context.Context) error {
	best := t.state.BestNumber
	start := uint64(0)
	if best > LockedQueryOverlap {
		start = best - LockedQueryOverlap
	}
	hdrs, err := t.peer.GetBlockHeadersByNumber(ctx, start, LockedQuerySize, 0, false)
	if err != nil {
		return err
	}
	if len(hdrs) > 0 && len(hdrs) < LockedMinReply && !hasGap(hdrs) {
		if len(hdrs) > 0 {
			t.setLocked(hdrs[len(hdrs)-1].Number, hdrs[len(hdrs)-1].Hash)
		}
		log.Debug("peerhead: confirmed locked head", "number", t.state.BestNumber)
		return nil
	}
	if len(hdrs) == 0 {
		if start <= best {
			lowestAbsent := start
			t.state = State{Mode: ModeHuntBackward, Low: 0, High: lowestAbsent, Step: HuntQuerySize}
			log.Debug("peerhead: reorg detected", "lowestAbsent", lowestAbsent)
			return nil
		}
	}
	highest := hdrs[len(hdrs)-1].Number
	t.state = State{Mode: ModeHuntForward, Low: highest, Step: HuntQuerySize}
	return nil
}

func hasGap(hdrs []HeaderMeta) bool {
	for i := 1; i < len(hdrs); i++ {
		if hdrs[i].Number != hdrs[i-1].Number+1 {
			return true
		}
	}
	return false
}

func (t *Tracker) advanceOnlyHash(ctx context.Context) error {
	hdrs, err := t.peer.GetBlockHeadersByHash(ctx, t.state.BestHash, LockedQuerySize, 0, false)
	if err != nil {
		return err
	}
	if len(hdrs) == 0 {
		t.state = State{Mode: ModeHuntForward, Low: 0, Step: HuntQuerySize}
		return nil
	}
	t.setLocked(hdrs[len(hdrs)-1].Number, hdrs[len(hdrs)-1].Hash)
	return nil
}

// advanceHuntForward probes st.Low+st.Step, the next candidate floor:
// presence moves Low up to the probe and doubles Step (exponential search
// away from a known-present point); absence means the head lies in
// (st.Low, probe], so it hands off to HuntRange to bisect that bound.
func (t *Tracker) advanceHuntForward(ctx context.Context) error {
	st := t.state
	probe := st.Low + st.Step
	hdrs, err := t.peer.GetBlockHeadersByNumber(ctx, probe, 1, 0, false)
	if err != nil {
		return err
	}
	if len(hdrs) == 0 {
		t.state = State{Mode: ModeHuntRange, Low: st.Low, High: probe, Step: st.Step}
		return t.maybeFallThrough()
	}
	newLow := hdrs[0].Number
	newStep := st.Step << HuntForwardExpandShift
	if newStep >= fullRangeOverQuery(newLow) {
		t.state = State{Mode: ModeHuntRange, Low: newLow, High: newLow + newStep, Step: newStep}
		return t.maybeFallThrough()
	}
	t.state = State{Mode: ModeHuntForward, Low: newLow, Step: newStep}
	return nil
}

func (t *Tracker) advanceHuntBackward(ctx context.Context) error {
	st := t.state
	probe := st.High
	hdrs, err := t.peer.GetBlockHeadersByNumber(ctx, probe, 1, 0, false)
	if err != nil {
		return err
	}
	newStep := st.Step << HuntBackwardExpandShift
	if len(hdrs) == 0 {
		if probe == 0 {
			t.setLocked(0, [32]byte{})
			return nil
		}
		nextHigh := uint64(0)
		if probe > newStep {
			nextHigh = probe - newStep
		}
		t.state = State{Mode: ModeHuntBackward, Low: st.Low, High: nextHigh, Step: newStep}
		return nil
	}
	t.state = State{Mode: ModeHuntRange, Low: probe, High: st.High, Step: newStep}
	return t.maybeFallThrough()
}

func fullRangeOverQuery(base uint64) uint64 {
	// A permissive ceiling on the assumed chain length; real deployments
	// would derive this from a genesis-relative estimate. Spec §4.3 leaves
	// the exact full-range estimate to the implementation; LockedQuerySize
	// multiples give the expected O(log N) convergence.
	return (base + 1) * LockedQuerySize
}

func (t *Tracker) maybeFallThrough() error {
	st := t.state
	if st.High > st.Low && st.High-st.Low < HuntQuerySize {
		t.state = State{Mode: ModeHuntRangeFinal, Low: st.Low, High: st.High, Step: st.Step}
	}
	return nil
}

func (t *Tracker) advanceHuntRange(ctx context.Context) error {
	st := t.state
	if st.High <= st.Low+1 {
		t.setLocked(st.Low, [32]byte{})
		return nil
	}
	width := st.High - st.Low - 1
	maxStep := width / HuntQuerySize
	if maxStep == 0 {
		t.state = State{Mode: ModeHuntRangeFinal, Low: st.Low, High: st.High, Step: st.Step}
		return t.advanceHuntRangeFinal(ctx)
	}
	skip := maxStep - 1
	center := st.Low + (width/2)
	hdrs, err := t.peer.GetBlockHeadersByNumber(ctx, center, HuntQuerySize, int(skip), false)
	if err != nil {
		return err
	}
	if len(hdrs) == 0 {
		t.state = State{Mode: ModeHuntRange, Low: st.Low, High: center, Step: st.Step}
		return t.maybeFallThrough()
	}
	highest := hdrs[len(hdrs)-1].Number
	if highest >= st.High {
		t.state = State{Mode: ModeHuntRange, Low: center, High: st.High, Step: st.Step}
	} else {
		t.state = State{Mode: ModeHuntRange, Low: highest, High: st.High, Step: st.Step}
	}
	return t.maybeFallThrough()
}

func (t *Tracker) advanceHuntRangeFinal(ctx context.Context) error {
	st := t.state
	before := uint64(LockedQuerySize / 2)
	start := uint64(0)
	if st.Low > before {
		start = st.Low - before
	}
	hdrs, err := t.peer.GetBlockHeadersByNumber(ctx, start, LockedQuerySize, 0, false)
	if err != nil {
		return err
	}
	if len(hdrs) == 0 {
		t.setLocked(st.Low, [32]byte{})
		return nil
	}
	last := hdrs[len(hdrs)-1]
	t.setLocked(last.Number, last.Hash)
	return nil
}
