// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package scheduler implements the buddy-pool that runs each peer's
// single/multi/pool-mode lifecycle and coordinates pivot hand-off between
// peers, per spec §4.7.
package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/snapsync/corea/pivot"
	"github.com/luxfi/snapsync/log"
)

// BuddyMode is the scheduler-wide mode controlling which peers may act.
type BuddyMode int

const (
	// SingleMode: at most one peer runs RunSingle at a time, used to
	// negotiate a new pivot.
	SingleMode BuddyMode = iota
	// MultiMode: all peers run RunMulti concurrently.
	MultiMode
	// PoolMode: a global barrier applying a hook (e.g. resetting all envs)
	// before returning to MultiMode.
	PoolMode
)

// Buddy is a per-peer worker task. Implementations close over a
// fetcher.Worker/heal.Healer/peerhead.Tracker; the scheduler only needs the
// lifecycle surface below.
type Buddy interface {
	PeerID() string
	RunSingle(ctx context.Context) error
	RunMulti(ctx context.Context) error
}

// PoolHook runs once, exclusively, when the scheduler enters PoolMode --
// e.g. to reset all pivot environments on a coverage milestone.
type PoolHook func(ctx context.Context, mgr *pivot.Manager) error

// Scheduler runs the buddy pool. Not safe for concurrent calls to Tick;
// AddBuddy/RemoveBuddy may be called from other goroutines.
type Scheduler struct {
	mgr *pivot.Manager

	mu      sync.Mutex
	buddies map[string]Buddy
	mode    BuddyMode

	multiOk  bool
	poolMode bool

	stopped bool

	onPool PoolHook
}

func New(mgr *pivot.Manager, onPool PoolHook) *Scheduler {
	return &Scheduler{mgr: mgr, buddies: make(map[string]Buddy), mode: SingleMode, onPool: onPool}
}

func (s *Scheduler) AddBuddy(b Buddy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buddies[b.PeerID()] = b
}

func (s *Scheduler) RemoveBuddy(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buddies, peerID)
}

// Stop sets the stop flag; buddies observe it at their next suspension point
// and exit without further mutation (spec §5).
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// EnterMultiMode flips the scheduler-wide flag a single-mode negotiation sets
// once a pivot has been adopted, letting all buddies fan out.
func (s *Scheduler) EnterMultiMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.multiOk = true
	s.mode = MultiMode
}

// EnterPoolMode requests a barrier on the next Tick.
func (s *Scheduler) EnterPoolMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolMode = true
}

// Tick runs one scheduling round according to the current mode.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.mu.Lock()
	mode := s.mode
	poolMode := s.poolMode
	stopped := s.stopped
	s.mu.Unlock()

	if stopped {
		return nil
	}

	if poolMode {
		return s.runPool(ctx)
	}

	switch mode {
	case SingleMode:
		return s.runSingle(ctx)
	case MultiMode:
		return s.runMulti(ctx)
	default:
		return nil
	}
}

func (s *Scheduler) snapshotBuddies() []Buddy {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Buddy, 0, len(s.buddies))
	for _, b := range s.buddies {
		out = append(out, b)
	}
	return out
}

// runSingle picks one buddy (deterministically, the lexicographically first
// peer ID, for reproducible tests) to negotiate a pivot.
func (s *Scheduler) runSingle(ctx context.Context) error {
	buddies := s.snapshotBuddies()
	if len(buddies) == 0 {
		return nil
	}
	chosen := buddies[0]
	for _, b := range buddies[1:] {
		if b.PeerID() < chosen.PeerID() {
			chosen = b
		}
	}
	if err := chosen.RunSingle(ctx); err != nil {
		log.Debug("scheduler: single-mode buddy failed", "peer", chosen.PeerID(), "err", err)
		return err
	}
	s.EnterMultiMode()
	return nil
}

func (s *Scheduler) runMulti(ctx context.Context) error {
	buddies := s.snapshotBuddies()
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range buddies {
		b := b
		g.Go(func() error {
			if s.Stopped() {
				return nil
			}
			if err := b.RunMulti(gctx); err != nil {
				log.Debug("scheduler: buddy error", "peer", b.PeerID(), "err", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// runPool applies the configured hook as an exclusive barrier, then returns
// to MultiMode.
func (s *Scheduler) runPool(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		s.poolMode = false
		s.mode = MultiMode
		s.mu.Unlock()
	}()
	if s.onPool == nil {
		return nil
	}
	return s.onPool(ctx, s.mgr)
}
