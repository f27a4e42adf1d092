// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
//
// This file is a derived work, generalizing the nested-index design of
// spec.md from the teacher's single-list TxPool aggregator shape
// (core/txpool/txpool.go): a single owning tasklet, sentinel errors, and
// metrics gauges, now fronting four cross-consistent indexes instead of one
// flat list.
// See the file LICENSE for licensing terms.

// Package txpool implements the transactional multi-index mempool of
// spec §3/§4.8/§4.9: every item is simultaneously indexed by (sender,
// nonce), by (status, sender, nonce), by (effective-tip, nonce), and by
// gas-tip-cap, kept consistent under insert/delete and under a base-fee
// triggered reorg of the tip index.
package txpool

import (
	"errors"
	"math/big"
	"sync"

	"github.com/luxfi/snapsync/coreb/txindex"
	"github.com/luxfi/snapsync/coreb/txitem"
	"github.com/luxfi/snapsync/log"
	"github.com/luxfi/snapsync/metrics"
)

// ErrAlreadyKnown is returned by Insert when an item with the same hash is
// already in the pool (spec §3: "the pool rejects attempts to insert a
// duplicate hash").
var ErrAlreadyKnown = errors.New("txpool: transaction already known")

// Pool owns the four indexes and is the only thing ever allowed to mutate
// them, per spec §5 ("the TxPool indexes are owned by a single tasklet; all
// mutations happen on that tasklet"). Pool itself doesn't enforce the
// single-tasklet rule (a goroutine boundary is an external scheduling
// concern) but documents and relies on callers respecting it, exactly as
// the teacher's TxPool does for its own reserveLock-guarded aggregator.
type Pool struct {
	mu sync.Mutex // guards everything below; held only across single calls, never across a reorg-plus-insert sequence

	bySender *txindex.SenderIndex
	byStatus *txindex.StatusIndex
	byTip    *txindex.TipIndex
	byTipCap *txindex.TipCapIndex

	byHash map[txitem.Hash]*txitem.Item

	baseFee *big.Int
}

func New(baseFee *big.Int) *Pool {
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	return &Pool{
		bySender: txindex.NewSenderIndex(),
		byStatus: txindex.NewStatusIndex(),
		byTip:    txindex.NewTipIndex(),
		byTipCap: txindex.NewTipCapIndex(),
		byHash:   make(map[txitem.Hash]*txitem.Item),
		baseFee:  baseFee,
	}
}

// Insert admits it into all four indexes in one transactional step (spec
// §2's data flow: "each is inserted into all four indexes in one
// transactional step"). it.EffectiveTip is computed against the pool's
// current base fee if not already set.
func (p *Pool) Insert(it *txitem.Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, known := p.byHash[it.Hash]; known {
		return ErrAlreadyKnown
	}
	if it.EffectiveTip == nil {
		it.EffectiveTip = txitem.ComputeEffectiveTip(it.GasTipCap, it.GasFeeCap, p.baseFee)
	}

	if err := p.bySender.Insert(it); err != nil {
		return err
	}
	if err := p.byStatus.Insert(it); err != nil {
		// Unreachable given insert discipline (spec §4.8): SenderIndex
		// already rejected duplicates, so this mirror step cannot fail.
		p.bySender.Delete(it)
		return err
	}
	p.byTip.Insert(it)
	p.byTipCap.Insert(it)
	p.byHash[it.Hash] = it

	metrics.Set("txpool/items", float64(len(p.byHash)))
	log.Debug("txpool: inserted item", "hash", it.Hash, "sender", it.Sender, "nonce", it.Nonce)
	return nil
}

// Delete removes it from all four indexes. Failure of any mirror step
// indicates a defect in insert discipline elsewhere, not a recoverable
// runtime condition (spec §4.8).
func (p *Pool) Delete(hash txitem.Hash) (*txitem.Item, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	it, ok := p.byHash[hash]
	if !ok {
		return nil, nil
	}
	if err := p.bySender.Delete(it); err != nil {
		return nil, err
	}
	if err := p.byStatus.Delete(it); err != nil {
		return nil, err
	}
	if err := p.byTip.Delete(it); err != nil {
		return nil, err
	}
	if err := p.byTipCap.Delete(it); err != nil {
		return nil, err
	}
	delete(p.byHash, hash)

	metrics.Set("txpool/items", float64(len(p.byHash)))
	return it, nil
}

// UpdateStatus moves it to a new lifecycle status, keeping the
// sender/status mirrors consistent.
func (p *Pool) UpdateStatus(hash txitem.Hash, newStatus txitem.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	it, ok := p.byHash[hash]
	if !ok {
		return nil
	}
	old := it.Status
	if err := p.bySender.UpdateStatus(it, old, newStatus); err != nil {
		return err
	}
	// byStatus.Move mutates it.Status to newStatus once its delete from the
	// old status succeeds; no further assignment needed here.
	if err := p.byStatus.Move(it, old, newStatus); err != nil {
		return err
	}
	return nil
}

// SetBaseFee updates the pool's base fee and rebuilds the tip index to
// match, per spec §4.9/§8 property 6. This is the one operation that
// touches every item in the pool; it runs to completion before Insert/
// Delete may interleave, which the mutex already guarantees.
func (p *Pool) SetBaseFee(baseFee *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.baseFee = new(big.Int).Set(baseFee)
	p.byTip.Reorg(p.baseFee, func(it *txitem.Item, baseFee *big.Int) *big.Int {
		return txitem.ComputeEffectiveTip(it.GasTipCap, it.GasFeeCap, baseFee)
	})
	log.Info("txpool: base fee updated, tip index rebuilt", "baseFee", baseFee, "items", len(p.byHash))
}

func (p *Pool) Get(hash txitem.Hash) (*txitem.Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it, ok := p.byHash[hash]
	return it, ok
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byHash)
}

// BySender returns a sender's nonce-ordered schedule view, used by planning
// and by tests verifying spec §8 property 5.
func (p *Pool) BySender(addr txitem.Address) (*txindex.SenderSchedule, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bySender.Schedule(addr)
}

// TipGe returns the least tip bucket whose key is >= pt.
func (p *Pool) TipGe(pt *big.Int) ([]*txitem.Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, bucket, ok := p.byTip.Ge(pt)
	if !ok {
		return nil, false
	}
	var out []*txitem.Item
	bucket.Ascend(func(_ uint64, list []*txitem.Item) bool {
		out = append(out, list...)
		return true
	})
	return out, true
}

// RemotesBelowTipCap returns each distinct sender with an item whose
// gas-tip-cap has dropped below threshold.
func (p *Pool) RemotesBelowTipCap(threshold *big.Int) []txitem.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byTipCap.BelowThreshold(threshold)
}

// CheckInvariants verifies spec §3's cross-index invariant:
// size(Sender-Tree.all) = size(Status-Tree) = size(Tip-Tree) =
// size(TipCap-Tree) = total-items. Intended for tests (spec §8 property 5),
// not production hot paths.
func (p *Pool) CheckInvariants() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.byHash)
	if p.bySender.Size() != n {
		return errors.New("txpool: sender index size mismatch")
	}
	if p.byStatus.Size() != n {
		return errors.New("txpool: status index size mismatch")
	}
	if p.byTip.Size() != n {
		return errors.New("txpool: tip index size mismatch")
	}
	if p.byTipCap.Size() != n {
		return errors.New("txpool: tip-cap index size mismatch")
	}
	return nil
}
