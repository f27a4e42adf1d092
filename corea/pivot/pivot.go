// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pivot selects and replaces the state-root a snap sync targets, and
// owns the LRU of recently-active pivot environments.
package pivot

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"golang.org/x/sync/singleflight"

	"github.com/luxfi/snapsync/corea/intervals"
	"github.com/luxfi/snapsync/corea/rangedesc"
	"github.com/luxfi/snapsync/log"
)

// Tuning constants, non-negotiable per spec §4.4/§6.
const (
	PivotTableLRUMax      = 50
	PivotBlockDistanceMin = 128
)

// HealState is the per-pivot healing phase.
type HealState int

const (
	HealIdle HealState = iota
	HealRunning
	HealDone
)

// StateHeader is the minimal header shape a pivot needs -- an external
// collaborator's concern (block validation/consensus is out of scope).
type StateHeader struct {
	Number    uint64
	StateRoot rangedesc.NodeKey
}

// RangeBatch pairs a primary and secondary interval set plus a missing-nodes
// queue for healing, per spec §3. While primary is non-empty, fetchers claim
// from primary; once it empties, the sets are swapped so drained items can
// be retried from secondary.
type RangeBatch struct {
	Primary   *intervals.Set
	Secondary *intervals.Set
	Missing   []rangedesc.NodeSpec
}

func NewFullRangeBatch() *RangeBatch {
	return &RangeBatch{
		Primary:   intervals.NewSetFrom(intervals.Full()),
		Secondary: intervals.NewSet(),
	}
}

// Swap exchanges primary and secondary, done once primary empties so peers
// retry whatever secondary still holds.
func (b *RangeBatch) Swap() {
	b.Primary, b.Secondary = b.Secondary, b.Primary
}

// Env is a Pivot-Environment: the full working state for one adopted state
// root. Exclusively owned by the Manager; created on pivot adoption, dropped
// on LRU eviction.
type Env struct {
	Header StateHeader

	FetchAccounts     *RangeBatch
	FetchStorageFull  []StorageTask
	FetchStoragePart  []StorageTask

	Heal HealState

	ImportedAccounts uint64
	ImportedStorage  uint64
	ImportedBytecode uint64
}

// StorageTask names one account whose storage trie still needs fetching,
// optionally already narrowed to a sub-range (FetchStoragePart items carry a
// non-nil Range; FetchStorageFull items fetch the whole trie).
type StorageTask struct {
	Account rangedesc.NodeKey
	Root    rangedesc.NodeKey
	Range   *intervals.Interval
}

func newEnv(header StateHeader) *Env {
	return &Env{Header: header, FetchAccounts: NewFullRangeBatch()}
}

// Manager owns the pivot LRU and the process-wide covered-accounts union
// used as a healing trigger (spec §4.4, §4.6).
type Manager struct {
	mu sync.Mutex

	table  *lru.Cache // state-root -> *Env
	active *Env

	coveredAccounts *intervals.Set

	// coveredWeight is the cumulative, overlap-counting sum of every range
	// ever merged into coveredAccounts. Unlike coveredAccounts itself (a
	// coalesced disjoint Set, bounded to at most one full sweep of the key
	// space), coveredWeight keeps growing every time the same range is
	// re-covered by a later pivot, so its fraction of the key space can
	// exceed 1.0 -- which is what spec §9's HealAccountsTrigger=1.3 actually
	// measures against.
	coveredWeight uint256.Int

	sf singleflight.Group // collapses concurrent "adopt this pivot" races
}

func NewManager() *Manager {
	table, err := lru.New(PivotTableLRUMax)
	if err != nil {
		// lru.New only errors on size<=0, which never happens here.
		panic(err)
	}
	return &Manager{table: table, coveredAccounts: intervals.NewSet()}
}

func (m *Manager) Active() *Env {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) CoveredAccounts() *intervals.Set {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.coveredAccounts
}

// MergeCovered folds iv into the process-wide covered-accounts union: the
// coalesced disjoint set (for queries like IsEmpty) and, separately, the
// cumulative overlap-counting weight that CoveredFraction reports from.
// Every completed fetch slice -- whether newly drained by a live worker
// (corea/fetcher) or reclaimed from a replaced pivot's remainder
// (accumulateCovered) -- must go through this, not coveredAccounts.Merge
// directly, or the re-covered range won't count twice.
func (m *Manager) MergeCovered(iv intervals.Interval) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coveredAccounts.Merge(iv)
	w := iv.Width()
	m.coveredWeight.Add(&m.coveredWeight, &w)
}

// CoveredFraction reports the cumulative covered-accounts weight as a
// fraction of the 256-bit key space. Because it counts every merge, not just
// net-new coverage, it can exceed 1.0 once the same range has been covered
// by more than one pivot sweep -- the condition spec §9 chose
// HealAccountsTrigger=1.3 to detect. Feed this, not
// CoveredAccounts().FullFactor() (which is capped at 1.0 by construction),
// into heal.Trigger.
func (m *Manager) CoveredFraction() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return intervals.Fraction(&m.coveredWeight)
}

// ShouldReplace implements the pivot-replacement policy of spec §4.4: the
// active pivot is replaced only when the candidate block is far enough ahead
// and the active pivot isn't already a completed, reorg-stable target.
func (m *Manager) ShouldReplace(candidate StateHeader) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return true
	}
	if m.active.Heal == HealDone && m.envStopChangingIfComplete() {
		return false
	}
	if candidate.Number <= m.active.Header.Number+PivotBlockDistanceMin {
		return false
	}
	return true
}

// envStopChangingIfComplete is a named policy hook matching spec §4.4's
// phrase verbatim: once a pivot has fully healed, no later block proposed
// by a new peer forces a replacement, however far ahead it is.
func (m *Manager) envStopChangingIfComplete() bool {
	return true
}

// Adopt replaces the active pivot with a fresh environment for header,
// seeding its accounts range batch with the full key space. Concurrent
// callers proposing the same state root collapse onto one Env via
// singleflight.
func (m *Manager) Adopt(header StateHeader) *Env {
	key := header.StateRoot.String()
	v, _, _ := m.sf.Do(key, func() (interface{}, error) {
		m.mu.Lock()
		defer m.mu.Unlock()

		if cached, ok := m.table.Get(header.StateRoot); ok {
			env := cached.(*Env)
			m.active = env
			return env, nil
		}

		if m.active != nil {
			m.accumulateCovered(m.active)
		}

		env := newEnv(header)
		m.table.Add(header.StateRoot, env)
		m.active = env
		log.Info("pivot: adopted new state root", "number", header.Number, "root", header.StateRoot)
		return env, nil
	})
	return v.(*Env)
}

// accumulateCovered folds an evicted/replaced pivot's completed ranges into
// the process-wide covered-accounts union (spec §2's data-flow note). Called
// with m.mu already held (from Adopt), so it touches coveredAccounts/
// coveredWeight directly rather than through MergeCovered.
func (m *Manager) accumulateCovered(env *Env) {
	full := intervals.Full()
	remaining := env.FetchAccounts.Primary
	// Whatever is NOT still outstanding in the old pivot's primary set was
	// covered by it; merge that complement into the running union.
	covered := complement(remaining, full)
	covered.IncreasingIter(func(iv intervals.Interval) bool {
		m.coveredAccounts.Merge(iv)
		w := iv.Width()
		m.coveredWeight.Add(&m.coveredWeight, &w)
		return true
	})
}

func complement(remaining *intervals.Set, full intervals.Interval) *intervals.Set {
	out := intervals.NewSetFrom(full)
	remaining.IncreasingIter(func(iv intervals.Interval) bool {
		out.Reduce(iv)
		return true
	})
	return out
}
