// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fetcher implements the per-peer snap-sync worker loop: claim a
// range slice, issue a proved-range request, verify and import it, and
// release the slice back to the interval set on failure.
package fetcher

import (
	"context"
	"errors"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"

	"github.com/luxfi/snapsync/corea/intervals"
	"github.com/luxfi/snapsync/corea/pivot"
	"github.com/luxfi/snapsync/corea/rangedesc"
	"github.com/luxfi/snapsync/corea/snapwire"
	"github.com/luxfi/snapsync/corea/trie"
	"github.com/luxfi/snapsync/log"
	"github.com/luxfi/snapsync/metrics"
)

// Tuning constants, non-negotiable per spec §4.5/§6.
const (
	RequestBytesLimit       = 2 * 1024 * 1024
	StorageSlotsFetchMax    = 2048
	TrieNodesFetchMax       = 1024
	StorageSlotsQuPrioThresh = 5000
)

// maxFetchRange is 2**256 / 1000, the widest slice a single claim takes.
var maxFetchRange = computeMaxFetchRange()

func computeMaxFetchRange() rangedesc.NodeTag {
	max := rangedesc.Max().Uint256()
	var q uint256.Int
	q.Div(max, uint256.NewInt(1000))
	return rangedesc.NodeTagFromBig(&q)
}

// Error counters and degrade-to-zombie thresholds, per spec §6/§7.
const (
	MaxTimeoutErrors = 3
	MaxNetworkErrors = 5
	MaxNoDataErrors  = 3

	TimeoutSleep = 5000 * time.Millisecond
	NetworkSleep = 5000 * time.Millisecond
	NoDataSleep  = 0
)

var (
	ErrZombie = errors.New("fetcher: peer degraded to zombie")
)

// ZombieObserver is an optional hook invoked when a peer crosses the zombie
// threshold, letting an external peer-set disconnect/deprioritize it. This
// supplements spec.md with the natural completion the distillation implies
// but doesn't spell out (SPEC_FULL.md §5).
type ZombieObserver func(peerID string)

// Worker runs the fetch loop for a single peer against a single pivot
// environment.
type Worker struct {
	peer snapwire.Peer
	env  *pivot.Env
	trie *trie.Db
	mgr  *pivot.Manager

	timeoutErrs int
	networkErrs int
	noDataErrs  int

	onZombie ZombieObserver
}

func NewWorker(peer snapwire.Peer, env *pivot.Env, tdb *trie.Db, mgr *pivot.Manager, onZombie ZombieObserver) *Worker {
	return &Worker{peer: peer, env: env, trie: tdb, mgr: mgr, onZombie: onZombie}
}

// RunOnce performs one claim/fetch/verify/import cycle and returns whether
// the worker should keep going (false once both the worker is zombied and
// once the environment's account range is fully drained with nothing left
// to claim).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	if w.env.FetchAccounts.Primary.IsEmpty() {
		if w.env.FetchAccounts.Secondary.IsEmpty() {
			return false, nil
		}
		w.env.FetchAccounts.Swap()
	}

	iv, ok := claim(w.env.FetchAccounts.Primary, maxFetchRange)
	if !ok {
		return false, nil
	}

	reply, err := w.peer.GetAccountRange(ctx, w.env.Header.StateRoot, iv.Lo.Key(), iv.Hi.Key(), RequestBytesLimit)
	if err != nil {
		return w.handleError(ctx, iv, err)
	}

	covered, err := w.verifyAndImport(iv, reply)
	if err != nil {
		w.env.FetchAccounts.Primary.Merge(iv)
		log.Debug("fetcher: dropping slice after verify failure", "peer", w.peer.ID(), "err", err)
		return true, err
	}

	w.env.FetchAccounts.Primary.Reduce(covered)
	w.mgr.MergeCovered(covered)
	w.env.ImportedAccounts += uint64(len(reply.Accounts))
	metrics.Inc("fetcher/accountsImported", len(reply.Accounts))

	if len(reply.Accounts) == 0 {
		w.noDataErrs++
		return w.checkZombie()
	}
	w.resetErrorCounters()

	// Partial reply: peer returned fewer items than the range implies.
	// Recompute the actually-covered sub-range and return the remainder.
	lastHash := reply.Accounts[len(reply.Accounts)-1].Hash
	lastTag := lastHash.Tag()
	if lastTag.Lt(iv.Hi) {
		remainder := intervals.New(lastTag.Add(1), iv.Hi)
		w.env.FetchAccounts.Primary.Merge(remainder)
	}
	return true, nil
}

// claim takes the first interval from set, truncates it to at most maxWidth,
// and removes the claimed slice from set.
func claim(set *intervals.Set, maxWidth rangedesc.NodeTag) (intervals.Interval, bool) {
	first, ok := set.First()
	if !ok {
		return intervals.Interval{}, false
	}
	hi := first.Hi
	var width uint256.Int
	width.Sub(hi.Uint256(), first.Lo.Uint256())
	if !width.Lt(maxWidth.Uint256()) {
		// first.Lo + (maxWidth - 1): maxWidth is a width (e.g. 2**256/1000),
		// not a uint64, so this must stay in full 256-bit arithmetic -- going
		// through a uint64-clamped delta would truncate it to 2**64-1 and
		// claim a far narrower slice than spec'd.
		hi = first.Lo.AddTag(maxWidth.Sub(1))
		if hi.Gt(first.Hi) {
			hi = first.Hi
		}
	}
	claimed := intervals.New(first.Lo, hi)
	set.Reduce(claimed)
	return claimed, true
}

func (w *Worker) verifyAndImport(iv intervals.Interval, reply snapwire.AccountRangeReply) (intervals.Interval, error) {
	seen := mapset.NewThreadUnsafeSet[rangedesc.NodeKey]()
	refs := mapset.NewThreadUnsafeSet[rangedesc.NodeKey]()
	for _, proof := range reply.Proofs {
		if _, err := w.trie.Import(proof, seen, refs); err != nil {
			return intervals.Interval{}, err
		}
	}
	for i := 1; i < len(reply.Accounts); i++ {
		if !reply.Accounts[i-1].Hash.Tag().Lt(reply.Accounts[i].Hash.Tag()) {
			return intervals.Interval{}, trie.ErrAccountsNotStrictlyIncr
		}
	}
	if len(reply.Accounts) > 0 && reply.Accounts[0].Hash.Tag().Lt(iv.Lo) {
		return intervals.Interval{}, trie.ErrAccountSmallerThanBase
	}

	leaves := make([]trie.LeafSpec, len(reply.Accounts))
	for i, a := range reply.Accounts {
		leaves[i] = trie.LeafSpec{Path: nibblesOf(a.Hash), Value: a.Account}
	}
	lastPath := nibblesOf(iv.Hi.Key())
	if _, err := w.trie.Interpolate(w.env.Header.StateRoot, leaves, lastPath); err != nil {
		return intervals.Interval{}, err
	}

	if len(reply.Accounts) == 0 {
		return iv, nil
	}
	return intervals.New(iv.Lo, reply.Accounts[len(reply.Accounts)-1].Hash.Tag()), nil
}

func nibblesOf(k rangedesc.NodeKey) []byte {
	out := make([]byte, 0, 64)
	for _, b := range k {
		out = append(out, b>>4, b&0x0f)
	}
	return out
}

func (w *Worker) handleError(ctx context.Context, iv intervals.Interval, err error) (bool, error) {
	w.env.FetchAccounts.Primary.Merge(iv)

	switch {
	case isTimeout(err):
		w.timeoutErrs++
		metrics.Inc("fetcher/timeoutErrors", 1)
		sleep(ctx, TimeoutSleep)
	case isNoData(err):
		w.noDataErrs++
		metrics.Inc("fetcher/noDataErrors", 1)
	default:
		w.networkErrs++
		metrics.Inc("fetcher/networkErrors", 1)
		sleep(ctx, NetworkSleep)
	}
	return w.checkZombie()
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func (w *Worker) resetErrorCounters() {
	w.timeoutErrs, w.networkErrs, w.noDataErrs = 0, 0, 0
}

func (w *Worker) checkZombie() (bool, error) {
	if w.timeoutErrs > MaxTimeoutErrors || w.networkErrs > MaxNetworkErrors || w.noDataErrs > MaxNoDataErrors {
		log.Info("fetcher: peer degraded to zombie", "peer", w.peer.ID())
		if w.onZombie != nil {
			w.onZombie(w.peer.ID())
		}
		return false, ErrZombie
	}
	return true, nil
}

type timeoutError interface{ Timeout() bool }
type noDataError interface{ NoData() bool }

func isTimeout(err error) bool {
	var te timeoutError
	return errors.As(err, &te) && te.Timeout()
}

func isNoData(err error) bool {
	var nd noDataError
	return errors.As(err, &nd) && nd.NoData()
}
