// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fetcher

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/luxfi/snapsync/corea/intervals"
	"github.com/luxfi/snapsync/corea/pivot"
	"github.com/luxfi/snapsync/corea/rangedesc"
	"github.com/luxfi/snapsync/metrics"
)

// PreferStorage reports whether a worker should prioritize draining the
// full-storage queue over claiming new account ranges, per spec §4.5: once
// fetchStorageFull backs up past StorageSlotsQuPrioThresh, storage work
// takes priority.
func PreferStorage(env *pivot.Env) bool {
	return len(env.FetchStorageFull) > StorageSlotsQuPrioThresh
}

// RunStorageOnce claims the next storage task (from the partial queue first,
// unless PreferStorage reports the full queue backed up) and fetches its
// slots, splitting into a StoragePart task if the reply is truncated.
func (w *Worker) RunStorageOnce(ctx context.Context) (bool, error) {
	task, fromFull, ok := popStorageTask(w.env)
	if !ok {
		return false, nil
	}

	origin := rangedesc.Zero().Key()
	limit := rangedesc.Max().Key()
	if task.Range != nil {
		origin, limit = task.Range.Lo.Key(), task.Range.Hi.Key()
	}

	reply, err := w.peer.GetStorageRanges(ctx, task.Root, []rangedesc.NodeKey{task.Account}, origin, limit, RequestBytesLimit)
	if err != nil {
		requeueStorage(w.env, task, fromFull)
		return w.handleError(ctx, intervals.Interval{}, err)
	}
	if len(reply.Slots) == 0 {
		w.noDataErrs++
		requeueStorage(w.env, task, fromFull)
		return w.checkZombie()
	}

	slots := reply.Slots[0]
	seen := mapset.NewThreadUnsafeSet[rangedesc.NodeKey]()
	refs := mapset.NewThreadUnsafeSet[rangedesc.NodeKey]()
	for _, proof := range reply.Proofs {
		if _, err := w.trie.Import(proof, seen, refs); err != nil {
			requeueStorage(w.env, task, fromFull)
			return true, err
		}
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i-1].Hash.Tag().Lt(slots[i].Hash.Tag()) {
			requeueStorage(w.env, task, fromFull)
			return true, nil
		}
	}

	w.env.ImportedStorage += uint64(len(slots))
	metrics.Inc("fetcher/storageSlotsImported", len(slots))
	w.resetErrorCounters()

	if len(slots) >= StorageSlotsFetchMax {
		lastTag := slots[len(slots)-1].Hash.Tag()
		remainder := intervals.New(lastTag.Add(1), rangedesc.Max())
		w.env.FetchStoragePart = append(w.env.FetchStoragePart, pivot.StorageTask{
			Account: task.Account, Root: task.Root, Range: &remainder,
		})
	}
	return true, nil
}

func popStorageTask(env *pivot.Env) (pivot.StorageTask, bool, bool) {
	if PreferStorage(env) && len(env.FetchStorageFull) > 0 {
		t := env.FetchStorageFull[0]
		env.FetchStorageFull = env.FetchStorageFull[1:]
		return t, true, true
	}
	if len(env.FetchStoragePart) > 0 {
		t := env.FetchStoragePart[0]
		env.FetchStoragePart = env.FetchStoragePart[1:]
		return t, false, true
	}
	if len(env.FetchStorageFull) > 0 {
		t := env.FetchStorageFull[0]
		env.FetchStorageFull = env.FetchStorageFull[1:]
		return t, true, true
	}
	return pivot.StorageTask{}, false, false
}

func requeueStorage(env *pivot.Env, task pivot.StorageTask, fromFull bool) {
	if fromFull {
		env.FetchStorageFull = append(env.FetchStorageFull, task)
	} else {
		env.FetchStoragePart = append(env.FetchStoragePart, task)
	}
}
