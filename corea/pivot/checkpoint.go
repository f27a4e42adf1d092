// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pivot

import "github.com/luxfi/snapsync/corea/rangedesc"

// RecoveryThresholds are the literal bounds of spec §6's "Persisted state
// layout" note: a recovery checkpoint is only written when both queues are
// small enough that resuming from it is cheaper than restarting from
// scratch.
const (
	RecoveryMissingNodesMax = 10_000
	RecoveryFetchStorageMax = 20_000
)

// Checkpoint captures enough of an Env to resume a pivot after a restart.
// Encoding/decoding to a concrete backing store is out of scope per spec §1
// ("persistent disk I/O beyond the bulk-write interface the state DB
// exposes"); this type only defines the shape and the write-eligibility
// check.
type Checkpoint struct {
	Header           StateHeader
	MissingNodes     []rangedesc.NodeSpec
	FetchStorageFull []StorageTask
	FetchStoragePart []StorageTask
}

// Eligible reports whether env is small enough to checkpoint, per spec §6.
func Eligible(env *Env) bool {
	return len(env.FetchAccounts.Missing) <= RecoveryMissingNodesMax &&
		len(env.FetchStorageFull)+len(env.FetchStoragePart) <= RecoveryFetchStorageMax
}

// Snapshot builds a Checkpoint from env if Eligible, else returns false.
func Snapshot(env *Env) (Checkpoint, bool) {
	if !Eligible(env) {
		return Checkpoint{}, false
	}
	return Checkpoint{
		Header:           env.Header,
		MissingNodes:     append([]rangedesc.NodeSpec{}, env.FetchAccounts.Missing...),
		FetchStorageFull: append([]StorageTask{}, env.FetchStorageFull...),
		FetchStoragePart: append([]StorageTask{}, env.FetchStoragePart...),
	}, true
}

// Restore rebuilds an Env's queues from a Checkpoint. The account range
// batch itself (which sub-ranges remain) is not part of the checkpoint --
// spec §6 only requires the node/storage queues survive a restart; a
// restored env starts with the full key space in its primary account range,
// like a freshly adopted one.
func Restore(cp Checkpoint) *Env {
	env := newEnv(cp.Header)
	env.FetchAccounts.Missing = cp.MissingNodes
	env.FetchStorageFull = cp.FetchStorageFull
	env.FetchStoragePart = cp.FetchStoragePart
	return env
}
