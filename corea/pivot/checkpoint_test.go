// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pivot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/snapsync/corea/rangedesc"
)

func TestSnapshotRejectsOversizedQueues(t *testing.T) {
	env := newEnv(header(7))
	env.FetchAccounts.Missing = make([]rangedesc.NodeSpec, RecoveryMissingNodesMax+1)

	require.False(t, Eligible(env))
	_, ok := Snapshot(env)
	require.False(t, ok)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	env := newEnv(header(7))
	env.FetchAccounts.Missing = []rangedesc.NodeSpec{{Path: []byte{0x1}}}
	env.FetchStorageFull = []StorageTask{{Account: rangedesc.NodeKeyFromBytes([]byte{0x2})}}

	cp, ok := Snapshot(env)
	require.True(t, ok)
	require.Equal(t, env.Header, cp.Header)

	restored := Restore(cp)
	require.Equal(t, env.Header, restored.Header)
	require.Equal(t, env.FetchAccounts.Missing, restored.FetchAccounts.Missing)
	require.Equal(t, env.FetchStorageFull, restored.FetchStorageFull)
}
