// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fetcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/snapsync/corea/intervals"
	"github.com/luxfi/snapsync/corea/pivot"
	"github.com/luxfi/snapsync/corea/rangedesc"
	"github.com/luxfi/snapsync/corea/snapwire"
	"github.com/luxfi/snapsync/corea/snapwire/snapwiretest"
	"github.com/luxfi/snapsync/corea/trie"
)

// TestClaimScenarioS2 reproduces spec.md §8 scenario S2 literally: claiming
// from the full key space with max=2**256/1000 yields [0, max-1], leaving
// [max, 2**256-1]; a partial reply covering [0,X] with X < max-1 merges the
// remainder (X, max-1] back in, coalescing with the untouched tail into a
// single (X, 2**256-1] interval.
func TestClaimScenarioS2(t *testing.T) {
	set := intervals.NewSetFrom(intervals.Full())

	iv, ok := claim(set, maxFetchRange)
	require.True(t, ok)
	require.True(t, iv.Lo.Eq(rangedesc.Zero()))
	maxMinusOne := maxFetchRange.Sub(1)
	require.True(t, iv.Hi.Eq(maxMinusOne))

	require.Equal(t, 1, set.Len())
	remaining, _ := set.First()
	require.True(t, remaining.Lo.Eq(maxFetchRange))
	require.True(t, remaining.Hi.Eq(rangedesc.Max()))

	// Reply covered [0, X] with X strictly less than max-1; the remainder
	// (X, max-1] is merged back.
	x := maxFetchRange.Sub(1000)
	remainder := intervals.New(x.Add(1), iv.Hi)
	set.Merge(remainder)

	require.Equal(t, 1, set.Len(), "remainder should coalesce with the untouched tail")
	final, _ := set.First()
	require.True(t, final.Lo.Eq(x.Add(1)))
	require.True(t, final.Hi.Eq(rangedesc.Max()))
}

func TestClaimTruncatesToMaxWidth(t *testing.T) {
	set := intervals.NewSetFrom(intervals.New(rangedesc.Zero(), rangedesc.NodeTagFromUint64(10)))
	iv, ok := claim(set, rangedesc.NodeTagFromUint64(5))
	require.True(t, ok)
	require.True(t, iv.Lo.Eq(rangedesc.Zero()))
	require.True(t, iv.Hi.Eq(rangedesc.NodeTagFromUint64(4)))
	require.True(t, set.IsEmpty() == false)
}

func TestClaimEmptySetReturnsFalse(t *testing.T) {
	set := intervals.NewSet()
	_, ok := claim(set, maxFetchRange)
	require.False(t, ok)
}

// singleLeafRoot computes the root a trie.Db would derive for a single
// account leaf spanning the whole claimed range, the same way Interpolate's
// buildSubtrie does for a one-element leaf list: the root node is the leaf
// itself.
func singleLeafRoot(t *testing.T, codec trie.Codec, path []byte, value []byte) rangedesc.NodeKey {
	t.Helper()
	n := &trie.Node{Kind: trie.KindLeaf, PathSuffix: path, Value: value}
	enc, err := codec.EncodeNode(n)
	require.NoError(t, err)
	return codec.HashNode(enc)
}

func nibbles(k rangedesc.NodeKey) []byte { return nibblesOf(k) }

func TestRunOnceImportsAndNarrowsRange(t *testing.T) {
	codec := fakeCodec{}
	accountHash := rangedesc.NodeTagFromUint64(100).Key()
	value := []byte("account-rlp")
	root := singleLeafRoot(t, codec, nibbles(accountHash), value)

	mgr := pivot.NewManager()
	header := pivot.StateHeader{Number: 1, StateRoot: root}
	env := mgr.Adopt(header)

	peer := &snapwiretest.FakePeer{
		PeerID: "peerA",
		AccountScript: []snapwiretest.AccountStep{
			{Reply: snapwire.AccountRangeReply{
				Accounts: []snapwire.AccountData{{Hash: accountHash, Account: value}},
			}},
		},
	}

	tdb := trie.New(codec)
	w := NewWorker(peer, env, tdb, mgr, nil)

	cont, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, cont)
	require.Equal(t, uint64(1), env.ImportedAccounts)

	// The covered sub-range [0, accountHash] should have been reduced from
	// primary, and the remainder re-merged since accountHash < iv.Hi.
	primary := env.FetchAccounts.Primary
	require.False(t, primary.IsEmpty())
	first, ok := primary.First()
	require.True(t, ok)
	require.True(t, first.Lo.Gt(accountHash.Tag()))
}

func TestRunOnceHandlesNoDataThenZombie(t *testing.T) {
	codec := fakeCodec{}
	mgr := pivot.NewManager()
	env := mgr.Adopt(pivot.StateHeader{Number: 1, StateRoot: rangedesc.NodeKeyFromBytes([]byte{1})})

	scripts := make([]snapwiretest.AccountStep, 0, MaxNoDataErrors+2)
	for i := 0; i < MaxNoDataErrors+2; i++ {
		scripts = append(scripts, snapwiretest.AccountStep{Reply: snapwire.AccountRangeReply{}})
	}
	peer := &snapwiretest.FakePeer{PeerID: "peerB", AccountScript: scripts}

	tdb := trie.New(codec)
	w := NewWorker(peer, env, tdb, mgr, nil)

	var lastErr error
	var cont bool
	for i := 0; i < MaxNoDataErrors+2; i++ {
		cont, lastErr = w.RunOnce(context.Background())
		if !cont {
			break
		}
	}
	require.False(t, cont)
	require.ErrorIs(t, lastErr, ErrZombie)
}

func TestRunOnceReturnsFalseWhenFullyDrained(t *testing.T) {
	codec := fakeCodec{}
	mgr := pivot.NewManager()
	env := mgr.Adopt(pivot.StateHeader{Number: 1, StateRoot: rangedesc.NodeKeyFromBytes([]byte{1})})
	env.FetchAccounts.Primary = intervals.NewSet()
	env.FetchAccounts.Secondary = intervals.NewSet()

	peer := &snapwiretest.FakePeer{PeerID: "peerC"}
	tdb := trie.New(codec)
	w := NewWorker(peer, env, tdb, mgr, nil)

	cont, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, cont)
}
