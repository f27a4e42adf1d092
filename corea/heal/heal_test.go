// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package heal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/snapsync/corea/pivot"
	"github.com/luxfi/snapsync/corea/rangedesc"
	"github.com/luxfi/snapsync/corea/snapwire"
	"github.com/luxfi/snapsync/corea/trie"
)

// trieNodesPeer is a minimal snapwire.Peer fake that only scripts
// GetTrieNodes, the only call Healer.Step issues.
type trieNodesPeer struct {
	nodes map[string][]byte // path (as string key) -> encoded node
}

func pathKey(p []byte) string { return string(p) }

func (p *trieNodesPeer) ID() string { return "healPeer" }

func (p *trieNodesPeer) GetAccountRange(context.Context, rangedesc.NodeKey, rangedesc.NodeKey, rangedesc.NodeKey, uint64) (snapwire.AccountRangeReply, error) {
	return snapwire.AccountRangeReply{}, nil
}

func (p *trieNodesPeer) GetStorageRanges(context.Context, rangedesc.NodeKey, []rangedesc.NodeKey, rangedesc.NodeKey, rangedesc.NodeKey, uint64) (snapwire.StorageRangesReply, error) {
	return snapwire.StorageRangesReply{}, nil
}

func (p *trieNodesPeer) GetByteCodes(context.Context, []rangedesc.NodeKey, uint64) (snapwire.ByteCodesReply, error) {
	return snapwire.ByteCodesReply{}, nil
}

func (p *trieNodesPeer) GetTrieNodes(_ context.Context, _ rangedesc.NodeKey, paths [][]byte, _ uint64) (snapwire.NodesReply, error) {
	var reply snapwire.NodesReply
	for _, path := range paths {
		if raw, ok := p.nodes[pathKey(path)]; ok {
			reply.Nodes = append(reply.Nodes, raw)
		}
	}
	return reply, nil
}

// TestHealStepFetchesSingleDanglingNode reproduces spec.md §8 scenario S5: a
// partial accounts trie with exactly one dangling reference at path 0x1234;
// inspect(root, []) reports it; after fetching and importing it, inspect
// returns empty.
func TestHealStepFetchesSingleDanglingNode(t *testing.T) {
	codec := fakeCodec{}
	tdb := trie.New(codec)

	missingLeaf := &trie.Node{Kind: trie.KindLeaf, PathSuffix: nil, Value: []byte("slot-value")}
	missingEnc, err := codec.EncodeNode(missingLeaf)
	require.NoError(t, err)
	missingHash := codec.HashNode(missingEnc)

	rootExt := &trie.Node{Kind: trie.KindExtension, PathSuffix: []byte{0x1, 0x2, 0x3, 0x4}}
	rootExt.Children[0] = missingHash
	rootEnc, err := codec.EncodeNode(rootExt)
	require.NoError(t, err)
	rootHash := codec.HashNode(rootEnc)

	_, err = tdb.Import(rootEnc, nil, nil)
	require.NoError(t, err)

	dangling := tdb.Inspect(rootHash, nil, 0, trie.DefaultPlanBLevel)
	require.Len(t, dangling, 1)
	require.Equal(t, []byte{0x1, 0x2, 0x3, 0x4}, dangling[0].Path)
	require.Equal(t, missingHash, dangling[0].Hash)

	mgr := pivot.NewManager()
	env := mgr.Adopt(pivot.StateHeader{Number: 1, StateRoot: rootHash})
	env.FetchAccounts.Missing = dangling

	peer := &trieNodesPeer{nodes: map[string][]byte{
		pathKey([]byte{0x1, 0x2, 0x3, 0x4}): missingEnc,
	}}

	h := New(env, tdb, peer)
	more, err := h.Step(context.Background(), HealAccountsTrigger+0.01)
	require.NoError(t, err)
	require.True(t, more)

	stillDangling := tdb.Inspect(rootHash, nil, 0, trie.DefaultPlanBLevel)
	require.Empty(t, stillDangling)
}

func TestTriggerUsesCanonicalThreshold(t *testing.T) {
	require.False(t, Trigger(HealAccountsTrigger))
	require.True(t, Trigger(HealAccountsTrigger+0.001))
}

func TestStepNoOpBelowTrigger(t *testing.T) {
	codec := fakeCodec{}
	tdb := trie.New(codec)
	mgr := pivot.NewManager()
	env := mgr.Adopt(pivot.StateHeader{Number: 1, StateRoot: rangedesc.NodeKeyFromBytes([]byte{1})})
	h := New(env, tdb, &trieNodesPeer{})

	more, err := h.Step(context.Background(), 0.5)
	require.NoError(t, err)
	require.False(t, more)
	require.Equal(t, pivot.HealIdle, env.Heal)
}
