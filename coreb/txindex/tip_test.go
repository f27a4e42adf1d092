// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txindex

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/snapsync/coreb/txitem"
)

// TestTipIndexScenarioS3 reproduces spec.md §8 scenario S3's tip-tree
// portion: tip-tree.ge(6).first() = C, for items A(tip=5), B(tip=5), C(tip=7).
func TestTipIndexScenarioS3(t *testing.T) {
	idx := NewTipIndex()
	a := newItem(1, addr(1), 0, 5, txitem.StatusPending)
	b := newItem(2, addr(1), 1, 5, txitem.StatusPending)
	c := newItem(3, addr(2), 0, 7, txitem.StatusPending)

	idx.Insert(a)
	idx.Insert(b)
	idx.Insert(c)

	_, bucket, ok := idx.Ge(big.NewInt(6))
	require.True(t, ok)
	_, list, ok := bucket.First()
	require.True(t, ok)
	require.Equal(t, []*txitem.Item{c}, list)
}

func TestTipIndexDeleteShrinksBucket(t *testing.T) {
	idx := NewTipIndex()
	a := newItem(1, addr(1), 0, 5, txitem.StatusPending)
	b := newItem(2, addr(2), 0, 5, txitem.StatusPending)
	idx.Insert(a)
	idx.Insert(b)
	require.Equal(t, 2, idx.Size())

	require.NoError(t, idx.Delete(a))
	require.Equal(t, 1, idx.Size())
	_, ok := idx.Find(a)
	require.False(t, ok)
	got, ok := idx.Find(b)
	require.True(t, ok)
	require.Same(t, b, got)
}

func TestTipIndexDeleteMissingReturnsError(t *testing.T) {
	idx := NewTipIndex()
	a := newItem(1, addr(1), 0, 5, txitem.StatusPending)
	require.Error(t, idx.Delete(a))
}

// TestTipIndexReorgScenarioS4 reproduces spec.md §8 scenario S4: base fee
// moves 0 -> 4; item A had gas-fee-cap=10, gas-tip-cap=9, old effective-tip=9,
// new effective-tip=min(9,10-4)=6. After reorg, tip-tree.ge(6).first() = A,
// and the old key 9 no longer resolves it.
func TestTipIndexReorgScenarioS4(t *testing.T) {
	idx := NewTipIndex()
	a := &txitem.Item{
		Hash:         hash(1),
		Sender:       addr(1),
		Nonce:        0,
		GasFeeCap:    big.NewInt(10),
		GasTipCap:    big.NewInt(9),
		GasLimit:     21000,
		EffectiveTip: big.NewInt(9),
	}
	idx.Insert(a)

	idx.Reorg(big.NewInt(4), func(it *txitem.Item, baseFee *big.Int) *big.Int {
		return txitem.ComputeEffectiveTip(it.GasTipCap, it.GasFeeCap, baseFee)
	})

	require.Equal(t, 0, big.NewInt(6).Cmp(a.EffectiveTip))

	_, bucket, ok := idx.Ge(big.NewInt(6))
	require.True(t, ok)
	_, list, ok := bucket.First()
	require.True(t, ok)
	require.Same(t, a, list[0])

	_, ok = idx.tree.Get(big.NewInt(9))
	require.False(t, ok, "old tip key 9 should no longer resolve")
}

func TestTipIndexReorgPreservesPointerIdentityAcrossAllBuckets(t *testing.T) {
	idx := NewTipIndex()
	items := []*txitem.Item{
		newItem(1, addr(1), 0, 1, txitem.StatusPending),
		newItem(2, addr(2), 0, 2, txitem.StatusPending),
		newItem(3, addr(3), 0, 3, txitem.StatusPending),
	}
	for _, it := range items {
		idx.Insert(it)
	}

	idx.Reorg(big.NewInt(0), func(it *txitem.Item, _ *big.Int) *big.Int {
		return new(big.Int).Add(it.EffectiveTip, big.NewInt(100))
	})

	for _, it := range items {
		got, ok := idx.Find(it)
		require.True(t, ok)
		require.Same(t, it, got)
	}
	require.Equal(t, len(items), idx.Size())
}
