// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txindex

import (
	"math/big"

	"github.com/luxfi/snapsync/coreb/txitem"
)

func bigLess(a, b *big.Int) bool { return a.Cmp(b) < 0 }

// itemList is the chronological list of items sharing one (tip, nonce) pair.
type itemList []*txitem.Item

func (l itemList) without(it *txitem.Item) itemList {
	out := make(itemList, 0, len(l))
	for _, e := range l {
		if e != it {
			out = append(out, e)
		}
	}
	return out
}

// nonceList is the inner level of TipIndex: nonce -> item-list.
type nonceList = orderedMap[uint64, itemList]

func newNonceList() *nonceList { return newOrderedMap[uint64, itemList](nonceLess) }

// TipIndex is the effective-tip -> nonce -> item-list index of spec §3/§4.9.
type TipIndex struct {
	tree *orderedMap[*big.Int, *nonceList]
	size int
}

func NewTipIndex() *TipIndex {
	return &TipIndex{tree: newOrderedMap[*big.Int, *nonceList](bigLess)}
}

func (idx *TipIndex) Size() int { return idx.size }

func (idx *TipIndex) tipBucket(tip *big.Int) *nonceList {
	t, ok := idx.tree.Get(tip)
	if !ok {
		t = newNonceList()
		idx.tree.Put(tip, t)
	}
	return t
}

func (idx *TipIndex) Insert(it *txitem.Item) {
	bucket := idx.tipBucket(it.EffectiveTip)
	cur, _ := bucket.Get(it.Nonce)
	bucket.Put(it.Nonce, append(cur, it))
	idx.size++
}

func (idx *TipIndex) Delete(it *txitem.Item) error {
	tip, ok := idx.tree.Get(it.EffectiveTip)
	if !ok {
		return ErrVfyTipCapMissing
	}
	cur, ok := tip.Get(it.Nonce)
	if !ok {
		return ErrVfyTipCapMissing
	}
	remaining := cur.without(it)
	if len(remaining) == 0 {
		tip.Delete(it.Nonce)
	} else {
		tip.Put(it.Nonce, remaining)
	}
	if tip.Len() == 0 {
		idx.tree.Delete(it.EffectiveTip)
	}
	idx.size--
	return nil
}

// Find returns the item stored at (it.EffectiveTip, it.Nonce) matching it by
// hash, used by the reorg property test (spec §8 property 6).
func (idx *TipIndex) Find(it *txitem.Item) (*txitem.Item, bool) {
	tip, ok := idx.tree.Get(it.EffectiveTip)
	if !ok {
		return nil, false
	}
	list, ok := tip.Get(it.Nonce)
	if !ok {
		return nil, false
	}
	for _, e := range list {
		if e.Hash == it.Hash {
			return e, true
		}
	}
	return nil, false
}

// Ge returns the first item-list bucket whose tip >= pt.
func (idx *TipIndex) Ge(pt *big.Int) (*big.Int, *nonceList, bool) {
	return idx.tree.Ge(pt)
}

// TxPriceItemMap recomputes one item's effective tip against a new base
// fee; it is the external collaborator spec §4.9 calls "the provided
// TxPriceItemMap callback". It returns the new tip rather than a new Item:
// Item.EffectiveTip is the one field spec §3 calls out as mutable in place,
// which is what lets Reorg update this tree without invalidating the same
// *Item pointer the other three indexes still hold.
type TxPriceItemMap func(it *txitem.Item, baseFee *big.Int) *big.Int

// Reorg rebuilds the whole tree: every item's effective tip is recomputed
// via mapFn (mutating the shared *Item in place), the old tree is
// discarded, and every item is reinserted under its new key. O(N log N),
// and must run to completion without interleaving with readers -- callers
// on the pool's single tasklet get this for free.
func (idx *TipIndex) Reorg(baseFee *big.Int, mapFn TxPriceItemMap) {
	var all []*txitem.Item
	idx.tree.Ascend(func(_ *big.Int, bucket *nonceList) bool {
		bucket.Ascend(func(_ uint64, list itemList) bool {
			all = append(all, list...)
			return true
		})
		return true
	})

	idx.tree = newOrderedMap[*big.Int, *nonceList](bigLess)
	idx.size = 0
	for _, it := range all {
		it.EffectiveTip = mapFn(it, baseFee)
		idx.Insert(it)
	}
}
