// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txindex

import (
	"math/big"

	"github.com/luxfi/snapsync/coreb/txitem"
)

// TipCapIndex is the gas-tip-cap -> item-list index of spec §3/§4.9, used to
// locate remotes whose price dropped below a threshold.
type TipCapIndex struct {
	tree *orderedMap[*big.Int, itemList]
	size int
}

func NewTipCapIndex() *TipCapIndex {
	return &TipCapIndex{tree: newOrderedMap[*big.Int, itemList](bigLess)}
}

func (idx *TipCapIndex) Size() int { return idx.size }

func (idx *TipCapIndex) Insert(it *txitem.Item) {
	cur, _ := idx.tree.Get(it.GasTipCap)
	idx.tree.Put(it.GasTipCap, append(cur, it))
	idx.size++
}

func (idx *TipCapIndex) Delete(it *txitem.Item) error {
	cur, ok := idx.tree.Get(it.GasTipCap)
	if !ok {
		return ErrVfyTipCapMissing
	}
	remaining := cur.without(it)
	if len(remaining) == 0 {
		idx.tree.Delete(it.GasTipCap)
	} else {
		idx.tree.Put(it.GasTipCap, remaining)
	}
	idx.size--
	return nil
}

// BelowThreshold returns each distinct sender (once, in ascending tip-cap
// order of first appearance) of the items whose gas-tip-cap is strictly
// below threshold -- the operation spec §3 names in prose
// ("locate remotes whose price dropped below a threshold") without spelling
// out as a §4.9 operation; added per SPEC_FULL.md §5.
func (idx *TipCapIndex) BelowThreshold(threshold *big.Int) []txitem.Address {
	var out []txitem.Address
	seen := make(map[txitem.Address]bool)
	idx.tree.Ascend(func(cap *big.Int, list itemList) bool {
		if cap.Cmp(threshold) >= 0 {
			return false
		}
		for _, it := range list {
			if !seen[it.Sender] {
				seen[it.Sender] = true
				out = append(out, it.Sender)
			}
		}
		return true
	})
	return out
}
