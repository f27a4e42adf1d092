// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txindex

import (
	"github.com/luxfi/snapsync/coreb/txitem"
)

// StatusIndex is the status -> sender -> nonce -> item index of spec §4.9,
// tracking accumulated gas-limit per sender for planning.
type StatusIndex struct {
	byStatus map[txitem.Status]map[txitem.Address]*nonceTree
	gasLimit map[txitem.Status]map[txitem.Address]uint64
	size     int
}

func NewStatusIndex() *StatusIndex {
	return &StatusIndex{
		byStatus: make(map[txitem.Status]map[txitem.Address]*nonceTree),
		gasLimit: make(map[txitem.Status]map[txitem.Address]uint64),
	}
}

func (idx *StatusIndex) Size() int { return idx.size }

func (idx *StatusIndex) senderTree(status txitem.Status, addr txitem.Address) *nonceTree {
	m, ok := idx.byStatus[status]
	if !ok {
		m = make(map[txitem.Address]*nonceTree)
		idx.byStatus[status] = m
	}
	t, ok := m[addr]
	if !ok {
		t = newNonceTree()
		m[addr] = t
	}
	if _, ok := idx.gasLimit[status]; !ok {
		idx.gasLimit[status] = make(map[txitem.Address]uint64)
	}
	return t
}

func (idx *StatusIndex) Insert(it *txitem.Item) error {
	return idx.insertAt(it.Status, it)
}

func (idx *StatusIndex) insertAt(status txitem.Status, it *txitem.Item) error {
	t := idx.senderTree(status, it.Sender)
	if t.Contains(it.Nonce) {
		return ErrVfySenderDuplicate
	}
	t.Put(it.Nonce, it)
	idx.gasLimit[status][it.Sender] += it.GasLimit
	idx.size++
	return nil
}

func (idx *StatusIndex) Delete(it *txitem.Item) error {
	return idx.deleteAt(it.Status, it)
}

func (idx *StatusIndex) deleteAt(status txitem.Status, it *txitem.Item) error {
	m, ok := idx.byStatus[status]
	if !ok {
		return ErrVfyStatusMissing
	}
	t, ok := m[it.Sender]
	if !ok {
		return ErrVfyStatusMissing
	}
	if _, had := t.Delete(it.Nonce); !had {
		return ErrVfyStatusMissing
	}
	idx.gasLimit[status][it.Sender] -= it.GasLimit
	idx.size--
	if t.Len() == 0 {
		delete(m, it.Sender)
	}
	return nil
}

// Move relocates it from oldStatus to newStatus, mutating it.Status in place
// after the delete from oldStatus succeeds and before the re-insert --
// mirroring TipIndex.Reorg's in-place update
// so every index keeps pointing at the same *Item (spec §3: Item is
// immutable apart from status and effective-tip).
func (idx *StatusIndex) Move(it *txitem.Item, oldStatus, newStatus txitem.Status) error {
	if err := idx.deleteAt(oldStatus, it); err != nil {
		return err
	}
	it.Status = newStatus
	if err := idx.insertAt(newStatus, it); err != nil {
		return err
	}
	return nil
}

// GasLimitFor returns the accumulated gas limit for (status, sender).
func (idx *StatusIndex) GasLimitFor(status txitem.Status, addr txitem.Address) uint64 {
	m, ok := idx.gasLimit[status]
	if !ok {
		return 0
	}
	return m[addr]
}
