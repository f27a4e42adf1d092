// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txindex

import (
	"github.com/luxfi/snapsync/coreb/txitem"
)

func nonceLess(a, b uint64) bool { return a < b }

// nonceTree is an ordered nonce -> item map.
type nonceTree = orderedMap[uint64, *txitem.Item]

func newNonceTree() *nonceTree { return newOrderedMap[uint64, *txitem.Item](nonceLess) }

// SenderSchedule holds one sender's "all" nonce-tree plus one per-status
// nonce-tree, and the accumulated gas-limit totals used for block-planning.
//
// Resolves spec §9's Open Question: the source's Sender-Schedule is
// modeled WITHOUT an isLocalList distinction (the newer, simpler layout is
// picked, per DESIGN.md).
type SenderSchedule struct {
	All      *nonceTree
	ByStatus map[txitem.Status]*nonceTree

	AllGasLimit    uint64
	StatusGasLimit map[txitem.Status]uint64
}

func newSenderSchedule() *SenderSchedule {
	return &SenderSchedule{
		All:            newNonceTree(),
		ByStatus:       make(map[txitem.Status]*nonceTree),
		StatusGasLimit: make(map[txitem.Status]uint64),
	}
}

func (s *SenderSchedule) statusTree(status txitem.Status) *nonceTree {
	t, ok := s.ByStatus[status]
	if !ok {
		t = newNonceTree()
		s.ByStatus[status] = t
	}
	return t
}

// SenderIndex is the sender -> {all, per-status} -> nonce -> item index of
// spec §3/§4.8.
type SenderIndex struct {
	senders map[txitem.Address]*SenderSchedule
	size    int
}

func NewSenderIndex() *SenderIndex {
	return &SenderIndex{senders: make(map[txitem.Address]*SenderSchedule)}
}

func (idx *SenderIndex) Size() int { return idx.size }

func (idx *SenderIndex) Schedule(addr txitem.Address) (*SenderSchedule, bool) {
	s, ok := idx.senders[addr]
	return s, ok
}

// Insert implements spec §4.8's four-step insert: look up or create the
// schedule, insert into "all" (rejecting a duplicate nonce), mirror into the
// status tree, and update gas-limit accounting.
func (idx *SenderIndex) Insert(it *txitem.Item) error {
	sched, ok := idx.senders[it.Sender]
	if !ok {
		sched = newSenderSchedule()
		idx.senders[it.Sender] = sched
	}
	if sched.All.Contains(it.Nonce) {
		return ErrVfySenderDuplicate
	}
	sched.All.Put(it.Nonce, it)
	sched.statusTree(it.Status).Put(it.Nonce, it)

	sched.AllGasLimit += it.GasLimit
	sched.StatusGasLimit[it.Status] += it.GasLimit
	idx.size++
	return nil
}

// Delete reverses Insert, collapsing the sender entry entirely once "all"
// becomes empty.
func (idx *SenderIndex) Delete(it *txitem.Item) error {
	sched, ok := idx.senders[it.Sender]
	if !ok {
		return ErrVfySenderLeafEmpty
	}
	if _, had := sched.All.Delete(it.Nonce); !had {
		return ErrVfySenderLeafEmpty
	}
	st := sched.statusTree(it.Status)
	if _, had := st.Delete(it.Nonce); !had {
		return ErrVfySenderRbTree
	}

	sched.AllGasLimit -= it.GasLimit
	sched.StatusGasLimit[it.Status] -= it.GasLimit
	idx.size--

	if sched.All.Len() == 0 {
		delete(idx.senders, it.Sender)
	}
	return nil
}

// UpdateStatus moves it from its old status bucket to newStatus within the
// same sender schedule, without touching "all".
func (idx *SenderIndex) UpdateStatus(it *txitem.Item, oldStatus, newStatus txitem.Status) error {
	sched, ok := idx.senders[it.Sender]
	if !ok {
		return ErrVfySenderLeafEmpty
	}
	oldTree := sched.statusTree(oldStatus)
	if _, had := oldTree.Delete(it.Nonce); !had {
		return ErrVfyStatusMissing
	}
	sched.StatusGasLimit[oldStatus] -= it.GasLimit
	sched.statusTree(newStatus).Put(it.Nonce, it)
	sched.StatusGasLimit[newStatus] += it.GasLimit
	return nil
}

// Get looks up a sender's item by nonce in "all".
func (idx *SenderIndex) Get(addr txitem.Address, nonce uint64) (*txitem.Item, bool) {
	sched, ok := idx.senders[addr]
	if !ok {
		return nil, false
	}
	return sched.All.Get(nonce)
}
