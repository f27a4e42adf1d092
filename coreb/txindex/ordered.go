// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package txindex implements the pool's four nested sorted-map indexes: by
// (sender, nonce), by (status, sender, nonce), by (effective-tip, nonce),
// and by gas-tip-cap.
package txindex

import (
	"github.com/google/btree"
)

// entry is a single (key, value) pair stored in an orderedMap, comparable by
// key via the supplied less function.
type entry[K any, V any] struct {
	key   K
	value V
}

// orderedMap is a thin wrapper around google/btree's generic BTreeG giving
// map-like Get/Put/Delete plus the range queries (Ge/Le/First/Last) spec §4
// requires of every level of every index.
type orderedMap[K any, V any] struct {
	tree *btree.BTreeG[entry[K, V]]
	less func(a, b K) bool
}

func newOrderedMap[K any, V any](less func(a, b K) bool) *orderedMap[K, V] {
	lessEntry := func(a, b entry[K, V]) bool { return less(a.key, b.key) }
	return &orderedMap[K, V]{tree: btree.NewG(32, lessEntry), less: less}
}

func (m *orderedMap[K, V]) Get(k K) (V, bool) {
	e, ok := m.tree.Get(entry[K, V]{key: k})
	return e.value, ok
}

func (m *orderedMap[K, V]) Contains(k K) bool {
	_, ok := m.tree.Get(entry[K, V]{key: k})
	return ok
}

// Put inserts or replaces k's value, returning the previous value if any.
func (m *orderedMap[K, V]) Put(k K, v V) (V, bool) {
	old, had := m.tree.ReplaceOrInsert(entry[K, V]{key: k, value: v})
	return old.value, had
}

func (m *orderedMap[K, V]) Delete(k K) (V, bool) {
	old, had := m.tree.Delete(entry[K, V]{key: k})
	return old.value, had
}

func (m *orderedMap[K, V]) Len() int { return m.tree.Len() }

// Ge returns the least key >= k.
func (m *orderedMap[K, V]) Ge(k K) (K, V, bool) {
	var zk K
	var zv V
	found := false
	m.tree.AscendGreaterOrEqual(entry[K, V]{key: k}, func(e entry[K, V]) bool {
		zk, zv, found = e.key, e.value, true
		return false
	})
	return zk, zv, found
}

// Le returns the greatest key <= k.
func (m *orderedMap[K, V]) Le(k K) (K, V, bool) {
	var zk K
	var zv V
	found := false
	m.tree.DescendLessOrEqual(entry[K, V]{key: k}, func(e entry[K, V]) bool {
		zk, zv, found = e.key, e.value, true
		return false
	})
	return zk, zv, found
}

func (m *orderedMap[K, V]) First() (K, V, bool) {
	var zk K
	var zv V
	found := false
	m.tree.Ascend(func(e entry[K, V]) bool {
		zk, zv, found = e.key, e.value, true
		return false
	})
	return zk, zv, found
}

func (m *orderedMap[K, V]) Last() (K, V, bool) {
	var zk K
	var zv V
	found := false
	m.tree.Descend(func(e entry[K, V]) bool {
		zk, zv, found = e.key, e.value, true
		return false
	})
	return zk, zv, found
}

// Ascend calls fn in increasing key order until fn returns false.
func (m *orderedMap[K, V]) Ascend(fn func(k K, v V) bool) {
	m.tree.Ascend(func(e entry[K, V]) bool { return fn(e.key, e.value) })
}
