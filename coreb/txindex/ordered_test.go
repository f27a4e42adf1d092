// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package txindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderedMapPutGetDelete(t *testing.T) {
	m := newOrderedMap[uint64, string](nonceLess)
	_, had := m.Put(1, "a")
	require.False(t, had)
	_, had = m.Put(1, "a-v2")
	require.True(t, had)

	v, ok := m.Get(1)
	require.True(t, ok)
	require.Equal(t, "a-v2", v)

	require.True(t, m.Contains(1))
	require.False(t, m.Contains(2))

	v, had = m.Delete(1)
	require.True(t, had)
	require.Equal(t, "a-v2", v)
	require.Equal(t, 0, m.Len())
}

func TestOrderedMapGeLe(t *testing.T) {
	m := newOrderedMap[uint64, string](nonceLess)
	m.Put(10, "ten")
	m.Put(20, "twenty")
	m.Put(30, "thirty")

	k, v, ok := m.Ge(15)
	require.True(t, ok)
	require.Equal(t, uint64(20), k)
	require.Equal(t, "twenty", v)

	k, v, ok = m.Le(25)
	require.True(t, ok)
	require.Equal(t, uint64(20), k)
	require.Equal(t, "twenty", v)

	_, _, ok = m.Ge(31)
	require.False(t, ok)
	_, _, ok = m.Le(9)
	require.False(t, ok)
}

func TestOrderedMapFirstLast(t *testing.T) {
	m := newOrderedMap[uint64, string](nonceLess)
	_, _, ok := m.First()
	require.False(t, ok)

	m.Put(5, "five")
	m.Put(1, "one")
	m.Put(9, "nine")

	k, _, ok := m.First()
	require.True(t, ok)
	require.Equal(t, uint64(1), k)

	k, _, ok = m.Last()
	require.True(t, ok)
	require.Equal(t, uint64(9), k)
}

func TestOrderedMapAscendOrder(t *testing.T) {
	m := newOrderedMap[uint64, string](nonceLess)
	m.Put(3, "c")
	m.Put(1, "a")
	m.Put(2, "b")

	var keys []uint64
	m.Ascend(func(k uint64, _ string) bool {
		keys = append(keys, k)
		return true
	})
	require.Equal(t, []uint64{1, 2, 3}, keys)
}
