// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rangedesc defines the 32-byte node-key types shared by the snap-sync
// downloader: NodeKey (an opaque hashable identifier) and NodeTag (the same
// bits read as an unsigned 256-bit integer for interval arithmetic).
package rangedesc

import (
	"fmt"

	"github.com/holiman/uint256"
)

// NodeKey is an opaque 32-byte identifier for a trie node or leaf. It is
// comparable and usable as a map key.
type NodeKey [32]byte

// NodeKeyFromBytes copies b into a NodeKey, left-padding with zero bytes if
// b is shorter than 32 bytes.
func NodeKeyFromBytes(b []byte) NodeKey {
	var k NodeKey
	if len(b) >= 32 {
		copy(k[:], b[len(b)-32:])
		return k
	}
	copy(k[32-len(b):], b)
	return k
}

func (k NodeKey) Bytes() []byte { return k[:] }

func (k NodeKey) String() string { return fmt.Sprintf("%x", k[:]) }

// Tag reinterprets the key's bits as an unsigned 256-bit integer, big-endian.
func (k NodeKey) Tag() NodeTag {
	var t NodeTag
	t.u.SetBytes32(k[:])
	return t
}

// NodeTag is NodeKey's bits read as an unsigned 256-bit integer. The bijection
// between NodeKey and NodeTag is total: k.Tag().Key() == k for every k.
type NodeTag struct {
	u uint256.Int
}

// NodeTagFromUint64 builds a small NodeTag, useful in tests and for the
// space's low and high bounds.
func NodeTagFromUint64(v uint64) NodeTag {
	var t NodeTag
	t.u.SetUint64(v)
	return t
}

// NodeTagFromBig builds a NodeTag from a uint256.Int, taking ownership of a copy.
func NodeTagFromBig(v *uint256.Int) NodeTag {
	var t NodeTag
	t.u.Set(v)
	return t
}

// Zero is the smallest possible tag, 0.
func Zero() NodeTag { return NodeTag{} }

// Max is the largest possible tag, 2**256 - 1.
func Max() NodeTag {
	var t NodeTag
	t.u.Sub(&uint256.Int{}, uint256.NewInt(1)) // wraps to all-ones
	return t
}

func (t NodeTag) Key() NodeKey {
	var k NodeKey
	b := t.u.Bytes32()
	copy(k[:], b[:])
	return k
}

func (t NodeTag) Uint256() *uint256.Int { return new(uint256.Int).Set(&t.u) }

func (t NodeTag) Cmp(o NodeTag) int { return t.u.Cmp(&o.u) }

func (t NodeTag) Eq(o NodeTag) bool { return t.u.Eq(&o.u) }

func (t NodeTag) Lt(o NodeTag) bool { return t.u.Lt(&o.u) }

func (t NodeTag) Gt(o NodeTag) bool { return t.u.Gt(&o.u) }

// Add returns t+delta, saturating at Max rather than wrapping.
func (t NodeTag) Add(delta uint64) NodeTag {
	var sum uint256.Int
	sum.AddUint64(&t.u, delta)
	if sum.Lt(&t.u) { // overflow
		return Max()
	}
	return NodeTag{u: sum}
}

// AddTag returns t+delta, saturating at Max rather than wrapping. Unlike
// Add, delta is a full 256-bit NodeTag rather than a uint64, so it doesn't
// truncate a width derived from the full key space (e.g. 2**256/1000).
func (t NodeTag) AddTag(delta NodeTag) NodeTag {
	var sum uint256.Int
	sum.Add(&t.u, &delta.u)
	if sum.Lt(&t.u) { // overflow
		return Max()
	}
	return NodeTag{u: sum}
}

// Sub returns t-delta, saturating at Zero rather than wrapping.
func (t NodeTag) Sub(delta uint64) NodeTag {
	var d uint256.Int
	d.SetUint64(delta)
	if d.Gt(&t.u) {
		return Zero()
	}
	var diff uint256.Int
	diff.Sub(&t.u, &d)
	return NodeTag{u: diff}
}

// IsMax reports whether t is the top of the key space, 2**256-1.
func (t NodeTag) IsMax() bool {
	return t.Eq(Max())
}

func (t NodeTag) String() string { return t.u.Hex() }

// HexaryPath is the list of NodeKeys traversed from the root to a key or to
// the point the trie ran out of nodes (a "dead end").
type HexaryPath struct {
	Nodes []NodeKey
	Tail  []byte // remaining nibbles not resolved; empty means the path ended at a leaf

	// Consumed is the nibble prefix of the queried key actually resolved by
	// Nodes (i.e. the key minus Tail). Next/Prev re-walk Consumed from the
	// root to recover which nibble each branch along the way took, since
	// Nodes alone doesn't record that.
	Consumed []byte
}

// NodeSpec names a single node the healer or fetcher wants: its path from the
// root (as nibbles) and, once known, its hash.
type NodeSpec struct {
	Path []byte
	Hash NodeKey
}

func (n NodeSpec) String() string {
	return fmt.Sprintf("NodeSpec{path=%x hash=%s}", n.Path, n.Hash)
}

// PrettyRange renders [lo,hi] the way operational logs want to see it: short
// hex prefixes rather than full 64-digit tags.
func PrettyRange(lo, hi NodeTag) string {
	return fmt.Sprintf("[%s..%s]", shortHex(lo), shortHex(hi))
}

func shortHex(t NodeTag) string {
	s := t.u.Hex()
	if len(s) > 10 {
		return s[:10] + "…"
	}
	return s
}
