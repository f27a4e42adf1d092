// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package triedb

import (
	"encoding/binary"

	"github.com/holiman/bloomfilter/v2"

	"github.com/luxfi/snapsync/corea/rangedesc"
)

// bloomHasher adapts a rangedesc.NodeKey (already a Keccak-256 digest) to the
// hash.Hash64 shape bloomfilter/v2 wants, reusing the high bits of the
// digest itself rather than re-hashing -- mirrors the teacher's sync bloom.
type bloomHasher rangedesc.NodeKey

func (h bloomHasher) Write(p []byte) (int, error) { panic("not implemented") }
func (h bloomHasher) Sum(b []byte) []byte         { panic("not implemented") }
func (h bloomHasher) Reset()                      {}
func (h bloomHasher) BlockSize() int              { return 32 }
func (h bloomHasher) Size() int                   { return 8 }
func (h bloomHasher) Sum64() uint64                { return binary.BigEndian.Uint64(h[:8]) }

// NodeBloom is a probabilistic pre-check sitting in front of a Session's
// authoritative seen-set, so a repeat node delivered by an overlapping
// account/storage range can be skipped before paying for a trie.Db.Import
// decode (spec §5/§6: the session layer owns dedup ahead of the importer).
// False positives only cost an extra decode; false negatives are impossible
// by construction (bloom filters never under-report membership).
type NodeBloom struct {
	f *bloomfilter.Filter
}

// NewNodeBloom sizes a filter for roughly n expected distinct nodes at the
// given false-positive rate.
func NewNodeBloom(n uint64, falsePositiveRate float64) (*NodeBloom, error) {
	f, err := bloomfilter.NewOptimal(n, falsePositiveRate)
	if err != nil {
		return nil, err
	}
	return &NodeBloom{f: f}, nil
}

func (b *NodeBloom) Add(key rangedesc.NodeKey) { b.f.Add(bloomHasher(key)) }

// MaybeSeen reports whether key was possibly added before. false is
// authoritative; true needs confirming against the real seen-set.
func (b *NodeBloom) MaybeSeen(key rangedesc.NodeKey) bool { return b.f.Contains(bloomHasher(key)) }
