// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package trie

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/luxfi/snapsync/corea/rangedesc"
)

// fakeCodec is a deliberately simple stand-in for the real RLP + Keccak-256
// collaborator (out of scope per spec §1): a length-prefixed custom framing
// plus an FNV-1a hash. Good enough to exercise Db's own logic in tests.
type fakeCodec struct{}

const (
	tagLeaf = iota
	tagExtension
	tagBranch
)

func (fakeCodec) EncodeNode(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	switch n.Kind {
	case KindLeaf:
		buf.WriteByte(tagLeaf)
		writeBytes(&buf, n.PathSuffix)
		writeBytes(&buf, n.Value)
	case KindExtension:
		buf.WriteByte(tagExtension)
		writeBytes(&buf, n.PathSuffix)
		buf.Write(n.Children[0][:])
	case KindBranch:
		buf.WriteByte(tagBranch)
		for _, c := range n.Children {
			buf.Write(c[:])
		}
		writeBytes(&buf, n.Value)
	default:
		return nil, fmt.Errorf("unknown node kind %d", n.Kind)
	}
	return buf.Bytes(), nil
}

func (fakeCodec) DecodeNode(raw []byte) (*Node, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrRlpEncoding)
	}
	r := bytes.NewReader(raw)
	kind, _ := r.ReadByte()
	n := &Node{}
	switch kind {
	case tagLeaf:
		n.Kind = KindLeaf
		var err error
		if n.PathSuffix, err = readBytes(r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRlpEncoding, err)
		}
		if n.Value, err = readBytes(r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRlpEncoding, err)
		}
	case tagExtension:
		n.Kind = KindExtension
		var err error
		if n.PathSuffix, err = readBytes(r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRlpEncoding, err)
		}
		var child rangedesc.NodeKey
		if _, err := r.Read(child[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRlpEncoding, err)
		}
		n.Children[0] = child
	case tagBranch:
		n.Kind = KindBranch
		for i := 0; i < 16; i++ {
			var c rangedesc.NodeKey
			if _, err := r.Read(c[:]); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRlpEncoding, err)
			}
			n.Children[i] = c
		}
		var err error
		if n.Value, err = readBytes(r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRlpEncoding, err)
		}
	default:
		return nil, fmt.Errorf("%w: bad kind %d", ErrRlpEncoding, kind)
	}
	return n, nil
}

func (fakeCodec) HashNode(raw []byte) rangedesc.NodeKey {
	h := fnv.New128a()
	h.Write(raw)
	sum := h.Sum(nil)
	var k rangedesc.NodeKey
	copy(k[:], sum)
	return k
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	out := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}
