// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fetcher

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/luxfi/snapsync/corea/rangedesc"
	"github.com/luxfi/snapsync/corea/trie"
)

// fakeCodec mirrors corea/trie's test codec: a trivial length-prefixed
// framing plus an FNV hash, standing in for the out-of-scope RLP/Keccak-256
// collaborator (spec §1).
type fakeCodec struct{}

const (
	tagLeaf = iota
	tagExtension
	tagBranch
)

func (fakeCodec) EncodeNode(n *trie.Node) ([]byte, error) {
	var buf bytes.Buffer
	switch n.Kind {
	case trie.KindLeaf:
		buf.WriteByte(tagLeaf)
		writeBytes(&buf, n.PathSuffix)
		writeBytes(&buf, n.Value)
	case trie.KindExtension:
		buf.WriteByte(tagExtension)
		writeBytes(&buf, n.PathSuffix)
		buf.Write(n.Children[0][:])
	case trie.KindBranch:
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

func (fakeCodec) DecodeNode(raw []byte) (*trie.Node, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty", trie.ErrRlpEncoding)
	}
	r := bytes.NewReader(raw)
	kind, _ := r.ReadByte()
	n := &trie.Node{}
	switch kind {
	case tagLeaf:
		n.Kind = trie.KindLeaf
		var err error
		if n.PathSuffix, err = readBytes(r); err != nil {
			return nil, fmt.Errorf("%w: %v", trie.ErrRlpEncoding, err)
		}
		if n.Value, err = readBytes(r); err != nil {
			return nil, fmt.Errorf("%w: %v", trie.ErrRlpEncoding, err)
		}
	case tagExtension:
		n.Kind = trie.KindExtension
		var err error
		if n.PathSuffix, err = readBytes(r); err != nil {
			return nil, fmt.Errorf("%w: %v", trie.ErrRlpEncoding, err)
		}
		var child rangedesc.NodeKey
		if _, err := r.Read(child[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", trie.ErrRlpEncoding, err)
		}
		n.Children[0] = child
	case tagBranch:
		n.Kind = trie.KindBranch
		for i := 0; i < 16; i++ {
			var c rangedesc.NodeKey
			if _, err := r.Read(c[:]); err != nil {
				return nil, fmt.Errorf("%w: %v", trie.ErrRlpEncoding, err)
			}
			n.Children[i] = c
		}
		var err error
		if n.Value, err = readBytes(r); err != nil {
			return nil, fmt.Errorf("%w: %v", trie.ErrRlpEncoding, err)
		}
	default:
		return nil, fmt.Errorf("%w: bad kind %d", trie.ErrRlpEncoding, kind)
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
