// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package trie implements an in-memory hexary (Merkle-Patricia) trie database
// used by the snap-sync downloader to verify and import proved account and
// storage ranges, and to later heal the tree by fetching dangling children.
package trie

import (
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/luxfi/snapsync/corea/rangedesc"
	"github.com/luxfi/snapsync/log"
)

// Sentinel errors, matching the failure taxonomy of spec §4.2/§7.
var (
	ErrRlpEncoding                 = errors.New("trie: rlp encoding error")
	ErrAccountsNotStrictlyIncr     = errors.New("trie: accounts not strictly increasing")
	ErrAccountSmallerThanBase      = errors.New("trie: account smaller than base")
	ErrSlotsNotStrictlyIncreasing  = errors.New("trie: slots not strictly increasing")
	ErrUnresolvedRepairNode        = errors.New("trie: unresolved repair node")
	ErrBoundaryProofFailed         = errors.New("trie: boundary proof failed")
)

// NodeKind distinguishes the three shapes a hexary trie node can take.
type NodeKind uint8

const (
	KindLeaf NodeKind = iota
	KindExtension
	KindBranch
)

// Node is a decoded hexary trie node. Which fields are meaningful depends on
// Kind: Leaf uses PathSuffix+Value; Extension uses PathSuffix+Children[0];
// Branch uses Children (16 slots, any of which may be the zero NodeKey
// meaning "absent") and optionally Value for a value stored at the branch.
type Node struct {
	Kind       NodeKind
	PathSuffix []byte // nibbles, compact-header-decoded
	Value      []byte
	Children   [16]rangedesc.NodeKey

	// rlp is the raw encoding this node was imported from (or, for a node
	// synthesized by Interpolate, encoded to), kept alongside the decoded
	// fields.
	rlp []byte
}

// Db is an in-memory hexary trie database. Nodes are addressed by hash
// (rangedesc.NodeKey); a Db has no notion of "the" root, since many
// account/storage roots may be alive in one Db at once (one per pivot).
type Db struct {
	nodes map[rangedesc.NodeKey]*Node

	// codec is the RLP decoder + hasher this Db was built with. It is an
	// external collaborator (RLP codec and Keccak-256 are out of this
	// module's scope per spec §1) satisfied by the codec passed to New.
	codec Codec
}

// Codec is the external RLP + hashing collaborator a Db needs. Production
// callers wire this to the real RLP/Keccak-256 implementation; tests use a
// trivial fake.
type Codec interface {
	// DecodeNode parses a raw RLP node body into a Node. It must return
	// ErrRlpEncoding (wrapped) on malformed input.
	DecodeNode(rlp []byte) (*Node, error)
	// HashNode returns the Keccak-256 hash of rlp, which doubles as its
	// storage key.
	HashNode(rlp []byte) rangedesc.NodeKey
	// EncodeNode re-serializes a synthesized Node (used by Interpolate).
	EncodeNode(n *Node) ([]byte, error)
}

func New(codec Codec) *Db {
	return &Db{nodes: make(map[rangedesc.NodeKey]*Node), codec: codec}
}

func (db *Db) Get(key rangedesc.NodeKey) (*Node, bool) {
	n, ok := db.nodes[key]
	return n, ok
}

func (db *Db) put(key rangedesc.NodeKey, n *Node) { db.nodes[key] = n }

// Import hashes a single RLP-encoded node (the hash is its storage key),
// decodes and inserts it, and accumulates any children it references into refSet. seen avoids
// re-decoding a node already known by this hash (a bloom-filter-backed
// pre-check lives in front of this at the session layer, see triedb.Session).
func (db *Db) Import(rlpNode []byte, seen mapset.Set[rangedesc.NodeKey], refSet mapset.Set[rangedesc.NodeKey]) (rangedesc.NodeKey, error) {
	hash := db.codec.HashNode(rlpNode)
	if seen != nil && seen.Contains(hash) {
		return hash, nil
	}
	n, err := db.codec.DecodeNode(rlpNode)
	if err != nil {
		return rangedesc.NodeKey{}, fmt.Errorf("%w: %v", ErrRlpEncoding, err)
	}
	n.rlp = rlpNode
	db.put(hash, n)
	if seen != nil {
		seen.Add(hash)
	}
	if refSet != nil {
		for _, child := range childRefs(n) {
			refSet.Add(child)
		}
	}
	return hash, nil
}

func childRefs(n *Node) []rangedesc.NodeKey {
	var out []rangedesc.NodeKey
	switch n.Kind {
	case KindExtension:
		if n.Children[0] != (rangedesc.NodeKey{}) {
			out = append(out, n.Children[0])
		}
	case KindBranch:
		for _, c := range n.Children {
			if c != (rangedesc.NodeKey{}) {
				out = append(out, c)
			}
		}
	}
	return out
}

// MergeProofs imports every node in proofs, then deletes any node that is
// "free-standing": referenced by nothing reachable from root, unless
// allowFreeStanding is set. It also detects the opposite case -- a node
// referenced from root but never delivered in proofs -- and reports it via
// the returned dangling list rather than failing, since that's expected for
// a boundary proof of a partial range.
func (db *Db) MergeProofs(root rangedesc.NodeKey, proofs [][]byte, allowFreeStanding bool) (dangling []rangedesc.NodeKey, err error) {
	seen := mapset.NewThreadUnsafeSet[rangedesc.NodeKey]()
	refs := mapset.NewThreadUnsafeSet[rangedesc.NodeKey]()
	imported := mapset.NewThreadUnsafeSet[rangedesc.NodeKey]()
	for _, p := range proofs {
		h, err := db.Import(p, seen, refs)
		if err != nil {
			return nil, err
		}
		imported.Add(h)
	}

	reachable := db.reachableFrom(root)
	if !allowFreeStanding {
		for h := range imported.Iter() {
			if h == root {
				continue
			}
			if !reachable.Contains(h) {
				delete(db.nodes, h)
				log.Debug("trie: dropping free-standing proof node", "hash", h)
			}
		}
	}
	for h := range refs.Iter() {
		if !imported.Contains(h) && h != root {
			dangling = append(dangling, h)
		}
	}
	return dangling, nil
}

func (db *Db) reachableFrom(root rangedesc.NodeKey) mapset.Set[rangedesc.NodeKey] {
	reach := mapset.NewThreadUnsafeSet[rangedesc.NodeKey]()
	queue := []rangedesc.NodeKey{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if reach.Contains(cur) {
			continue
		}
		reach.Add(cur)
		n, ok := db.nodes[cur]
		if !ok {
			continue
		}
		queue = append(queue, childRefs(n)...)
	}
	return reach
}

// LeafSpec is one leaf to interpolate in, sorted order, for Interpolate.
type LeafSpec struct {
	Path  []byte // full nibble path (not a suffix)
	Value []byte
}

// Interpolate synthesizes all intermediate branch/extension nodes so the
// trie rooted at root is complete over [leaves[0].Path, lastPath], given a
// boundary-proof-seeded partial trie (the nodes MergeProofs already
// imported) and the sorted leaves themselves. It verifies the resulting
// root matches the supplied root.
func (db *Db) Interpolate(root rangedesc.NodeKey, leaves []LeafSpec, lastPath []byte) (rangedesc.NodeKey, error) {
	if len(leaves) == 0 {
		return root, nil
	}
	for i := 1; i < len(leaves); i++ {
		if compareNibbles(leaves[i-1].Path, leaves[i].Path) >= 0 {
			return rangedesc.NodeKey{}, ErrAccountsNotStrictlyIncr
		}
	}
	if compareNibbles(leaves[0].Path, lastPath) > 0 {
		return rangedesc.NodeKey{}, ErrAccountSmallerThanBase
	}

	built := db.buildSubtrie(leaves)
	hash, err := db.hashSubtrie(built)
	if err != nil {
		return rangedesc.NodeKey{}, err
	}
	if hash != root {
		return rangedesc.NodeKey{}, ErrBoundaryProofFailed
	}
	return hash, nil
}

// trieBuildNode is an intermediate, not-yet-hashed representation used only
// while constructing a subtrie from a leaf list.
type trieBuildNode struct {
	node     *Node
	children [16]*trieBuildNode
}

// buildSubtrie is a compressed-radix-tree construction over the nibble paths
// of leaves: group by shared prefix, recursing per distinct next nibble.
func (db *Db) buildSubtrie(leaves []LeafSpec) *trieBuildNode {
	if len(leaves) == 1 {
		return &trieBuildNode{node: &Node{Kind: KindLeaf, PathSuffix: leaves[0].Path, Value: leaves[0].Value}}
	}
	prefixLen := commonNibblePrefix(leaves[0].Path, leaves[len(leaves)-1].Path)
	groups := make(map[byte][]LeafSpec)
	var order []byte
	for _, l := range leaves {
		var nib byte
		if prefixLen < len(l.Path) {
			nib = l.Path[prefixLen]
		}
		if _, ok := groups[nib]; !ok {
			order = append(order, nib)
		}
		groups[nib] = append(groups[nib], l)
	}
	branch := &trieBuildNode{node: &Node{Kind: KindBranch}}
	for _, nib := range order {
		sub := db.buildSubtrie(trimPrefix(groups[nib], prefixLen+1))
		branch.children[nib] = sub
	}
	if prefixLen == 0 {
		return branch
	}
	return &trieBuildNode{
		node:     &Node{Kind: KindExtension, PathSuffix: leaves[0].Path[:prefixLen]},
		children: [16]*trieBuildNode{0: branch},
	}
}

func trimPrefix(leaves []LeafSpec, n int) []LeafSpec {
	out := make([]LeafSpec, len(leaves))
	for i, l := range leaves {
		path := l.Path
		if n <= len(path) {
			path = path[n:]
		} else {
			path = nil
		}
		out[i] = LeafSpec{Path: path, Value: l.Value}
	}
	return out
}

func (db *Db) hashSubtrie(b *trieBuildNode) (rangedesc.NodeKey, error) {
	n := b.node
	switch n.Kind {
	case KindExtension:
		childHash, err := db.hashSubtrie(b.children[0])
		if err != nil {
			return rangedesc.NodeKey{}, err
		}
		n.Children[0] = childHash
	case KindBranch:
		for i, c := range b.children {
			if c == nil {
				continue
			}
			h, err := db.hashSubtrie(c)
			if err != nil {
				return rangedesc.NodeKey{}, err
			}
			n.Children[i] = h
		}
	}
	enc, err := db.codec.EncodeNode(n)
	if err != nil {
		return rangedesc.NodeKey{}, fmt.Errorf("%w: %v", ErrRlpEncoding, err)
	}
	n.rlp = enc
	hash := db.codec.HashNode(enc)
	db.put(hash, n)
	return hash, nil
}

func commonNibblePrefix(a, b []byte) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func compareNibbles(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Path returns the list of nodes traversed from root to key, stopping early
// (with a non-empty Tail) if the trie doesn't yet have the node needed to go
// further -- the normal case for a partially-synced trie.
func (db *Db) Path(root rangedesc.NodeKey, key []byte) rangedesc.HexaryPath {
	var out rangedesc.HexaryPath
	cur := root
	remaining := key
	consumed := func() []byte { return key[:len(key)-len(remaining)] }
	for {
		n, ok := db.nodes[cur]
		if !ok {
			out.Tail = remaining
			out.Consumed = consumed()
			return out
		}
		out.Nodes = append(out.Nodes, cur)
		switch n.Kind {
		case KindLeaf:
			if hasPrefix(remaining, n.PathSuffix) {
				out.Tail = nil
				remaining = remaining[len(n.PathSuffix):]
			} else {
				out.Tail = remaining
			}
			out.Consumed = consumed()
			return out
		case KindExtension:
			if !hasPrefix(remaining, n.PathSuffix) {
				out.Tail = remaining
				out.Consumed = consumed()
				return out
			}
			remaining = remaining[len(n.PathSuffix):]
			cur = n.Children[0]
		case KindBranch:
			if len(remaining) == 0 {
				out.Tail = nil
				out.Consumed = consumed()
				return out
			}
			nib := remaining[0]
			child := n.Children[nib]
			if child == (rangedesc.NodeKey{}) {
				out.Tail = remaining
				out.Consumed = consumed()
				return out
			}
			remaining = remaining[1:]
			cur = child
		}
	}
}

func hasPrefix(s, prefix []byte) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Next returns the in-order successor leaf path of p, or nil if p already
// names the rightmost leaf of the trie as currently known.
func (db *Db) Next(root rangedesc.NodeKey, p rangedesc.HexaryPath) []byte {
	return db.adjacentLeaf(root, p, true)
}

// Prev returns the in-order predecessor leaf path of p.
func (db *Db) Prev(root rangedesc.NodeKey, p rangedesc.HexaryPath) []byte {
	return db.adjacentLeaf(root, p, false)
}

// branchFrame records one branch node visited while re-walking Consumed:
// the nibble prefix leading up to (not including) the branch's own nibble
// decision, and which nibble was actually taken.
type branchFrame struct {
	node   *Node
	prefix []byte
	taken  byte
}

// adjacentLeaf finds the in-order successor (forward) or predecessor
// (!forward) leaf path of p. It re-walks p.Consumed from root to recover
// the nibble each branch node along the way took -- p.Nodes alone doesn't
// carry that -- then walks that branch stack from the deepest frame
// upward, looking for the nearest branch with an unvisited child strictly
// beyond (forward) or before (!forward) the nibble taken, descending to
// that child's extreme (leftmost/rightmost) leaf.
func (db *Db) adjacentLeaf(root rangedesc.NodeKey, p rangedesc.HexaryPath, forward bool) []byte {
	var frames []branchFrame
	cur := root
	remaining := p.Consumed
	for len(remaining) > 0 {
		n, ok := db.nodes[cur]
		if !ok {
			break
		}
		switch n.Kind {
		case KindLeaf:
			remaining = nil
		case KindExtension:
			if !hasPrefix(remaining, n.PathSuffix) {
				remaining = nil
				break
			}
			remaining = remaining[len(n.PathSuffix):]
			cur = n.Children[0]
		case KindBranch:
			prefix := p.Consumed[:len(p.Consumed)-len(remaining)]
			nib := remaining[0]
			frames = append(frames, branchFrame{node: n, prefix: prefix, taken: nib})
			child := n.Children[nib]
			if child == (rangedesc.NodeKey{}) {
				remaining = nil
				break
			}
			remaining = remaining[1:]
			cur = child
		}
	}

	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		lo, hi, step := int(f.taken)+1, 16, 1
		if !forward {
			lo, hi, step = int(f.taken)-1, -1, -1
		}
		for nib := lo; nib != hi; nib += step {
			if f.node.Children[nib] != (rangedesc.NodeKey{}) {
				path := make([]byte, 0, len(f.prefix)+1)
				path = append(path, f.prefix...)
				path = append(path, byte(nib))
				path = append(path, db.descend(f.node.Children[nib], forward)...)
				return path
			}
		}
	}
	return nil
}

func (db *Db) descend(start rangedesc.NodeKey, forward bool) []byte {
	cur := start
	var path []byte
	for {
		n, ok := db.nodes[cur]
		if !ok {
			return path
		}
		switch n.Kind {
		case KindLeaf:
			return append(path, n.PathSuffix...)
		case KindExtension:
			path = append(path, n.PathSuffix...)
			cur = n.Children[0]
		case KindBranch:
			if forward {
				for nib := 0; nib < 16; nib++ {
					if n.Children[nib] != (rangedesc.NodeKey{}) {
						path = append(path, byte(nib))
						cur = n.Children[nib]
						break
					}
				}
			} else {
				for nib := 15; nib >= 0; nib-- {
					if n.Children[nib] != (rangedesc.NodeKey{}) {
						path = append(path, byte(nib))
						cur = n.Children[nib]
						break
					}
				}
			}
		}
	}
}
