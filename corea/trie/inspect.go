// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package trie

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/luxfi/snapsync/corea/rangedesc"
)

// DefaultPlanBLevel is the fallback recursion depth used when a direct BFS
// inspection pass turns up nothing (see Inspect), visiting up to roughly
// 64 Ki nodes before giving up.
const DefaultPlanBLevel = 4

// PlanBVisitBudget bounds the number of nodes visited during a plan-B
// recursive inspection pass.
const PlanBVisitBudget = 64 * 1024

// seedPath pairs a starting node with the path nibbles already consumed to
// reach it, so dangling references found below it can be reported with a
// full path.
type seedPath struct {
	key  rangedesc.NodeKey
	path []byte
}

// Inspect walks the trie rooted at root starting from seedPaths (or just
// root if seedPaths is empty), collecting nodes that are referenced by a
// present node but not themselves present in the Db ("dangling"). The walk
// stops once it has visited budget nodes (0 means unbounded). If the direct
// pass yields nothing and planBLevel > 0, Inspect falls back to a deeper
// recursive exploration bounded by PlanBVisitBudget.
func (db *Db) Inspect(root rangedesc.NodeKey, seedPaths []rangedesc.NodeSpec, budget int, planBLevel int) []rangedesc.NodeSpec {
	dangling := db.inspectOnce(root, seedPaths, budget)
	if len(dangling) > 0 || planBLevel <= 0 {
		return dangling
	}
	return db.inspectPlanB(root, seedPaths, planBLevel)
}

func (db *Db) inspectOnce(root rangedesc.NodeKey, seedPaths []rangedesc.NodeSpec, budget int) []rangedesc.NodeSpec {
	visited := mapset.NewThreadUnsafeSet[rangedesc.NodeKey]()
	var queue []seedPath
	if len(seedPaths) == 0 {
		queue = append(queue, seedPath{key: root})
	} else {
		for _, s := range seedPaths {
			queue = append(queue, seedPath{key: s.Hash, path: s.Path})
		}
	}

	var dangling []rangedesc.NodeSpec
	visitedCount := 0
	for len(queue) > 0 {
		if budget > 0 && visitedCount >= budget {
			break
		}
		cur := queue[0]
		queue = queue[1:]
		if visited.Contains(cur.key) {
			continue
		}
		visited.Add(cur.key)
		visitedCount++

		n, ok := db.nodes[cur.key]
		if !ok {
			dangling = append(dangling, rangedesc.NodeSpec{Path: cur.path, Hash: cur.key})
			continue
		}
		for nib, child := range childPaths(n) {
			if child == (rangedesc.NodeKey{}) {
				continue
			}
			childPath := append(append([]byte{}, cur.path...), nibbleSuffix(n, nib)...)
			queue = append(queue, seedPath{key: child, path: childPath})
		}
	}
	return dangling
}

// nibbleSuffix returns the nibbles consumed walking from n to child nib
// (for extensions, that's the whole path suffix; for branches, one nibble).
func nibbleSuffix(n *Node, nib int) []byte {
	switch n.Kind {
	case KindExtension:
		return n.PathSuffix
	case KindBranch:
		return []byte{byte(nib)}
	default:
		return nil
	}
}

// childPaths enumerates a node's children as (slot-index, key) pairs; for an
// extension the single child is reported at slot 0.
func childPaths(n *Node) map[int]rangedesc.NodeKey {
	out := make(map[int]rangedesc.NodeKey)
	switch n.Kind {
	case KindExtension:
		out[0] = n.Children[0]
	case KindBranch:
		for i, c := range n.Children {
			out[i] = c
		}
	}
	return out
}

// inspectPlanB performs a bounded-depth recursive re-exploration when the
// direct pass found no dangling nodes -- e.g. because the seed paths
// themselves are stale. It revisits up to planBLevel levels below each seed,
// within PlanBVisitBudget total node visits.
func (db *Db) inspectPlanB(root rangedesc.NodeKey, seedPaths []rangedesc.NodeSpec, planBLevel int) []rangedesc.NodeSpec {
	var dangling []rangedesc.NodeSpec
	visited := 0
	var walk func(key rangedesc.NodeKey, path []byte, depth int)
	walk = func(key rangedesc.NodeKey, path []byte, depth int) {
		if visited >= PlanBVisitBudget || depth > planBLevel {
			return
		}
		visited++
		n, ok := db.nodes[key]
		if !ok {
			dangling = append(dangling, rangedesc.NodeSpec{Path: path, Hash: key})
			return
		}
		for nib, child := range childPaths(n) {
			if child == (rangedesc.NodeKey{}) {
				continue
			}
			childPath := append(append([]byte{}, path...), nibbleSuffix(n, nib)...)
			walk(child, childPath, depth+1)
		}
	}
	if len(seedPaths) == 0 {
		walk(root, nil, 0)
	} else {
		for _, s := range seedPaths {
			walk(s.Hash, s.Path, 0)
		}
	}
	return dangling
}
