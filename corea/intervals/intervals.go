// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package intervals implements disjoint-interval algebra over the 256-bit
// node-key space, as used by the snap-sync downloader to track which key
// ranges remain to be fetched.
package intervals

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/luxfi/snapsync/corea/rangedesc"
)

// Interval is a closed range [Lo, Hi] of the key space, Lo <= Hi.
type Interval struct {
	Lo rangedesc.NodeTag
	Hi rangedesc.NodeTag
}

func New(lo, hi rangedesc.NodeTag) Interval { return Interval{Lo: lo, Hi: hi} }

// Full spans the entire 256-bit space.
func Full() Interval { return Interval{Lo: rangedesc.Zero(), Hi: rangedesc.Max()} }

// Total reports the set's cardinality. Because the key space is 2**256, a set
// consisting of exactly the full range cannot be represented as a finite
// uint256 count; that case is flagged by Chunks == 1 && Total.IsZero().
type Total struct {
	Total  uint256.Int
	Chunks int
}

// Set is a sorted slice of disjoint, non-adjacent intervals. The zero value
// is an empty set. Not safe for concurrent use; callers serialize access the
// same way the rest of the sync core does (single-tasklet ownership).
type Set struct {
	ivs []Interval
}

func NewSet() *Set { return &Set{} }

// NewSetFrom seeds a set with a single interval.
func NewSetFrom(iv Interval) *Set {
	return &Set{ivs: []Interval{iv}}
}

// Intervals returns the set's intervals in increasing order by Lo. The
// returned slice must not be mutated by the caller.
func (s *Set) Intervals() []Interval { return s.ivs }

func (s *Set) IsEmpty() bool { return len(s.ivs) == 0 }

func (s *Set) Len() int { return len(s.ivs) }

func width(iv Interval) uint256.Int {
	var w uint256.Int
	w.Sub(iv.Hi.Uint256(), iv.Lo.Uint256())
	w.AddUint64(&w, 1)
	return w
}

// Width returns the number of points in iv ([Lo,Hi] inclusive).
func (iv Interval) Width() uint256.Int { return width(iv) }

func adjacentOrOverlap(a, b Interval) bool {
	// a.Hi+1 >= b.Lo, guarding overflow at Max.
	if a.Hi.IsMax() {
		return true
	}
	return !a.Hi.Add(1).Lt(b.Lo)
}

// Merge adds iv to the set, coalescing with any adjacent or overlapping
// intervals, and returns the number of newly covered points (as a uint256,
// since a single merge can cover up to 2**256 points).
func (s *Set) Merge(iv Interval) uint256.Int {
	if iv.Hi.Lt(iv.Lo) {
		return uint256.Int{}
	}
	// Find insertion range: all existing intervals overlapping-or-adjacent to iv.
	lo, hi := iv.Lo, iv.Hi
	start := sort.Search(len(s.ivs), func(i int) bool {
		return !s.ivs[i].Hi.Add(1).Lt(lo) || s.ivs[i].Hi.IsMax()
	})
	end := start
	for end < len(s.ivs) && !hi.Add(1).Lt(s.ivs[end].Lo) {
		if adjacentOrOverlap(Interval{Lo: lo, Hi: hi}, s.ivs[end]) || adjacentOrOverlap(s.ivs[end], Interval{Lo: lo, Hi: hi}) {
			if s.ivs[end].Lo.Lt(lo) {
				lo = s.ivs[end].Lo
			}
			if hi.Lt(s.ivs[end].Hi) {
				hi = s.ivs[end].Hi
			}
			end++
			continue
		}
		break
	}

	merged := Interval{Lo: lo, Hi: hi}
	var before uint256.Int
	for i := start; i < end; i++ {
		w := width(s.ivs[i])
		before.Add(&before, &w)
	}
	total := width(merged)
	var delta uint256.Int
	delta.Sub(&total, &before)

	tail := append([]Interval{}, s.ivs[end:]...)
	s.ivs = append(s.ivs[:start], merged)
	s.ivs = append(s.ivs, tail...)
	return delta
}

// Reduce removes iv from the set, splitting any interval that straddles one
// of iv's endpoints, and returns the number of newly uncovered points.
func (s *Set) Reduce(iv Interval) uint256.Int {
	if iv.Hi.Lt(iv.Lo) {
		return uint256.Int{}
	}
	var removed uint256.Int
	out := s.ivs[:0:0]
	for _, cur := range s.ivs {
		// No overlap.
		if cur.Hi.Lt(iv.Lo) || iv.Hi.Lt(cur.Lo) {
			out = append(out, cur)
			continue
		}
		// Overlap: compute the covered sub-range and the surviving pieces.
		covLo := cur.Lo
		if iv.Lo.Gt(covLo) {
			covLo = iv.Lo
		}
		covHi := cur.Hi
		if iv.Hi.Lt(covHi) {
			covHi = iv.Hi
		}
		w := width(Interval{Lo: covLo, Hi: covHi})
		removed.Add(&removed, &w)

		if cur.Lo.Lt(iv.Lo) {
			out = append(out, Interval{Lo: cur.Lo, Hi: iv.Lo.Sub(1)})
		}
		if iv.Hi.Lt(cur.Hi) {
			out = append(out, Interval{Lo: iv.Hi.Add(1), Hi: cur.Hi})
		}
	}
	s.ivs = out
	return removed
}

// Ge returns the least interval whose Hi >= pt, or false if none exists.
func (s *Set) Ge(pt rangedesc.NodeTag) (Interval, bool) {
	idx := sort.Search(len(s.ivs), func(i int) bool { return !s.ivs[i].Hi.Lt(pt) })
	if idx == len(s.ivs) {
		return Interval{}, false
	}
	return s.ivs[idx], true
}

// Le returns the greatest interval whose Lo <= pt, or false if none exists.
func (s *Set) Le(pt rangedesc.NodeTag) (Interval, bool) {
	idx := sort.Search(len(s.ivs), func(i int) bool { return s.ivs[i].Lo.Gt(pt) })
	if idx == 0 {
		return Interval{}, false
	}
	return s.ivs[idx-1], true
}

func (s *Set) First() (Interval, bool) {
	if len(s.ivs) == 0 {
		return Interval{}, false
	}
	return s.ivs[0], true
}

func (s *Set) Last() (Interval, bool) {
	if len(s.ivs) == 0 {
		return Interval{}, false
	}
	return s.ivs[len(s.ivs)-1], true
}

// IncreasingIter calls fn for every interval in increasing order; it stops
// early if fn returns false.
func (s *Set) IncreasingIter(fn func(Interval) bool) {
	for _, iv := range s.ivs {
		if !fn(iv) {
			return
		}
	}
}

// Total reports the set's cardinality. A set consisting of exactly the full
// key space is reported as {Total: 0, Chunks: 1}, distinguishing "nothing
// covered" ({Total:0, Chunks:0}) from "everything covered" by the chunk count.
func (s *Set) Total() Total {
	if len(s.ivs) == 0 {
		return Total{Chunks: 0}
	}
	var sum uint256.Int
	for _, iv := range s.ivs {
		w := width(iv)
		sum.Add(&sum, &w)
	}
	return Total{Total: sum, Chunks: len(s.ivs)}
}

const fullSpaceF64 = 1.157920892373162e77 // 2**256 as float64

// EmptyFactor approximates, as a float64 in [0,1], the fraction of the space
// NOT covered by the set (1.0 for an empty set, 0.0 for a set spanning the
// whole key space).
func (s *Set) EmptyFactor() float64 {
	t := s.Total()
	if t.Chunks == 1 && t.Total.IsZero() {
		return 0.0 // whole space covered
	}
	f := bigToFloat(&t.Total)
	return 1.0 - f/fullSpaceF64
}

// FullFactor approximates, as a float64 in [0,1], the fraction of the space
// covered by the set (1.0 - EmptyFactor). Because a Set is a coalesced,
// disjoint union, this can never exceed 1.0 -- it answers "how much of the
// space is covered", not "how many times has it been covered". Callers that
// need cumulative, overlap-counting coverage (e.g. corea/pivot's process-wide
// covered-accounts union, which can legitimately exceed one full sweep) want
// Fraction over a running total width instead.
func (s *Set) FullFactor() float64 {
	return 1.0 - s.EmptyFactor()
}

// Fraction approximates w/2**256 as a float64, without capping at 1.0. It is
// the building block for cumulative coverage ratios accumulated outside a
// single disjoint Set (see corea/pivot.Manager.CoveredFraction).
func Fraction(w *uint256.Int) float64 {
	return bigToFloat(w) / fullSpaceF64
}

func bigToFloat(u *uint256.Int) float64 {
	f := new(big256Float)
	return f.fromUint256(u)
}

// big256Float is a minimal helper avoiding a math/big round trip for the
// common case; precision beyond float64's ~15 digits is not needed for a
// threshold comparison.
type big256Float struct{}

func (big256Float) fromUint256(u *uint256.Int) float64 {
	var f float64
	words := u.Bytes32()
	for _, b := range words {
		f = f*256 + float64(b)
	}
	return f
}
