// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package sparse

import (
	"fmt"
	"slices"
	"strings"
)

// Range is a half-open byte interval [Offset, Offset+Length).
type Range struct {
	Offset, Length int64
}

func (r Range) end() int64 { return r.Offset + r.Length }

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Offset, r.end())
}

// RangeSet is a sorted, non-overlapping set of stored byte ranges — the
// representation behind Stream.StoredRanges (spec.md §3's "sorted,
// non-overlapping sequence of half-open intervals").
//
// Grounded directly on byterange.go's byteRangeList/incorporate: the same
// binary-search-then-merge algorithm, specialized to bare intervals since
// a stored-range set carries no payload bytes of its own.
type RangeSet []Range

// Add marks [offset, offset+length) as stored, merging with any
// overlapping or adjacent existing ranges.
func (s *RangeSet) Add(offset, length int64) {
	if length <= 0 {
		return
	}
	r := Range{offset, length}

	i, hit := slices.BinarySearchFunc(*s, r, func(a, b Range) int {
		if a.end() < b.Offset {
			return -1
		} else if a.Offset > b.end() {
			return 1
		}
		return 0
	})

	if hit {
		(*s)[i] = merge((*s)[i], r)
	} else {
		*s = slices.Insert(*s, i, r)
	}

	// absorb any further ranges that now touch or overlap
	for i+1 < len(*s) {
		if touches((*s)[i], (*s)[i+1]) {
			(*s)[i] = merge((*s)[i], (*s)[i+1])
			*s = slices.Delete(*s, i+1, i+2)
		} else {
			break
		}
	}
}

func touches(a, b Range) bool {
	return a.end() >= b.Offset && b.end() >= a.Offset
}

func merge(a, b Range) Range {
	start := min(a.Offset, b.Offset)
	end := max(a.end(), b.end())
	return Range{start, end - start}
}

// Clip returns the portion of s that falls within [offset, offset+length),
// clipped at the query window's edges. Used by Stream.ExtentsInRange.
func (s RangeSet) Clip(offset, length int64) RangeSet {
	if length <= 0 {
		return nil
	}
	qend := offset + length
	var out RangeSet
	for _, r := range s {
		if r.end() <= offset {
			continue
		}
		if r.Offset >= qend {
			break
		}
		start := max(r.Offset, offset)
		end := min(r.end(), qend)
		if end > start {
			out = append(out, Range{start, end - start})
		}
	}
	return out
}

// Contains reports whether offset falls inside some stored range, and if
// so returns that range.
func (s RangeSet) Contains(offset int64) (Range, bool) {
	i, ok := slices.BinarySearchFunc(s, offset, func(a Range, b int64) int {
		if a.end() <= b {
			return -1
		} else if a.Offset > b {
			return 1
		}
		return 0
	})
	if !ok {
		return Range{}, false
	}
	return s[i], true
}

// Union returns the sorted, merged union of multiple RangeSets, used to
// compute a layered.Stack's overall StoredRanges (spec.md §4.4).
func Union(sets ...RangeSet) RangeSet {
	var all RangeSet
	for _, s := range sets {
		all = append(all, s...)
	}
	slices.SortFunc(all, func(a, b Range) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		default:
			return 0
		}
	})
	var out RangeSet
	for _, r := range all {
		out.Add(r.Offset, r.Length)
	}
	return out
}

func (s RangeSet) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, r := range s {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(r.String())
	}
	b.WriteByte(']')
	return b.String()
}
