// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package layered implements the layered content stream (spec.md §4.4,
// C4): a stack of sparse.Streams of equal logical length where the
// topmost layer that stores a given byte wins, writes always land on top,
// and an unwritten sub-range is promoted into the top layer before being
// overwritten (the differencing-disk copy-on-write discipline).
//
// Grounded on fs.go's burrow-resolution logic (topmost matching source
// wins a given path) generalized from a directory tree to a byte range,
// and on byterange.go's interval merge for the stack's union of stored
// ranges.
package layered

import (
	"context"
	"io"

	"github.com/elliotnunn/vdiskcore/ownership"
	"github.com/elliotnunn/vdiskcore/sparse"
	"github.com/elliotnunn/vdiskcore/vdiskerr"
)

// Layer is one entry in a Stack: a stream plus the ownership tag under
// which it was handed to the stack (spec.md §4.8).
type Layer struct {
	Stream sparse.Stream
	Own    ownership.Tag
}

// Stack is the assembled logical stream over a disk chain: Layers[0] is
// the top (most specific, e.g. a differencing disk), Layers[len-1] is the
// deepest ancestor. All layers must share the same Len().
type Stack struct {
	Layers []Layer
}

// New builds a Stack. It does not validate that layer lengths agree, and
// neither does diskchain.Resolver; Len reports the top layer's length.
func New(layers ...Layer) *Stack {
	return &Stack{Layers: layers}
}

func (s *Stack) Len() int64 {
	if len(s.Layers) == 0 {
		return 0
	}
	return s.Layers[0].Stream.Len()
}

func (s *Stack) CanRead() bool  { return true }
func (s *Stack) CanWrite() bool { return len(s.Layers) > 0 && s.Layers[0].Stream.CanWrite() }
func (s *Stack) CanSeek() bool  { return true }

// ReadAt serves [pos, pos+len(p)) by, for each sub-range, reading from the
// topmost layer whose StoredRanges covers it; bytes outside every layer's
// stored set come back zero. This is a range-wise merge (one ReadAt per
// covering sub-range per layer), not a byte-wise loop, per spec.md §4.4.
func (s *Stack) ReadAt(p []byte, pos int64) (int, error) {
	return s.readAt(context.Background(), p, pos, false)
}

func (s *Stack) ReadAtContext(ctx context.Context, p []byte, pos int64) (int, error) {
	return s.readAt(ctx, p, pos, true)
}

func (s *Stack) readAt(ctx context.Context, p []byte, pos int64, checkCtx bool) (int, error) {
	length := int64(len(p))
	if pos+length > s.Len() {
		length = s.Len() - pos
	}
	if length <= 0 {
		return 0, nil
	}
	clear(p[:length])

	// remaining starts as the whole query window and shrinks as upper
	// layers claim sub-ranges of it.
	remaining := sparse.RangeSet{{pos, length}}

	for _, layer := range s.Layers {
		if len(remaining) == 0 {
			break
		}
		if checkCtx {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}

		var stillRemaining sparse.RangeSet
		for _, want := range remaining {
			covered := layer.Stream.ExtentsInRange(want.Offset, want.Length)
			cursor := want.Offset
			for _, c := range covered {
				if c.Offset > cursor {
					stillRemaining = append(stillRemaining, sparse.Range{Offset: cursor, Length: c.Offset - cursor})
				}
				dst := p[c.Offset-pos : c.Offset-pos+c.Length]
				if _, err := layer.Stream.ReadAt(dst, c.Offset); err != nil {
					return 0, vdiskerr.Wrap(vdiskerr.IoFailed, "layered.ReadAt", err)
				}
				cursor = c.Offset + c.Length
			}
			if cursor < want.Offset+want.Length {
				stillRemaining = append(stillRemaining, sparse.Range{Offset: cursor, Length: want.Offset + want.Length - cursor})
			}
		}
		remaining = stillRemaining
	}

	return int(length), nil
}

// WriteAt always targets the top layer, first promoting any unwritten
// sub-range of [pos, pos+len(p)) into it.
func (s *Stack) WriteAt(p []byte, pos int64) (int, error) {
	if len(s.Layers) == 0 {
		return 0, sparse.ErrNotWritable
	}
	if !s.Layers[0].Stream.CanWrite() {
		return 0, sparse.ErrNotWritable
	}
	if err := s.Promote(pos, int64(len(p))); err != nil {
		return 0, err
	}
	return s.Layers[0].Stream.WriteAt(p, pos)
}

func (s *Stack) WriteAtContext(ctx context.Context, p []byte, pos int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.WriteAt(p, pos)
}

// Promote is the named copy-on-write operation spec.md §9 asks for: it
// ensures [rangeStart, rangeStart+rangeLen) is present in the top layer's
// stored set, pulling bytes up from the first lower layer that has them
// wherever the top layer does not. Format modules call this directly when
// they need "this block is now mine" semantics without also writing new
// data (e.g. pre-allocating a block before a partial-block write).
func (s *Stack) Promote(rangeStart, rangeLen int64) error {
	if len(s.Layers) == 0 {
		return nil
	}
	top := s.Layers[0].Stream
	if !top.CanWrite() {
		return sparse.ErrNotWritable
	}

	missing := top.ExtentsInRange(rangeStart, rangeLen)
	// invert: find the gaps in `missing` within [rangeStart,rangeStart+rangeLen)
	var holes sparse.RangeSet
	cursor := rangeStart
	for _, r := range missing {
		if r.Offset > cursor {
			holes = append(holes, sparse.Range{Offset: cursor, Length: r.Offset - cursor})
		}
		cursor = r.Offset + r.Length
	}
	if cursor < rangeStart+rangeLen {
		holes = append(holes, sparse.Range{Offset: cursor, Length: rangeStart + rangeLen - cursor})
	}

	for _, hole := range holes {
		buf := make([]byte, hole.Length)
		if _, err := s.readFromBelow(buf, hole.Offset); err != nil {
			return vdiskerr.Wrap(vdiskerr.IoFailed, "layered.Promote", err)
		}
		if _, err := top.WriteAt(buf, hole.Offset); err != nil {
			return vdiskerr.Wrap(vdiskerr.IoFailed, "layered.Promote", err)
		}
	}
	return nil
}

// readFromBelow reads [pos, pos+len(p)) as seen by every layer below the
// top, i.e. what Promote needs to pull up before the top layer can claim
// ownership of that range.
func (s *Stack) readFromBelow(p []byte, pos int64) (int, error) {
	below := &Stack{Layers: s.Layers[1:]}
	if len(below.Layers) == 0 {
		clear(p)
		return len(p), nil
	}
	return below.ReadAt(p, pos)
}

// StoredRanges is the union of every layer's stored ranges.
func (s *Stack) StoredRanges() sparse.RangeSet {
	sets := make([]sparse.RangeSet, len(s.Layers))
	for i, l := range s.Layers {
		sets[i] = l.Stream.StoredRanges()
	}
	return sparse.Union(sets...)
}

func (s *Stack) ExtentsInRange(offset, length int64) sparse.RangeSet {
	return s.StoredRanges().Clip(offset, length)
}

func (s *Stack) SetLength(n int64) error {
	if len(s.Layers) == 0 {
		return sparse.ErrNotResizable
	}
	return s.Layers[0].Stream.SetLength(n)
}

// Close tears down every layer this Stack owns (spec.md §4.8), deepest
// layer last released first by convention matching vdiskerr's
// reverse-order release on failed opens. io.Closer is satisfied only by
// streams that implement it; others are no-ops.
func (s *Stack) Close() error {
	closers := make([]ownership.Closer, 0, len(s.Layers))
	for _, l := range s.Layers {
		if c, ok := l.Stream.(io.Closer); ok {
			closers = append(closers, ownership.Closer{Tag: l.Own, Resource: c})
		}
	}
	return ownership.CloseAll(closers)
}

var _ sparse.Stream = (*Stack)(nil)
var _ sparse.AsyncStream = (*Stack)(nil)
