// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package sparse implements the sparse stream abstraction (spec.md §4.3,
// C3): a random-access byte stream augmented with the set of ranges that
// are actually stored, as opposed to holes that read back as zero.
package sparse

import (
	"context"
	"io"

	"github.com/elliotnunn/vdiskcore/vdiskerr"
)

// ErrNotWritable is returned by Write on a read-only stream.
var ErrNotWritable = vdiskerr.New(vdiskerr.NotSupported, "sparse.Write")

// ErrNotResizable is returned by SetLength on a stream that cannot change
// size.
var ErrNotResizable = vdiskerr.New(vdiskerr.NotSupported, "sparse.SetLength")

// Stream is a random-access byte stream whose stored regions can be
// enumerated. Positions run [0, Len()]; a read past Len() returns a short
// count, never an error on its own (spec.md §3's EOF convention).
//
// Implementations: FileStream (host-backed), MemStream (in-memory, used by
// tests and as a differencing disk's top layer), extent.Buffer (extent-
// mapped, C5), layered.Stack (layered overlay, C4), trace.Stream (C7).
type Stream interface {
	// Len returns the logical length of the stream in bytes.
	Len() int64

	// CanRead, CanWrite, CanSeek report the stream's capabilities; a
	// caller should consult these rather than probe by calling and
	// checking for ErrNotWritable, though both work.
	CanRead() bool
	CanWrite() bool
	CanSeek() bool

	// ReadAt reads up to len(p) bytes starting at pos, returning the
	// count actually read. A short read is only legitimate at EOF or at
	// a hole boundary when the caller asked for hole-aware behavior;
	// within a single extent ReadAt behaves like io.ReaderAt.
	ReadAt(p []byte, pos int64) (n int, err error)

	// WriteAt writes len(p) bytes at pos, or fails with ErrNotWritable.
	WriteAt(p []byte, pos int64) (n int, err error)

	// SetLength changes the logical length, or fails with
	// ErrNotResizable. Stored ranges beyond the new length are dropped;
	// stored ranges below it are preserved.
	SetLength(n int64) error

	// StoredRanges returns all regions that are materially stored (as
	// opposed to holes), sorted and non-overlapping, clipped to
	// [0, Len()).
	StoredRanges() RangeSet

	// ExtentsInRange returns StoredRanges() clipped to
	// [offset, offset+length).
	ExtentsInRange(offset, length int64) RangeSet
}

// AsyncStream is the optional dual entry point (spec.md §9 "coroutine
// surface → dual entry points"): a context-aware variant of ReadAt/WriteAt
// that checks ctx for cancellation at extent boundaries, implemented by
// extent.Buffer and layered.Stack where reads can span multiple device
// extents.
type AsyncStream interface {
	Stream
	ReadAtContext(ctx context.Context, p []byte, pos int64) (n int, err error)
	WriteAtContext(ctx context.Context, p []byte, pos int64) (n int, err error)
}

// Cursor adapts a Stream to io.ReadWriteSeeker for callers that want a
// single advancing position instead of explicit offsets, matching
// multireaderat.go's Read/Seek wrapper around its own ReadAt.
type Cursor struct {
	S   Stream
	pos int64
}

func (c *Cursor) Read(p []byte) (int, error) {
	if c.pos >= c.S.Len() {
		return 0, io.EOF
	}
	n, err := c.S.ReadAt(p, c.pos)
	c.pos += int64(n)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (c *Cursor) Write(p []byte) (int, error) {
	n, err := c.S.WriteAt(p, c.pos)
	c.pos += int64(n)
	return n, err
}

func (c *Cursor) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += c.pos
	case io.SeekEnd:
		offset += c.S.Len()
	default:
		return 0, vdiskerr.New(vdiskerr.NotSupported, "sparse.Cursor.Seek")
	}
	if offset < 0 {
		return 0, vdiskerr.New(vdiskerr.NotSupported, "sparse.Cursor.Seek")
	}
	c.pos = offset
	return offset, nil
}
