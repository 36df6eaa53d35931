// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package sparse

import (
	"context"
	"io"

	bufra "github.com/avvmoto/buf-readerat"
)

// HostStream is the byte-stream capability vdiskcore consumes from the
// host (spec.md §6): random access plus length, read/write, and resize.
// A format module's opened disk image file satisfies this.
type HostStream interface {
	io.ReaderAt
	io.WriterAt
	Len() int64
	SetLength(n int64) error
	Flush() error
}

// FileStream adapts a HostStream into a fully-stored Stream (every byte
// is "stored": there is no hole concept at the raw host level, only once
// a format module's extent map or differencing overlay is applied).
//
// Grounded on open.go's use of bufra.NewBufReaderAt to avoid a syscall per
// small sequential read; FileStream wraps reads through the same buffer.
type FileStream struct {
	host     HostStream
	buffered io.ReaderAt
	writable bool
}

// NewFileStream wraps host with a read buffer. writable controls whether
// WriteAt/SetLength are permitted; many format modules open parent images
// read-only even though the underlying file handle could support writes.
func NewFileStream(host HostStream, writable bool) *FileStream {
	return &FileStream{
		host:     host,
		buffered: bufra.NewBufReaderAt(host, 64*1024),
		writable: writable,
	}
}

func (f *FileStream) Len() int64     { return f.host.Len() }
func (f *FileStream) CanRead() bool  { return true }
func (f *FileStream) CanWrite() bool { return f.writable }
func (f *FileStream) CanSeek() bool  { return true }

func (f *FileStream) ReadAt(p []byte, pos int64) (int, error) {
	n, err := f.buffered.ReadAt(p, pos)
	if err == io.EOF {
		err = nil // spec.md §3: short reads at EOF are not themselves errors
	}
	return n, err
}

func (f *FileStream) WriteAt(p []byte, pos int64) (int, error) {
	if !f.writable {
		return 0, ErrNotWritable
	}
	n, err := f.host.WriteAt(p, pos)
	if err == nil {
		err = f.host.Flush()
	}
	return n, err
}

func (f *FileStream) SetLength(n int64) error {
	if !f.writable {
		return ErrNotResizable
	}
	return f.host.SetLength(n)
}

// StoredRanges reports the whole stream as stored: a raw host file has no
// hole concept of its own.
func (f *FileStream) StoredRanges() RangeSet {
	return RangeSet{{0, f.Len()}}
}

func (f *FileStream) ExtentsInRange(offset, length int64) RangeSet {
	return f.StoredRanges().Clip(offset, length)
}

func (f *FileStream) ReadAtContext(ctx context.Context, p []byte, pos int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.ReadAt(p, pos)
}

func (f *FileStream) WriteAtContext(ctx context.Context, p []byte, pos int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f.WriteAt(p, pos)
}

var _ Stream = (*FileStream)(nil)
var _ AsyncStream = (*FileStream)(nil)
