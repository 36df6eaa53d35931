// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package sparse

import "context"

// MemStream is an in-memory sparse stream: a byte buffer plus a RangeSet
// of which parts of it are "really" stored. Reads outside the stored set
// return zero bytes without touching buf, matching a differencing disk's
// hole semantics.
type MemStream struct {
	buf    []byte
	stored RangeSet
	length int64
	frozen bool // true once created via NewMemStreamReadOnly
}

// NewMemStream creates an empty, writable stream of the given logical
// length with no stored ranges (entirely holes).
func NewMemStream(length int64) *MemStream {
	return &MemStream{buf: make([]byte, length), length: length}
}

// NewMemStreamFromBytes creates a fully-stored, writable stream whose
// initial content is a copy of b.
func NewMemStreamFromBytes(b []byte) *MemStream {
	m := &MemStream{buf: append([]byte(nil), b...), length: int64(len(b))}
	m.stored.Add(0, int64(len(b)))
	return m
}

// NewMemStreamReadOnly creates a fully-stored, read-only stream over b
// without copying it.
func NewMemStreamReadOnly(b []byte) *MemStream {
	m := &MemStream{buf: b, length: int64(len(b)), frozen: true}
	m.stored.Add(0, int64(len(b)))
	return m
}

func (m *MemStream) Len() int64     { return m.length }
func (m *MemStream) CanRead() bool  { return true }
func (m *MemStream) CanWrite() bool { return !m.frozen }
func (m *MemStream) CanSeek() bool  { return true }

func (m *MemStream) ReadAt(p []byte, pos int64) (int, error) {
	if pos < 0 || pos >= m.length {
		return 0, nil
	}
	avail := m.length - pos
	toCopy := int64(len(p))
	if toCopy > avail {
		toCopy = avail
	}
	clear(p[:toCopy]) // holes read back as zero
	for _, r := range m.stored.Clip(pos, toCopy) {
		copy(p[r.Offset-pos:], m.buf[r.Offset:r.Offset+r.Length])
	}
	return int(toCopy), nil
}

func (m *MemStream) WriteAt(p []byte, pos int64) (int, error) {
	if m.frozen {
		return 0, ErrNotWritable
	}
	end := pos + int64(len(p))
	if end > m.length {
		m.grow(end)
	}
	copy(m.buf[pos:end], p)
	m.stored.Add(pos, int64(len(p)))
	return len(p), nil
}

func (m *MemStream) SetLength(n int64) error {
	if m.frozen {
		return ErrNotResizable
	}
	if n < m.length {
		m.buf = m.buf[:n]
		var trimmed RangeSet
		for _, r := range m.stored.Clip(0, n) {
			trimmed.Add(r.Offset, r.Length)
		}
		m.stored = trimmed
	} else if n > m.length {
		m.grow(n)
	}
	m.length = n
	return nil
}

func (m *MemStream) grow(n int64) {
	if n <= int64(len(m.buf)) {
		return
	}
	nb := make([]byte, n)
	copy(nb, m.buf)
	m.buf = nb
	m.length = n
}

func (m *MemStream) StoredRanges() RangeSet { return m.stored.Clip(0, m.length) }

func (m *MemStream) ExtentsInRange(offset, length int64) RangeSet {
	return m.stored.Clip(offset, length)
}

func (m *MemStream) ReadAtContext(_ context.Context, p []byte, pos int64) (int, error) {
	return m.ReadAt(p, pos)
}

func (m *MemStream) WriteAtContext(_ context.Context, p []byte, pos int64) (int, error) {
	return m.WriteAt(p, pos)
}

var _ Stream = (*MemStream)(nil)
var _ AsyncStream = (*MemStream)(nil)
