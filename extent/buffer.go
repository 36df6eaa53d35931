// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package extent

import (
	"context"

	"github.com/elliotnunn/vdiskcore/sparse"
	"github.com/elliotnunn/vdiskcore/vdiskerr"
)

// Device is the underlying volume stream a Buffer issues physical reads
// against, addressed by an absolute byte offset (DeviceBase + extent
// bytes), matching spec.md §4.5's "device_base + extent.start_block *
// block_size + extent_offset" addressing.
type Device interface {
	ReadAt(p []byte, off int64) (int, error)
}

// Buffer is the extent-mapped buffer of spec.md §4.5: it satisfies
// sparse.Stream by translating logical offsets through a Map before
// issuing one device read per extent crossed. Writes and SetLength are
// NotSupported here; mutation belongs to the enclosing format module.
type Buffer struct {
	Map        *Map
	Device     Device
	DeviceBase int64
	LogicalLen int64
	Cache      *ReadCache // optional; nil disables caching
}

func (b *Buffer) Len() int64     { return b.LogicalLen }
func (b *Buffer) CanRead() bool  { return true }
func (b *Buffer) CanWrite() bool { return false }
func (b *Buffer) CanSeek() bool  { return true }

func (b *Buffer) WriteAt(p []byte, pos int64) (int, error) {
	return 0, sparse.ErrNotWritable
}

func (b *Buffer) WriteAtContext(ctx context.Context, p []byte, pos int64) (int, error) {
	return b.WriteAt(p, pos)
}

func (b *Buffer) SetLength(n int64) error {
	return sparse.ErrNotResizable
}

// ReadAt implements spec.md §4.5's read loop: repeatedly find the extent
// covering the current position, compute how much of it is available,
// and issue one device read per extent.
func (b *Buffer) ReadAt(p []byte, pos int64) (int, error) {
	return b.readAt(context.Background(), p, pos, false)
}

func (b *Buffer) ReadAtContext(ctx context.Context, p []byte, pos int64) (int, error) {
	return b.readAt(ctx, p, pos, true)
}

func (b *Buffer) readAt(ctx context.Context, p []byte, pos int64, checkCtx bool) (int, error) {
	remaining := int64(len(p))
	if pos+remaining > b.LogicalLen {
		remaining = b.LogicalLen - pos
	}
	if remaining <= 0 {
		return 0, nil
	}

	var done int64
	for done < remaining {
		if checkCtx {
			if err := ctx.Err(); err != nil {
				return int(done), err
			}
		}

		ext, extStart, err := b.Map.FindExtent(pos + done)
		if err != nil {
			return int(done), err
		}

		deviceOff, toRead := stepRead(ext, extStart, b.Map.BlockSize, pos+done, remaining-done)
		if toRead <= 0 {
			// spec.md §9's progress guard: the map is internally
			// inconsistent (extentOffset at or past the extent's own
			// size) but no hard error condition fired above. Stop rather
			// than spin; callers see a short read.
			break
		}
		deviceOff += b.DeviceBase
		dst := p[done : done+toRead]
		n, err := b.readDevice(dst, deviceOff)
		done += int64(n)
		if err != nil {
			return int(done), vdiskerr.Wrap(vdiskerr.IoFailed, "extent.Buffer.ReadAt", err)
		}
		if int64(n) < toRead {
			break
		}
	}

	return int(done), nil
}

// stepRead computes one extent-read step: the device offset (relative to
// the volume, before DeviceBase) and how many bytes of remaining can be
// satisfied from ext without crossing into the next extent. Pulled out of
// readAt as a pure function so the "inconsistent map" guard in readAt can
// be exercised directly, without needing a Map whose FindExtent violates
// its own containment invariant to produce one (see extent_test.go).
func stepRead(ext Extent, extStart, blockSize, pos, remaining int64) (deviceOff, toRead int64) {
	extentOffset := pos - extStart
	extentSize := ext.sizeBytes(blockSize)
	toRead = min(remaining, extentSize-extentOffset)
	deviceOff = ext.StartBlock*blockSize + extentOffset
	return deviceOff, toRead
}

func (b *Buffer) readDevice(p []byte, off int64) (int, error) {
	if b.Cache == nil {
		return b.Device.ReadAt(p, off)
	}
	return b.Cache.ReadAt(b.Device, p, off)
}

// StoredRanges: a Buffer backed purely by an extent map has no notion of
// holes at this layer (spec.md §4.5: "the core treats it opaquely" for
// the block_count==0 sentinel); present it as fully stored, leaving hole
// semantics to whichever format module interprets block_count==0.
func (b *Buffer) StoredRanges() sparse.RangeSet {
	return sparse.RangeSet{{0, b.LogicalLen}}
}

func (b *Buffer) ExtentsInRange(offset, length int64) sparse.RangeSet {
	return b.StoredRanges().Clip(offset, length)
}

var _ sparse.Stream = (*Buffer)(nil)
var _ sparse.AsyncStream = (*Buffer)(nil)
