// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package vhd

import (
	"context"

	"github.com/elliotnunn/vdiskcore/extent"
	"github.com/elliotnunn/vdiskcore/sparse"
	"github.com/elliotnunn/vdiskcore/vdiskerr"
)

// unallocatedBlock is the BAT sentinel marking a logical block that has
// never been written: reads return zero, per spec.md §3's hole semantics.
const unallocatedBlock = 0xFFFFFFFF

// dynamicStream is a dynamic or differencing VHD's own content: the
// blocks it has allocated itself, addressed through its block allocation
// table. It deliberately does not use extent.Map/Buffer: VHD's BAT is one
// fixed-size entry per logical block (allocated or not), not a run-length
// extent list with in-band/spill tiers, so C5's containment-walk model
// doesn't fit. It reuses extent.ReadCache, though — block-aligned
// device-read caching applies equally well to a BAT-addressed device.
//
// Grounded on internal/hfs/multireaderat.go's per-extent read loop,
// adapted from "walk a run-length extent list" to "index a fixed-size
// table directly".
type dynamicStream struct {
	host        sparse.HostStream
	bat         []uint32 // per logical block, sector number or unallocatedBlock
	blockSize   int64
	bitmapBytes int64 // per-block bitmap sector(s) skipped before block data
	capacity    int64
	writable    bool
	cache       *extent.ReadCache
}

func (d *dynamicStream) Len() int64     { return d.capacity }
func (d *dynamicStream) CanRead() bool  { return true }
func (d *dynamicStream) CanWrite() bool { return d.writable }
func (d *dynamicStream) CanSeek() bool  { return true }

func (d *dynamicStream) SetLength(n int64) error { return sparse.ErrNotResizable }

func (d *dynamicStream) ReadAt(p []byte, pos int64) (int, error) {
	return d.readAt(context.Background(), p, pos, false)
}

func (d *dynamicStream) ReadAtContext(ctx context.Context, p []byte, pos int64) (int, error) {
	return d.readAt(ctx, p, pos, true)
}

func (d *dynamicStream) readAt(ctx context.Context, p []byte, pos int64, checkCtx bool) (int, error) {
	remaining := int64(len(p))
	if pos+remaining > d.capacity {
		remaining = d.capacity - pos
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

		blockIndex := (pos + done) / d.blockSize
		blockStart := blockIndex * d.blockSize
		offsetInBlock := pos + done - blockStart
		toRead := min(remaining-done, d.blockSize-offsetInBlock)
		dst := p[done : done+toRead]

		if int(blockIndex) >= len(d.bat) || d.bat[blockIndex] == unallocatedBlock {
			clear(dst)
		} else {
			deviceOff := int64(d.bat[blockIndex])*512 + d.bitmapBytes + offsetInBlock
			n, err := d.readDevice(dst, deviceOff)
			if err != nil {
				return int(done) + n, vdiskerr.Wrap(vdiskerr.IoFailed, "vhd.dynamicStream.ReadAt", err)
			}
			if int64(n) < toRead {
				return int(done) + n, nil
			}
		}
		done += toRead
	}
	return int(done), nil
}

func (d *dynamicStream) readDevice(p []byte, off int64) (int, error) {
	if d.cache == nil {
		return d.host.ReadAt(p, off)
	}
	return d.cache.ReadAt(d.host, p, off)
}

// WriteAt supports only overwriting already-allocated blocks; allocating
// a new block (growing the BAT, moving the footer) is out of scope for
// this sample module.
func (d *dynamicStream) WriteAt(p []byte, pos int64) (int, error) {
	if !d.writable {
		return 0, sparse.ErrNotWritable
	}
	blockIndex := pos / d.blockSize
	if int(blockIndex) >= len(d.bat) || d.bat[blockIndex] == unallocatedBlock {
		return 0, vdiskerr.New(vdiskerr.NotSupported, "vhd.dynamicStream.WriteAt: block allocation not supported")
	}
	offsetInBlock := pos - blockIndex*d.blockSize
	deviceOff := int64(d.bat[blockIndex])*512 + d.bitmapBytes + offsetInBlock
	return d.host.WriteAt(p, deviceOff)
}

func (d *dynamicStream) WriteAtContext(ctx context.Context, p []byte, pos int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return d.WriteAt(p, pos)
}

func (d *dynamicStream) StoredRanges() sparse.RangeSet {
	var set sparse.RangeSet
	for i, sector := range d.bat {
		if sector == unallocatedBlock {
			continue
		}
		start := int64(i) * d.blockSize
		length := d.blockSize
		if start+length > d.capacity {
			length = d.capacity - start
		}
		if length > 0 {
			set.Add(start, length)
		}
	}
	return set
}

func (d *dynamicStream) ExtentsInRange(offset, length int64) sparse.RangeSet {
	return d.StoredRanges().Clip(offset, length)
}

var _ sparse.Stream = (*dynamicStream)(nil)
var _ sparse.AsyncStream = (*dynamicStream)(nil)
