// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package extent implements the run-length extent model (spec.md §4.5,
// C5): logical-to-physical block translation via an in-band extent list
// with spill-over into a secondary ordered index once the in-band list is
// exhausted.
//
// Grounded on internal/hfs/hfs.go's parseExtents/chaseOverflow/
// parseExtentsOverflow pipeline (HFS's own in-band-then-overflow-B-tree
// extent model) and internal/hfs/multireaderat.go's extent-walk read
// loop.
package extent

import (
	"fmt"

	"github.com/elliotnunn/vdiskcore/vdiskerr"
)

// Extent is a contiguous run of blocks: (start_block, block_count).
type Extent struct {
	StartBlock int64
	BlockCount int64
}

func (e Extent) sizeBytes(blockSize int64) int64 { return e.BlockCount * blockSize }

// SpillIndex is the secondary ordered structure consulted once the
// in-band extent array is exhausted (spec.md §4.5 step 3). Lookup returns
// the packed extent descriptors that continue the map starting at
// blocksSeen blocks into fileID, or ok == false if there is no such entry.
type SpillIndex interface {
	Lookup(fileID string, blocksSeen int64) (packed []byte, ok bool, err error)
}

// DescriptorSize is the width of one packed spill descriptor: a uint32
// start_block followed by a uint32 block_count, big-endian — the 8-byte
// layout spec.md §4.5 step 3 calls out as typical of one filesystem
// family (HFS+'s extent overflow B-tree records use exactly this shape).
const DescriptorSize = 8

// decodeDescriptors splits a packed spill blob into Extents.
func decodeDescriptors(packed []byte) ([]Extent, error) {
	if len(packed)%DescriptorSize != 0 {
		return nil, vdiskerr.New(vdiskerr.Corrupt, "extent.decodeDescriptors")
	}
	out := make([]Extent, 0, len(packed)/DescriptorSize)
	for i := 0; i < len(packed); i += DescriptorSize {
		start := beUint32(packed[i:])
		count := beUint32(packed[i+4:])
		out = append(out, Extent{StartBlock: int64(start), BlockCount: int64(count)})
	}
	return out, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Map describes a fork/file's logical-to-physical layout (spec.md §3's
// Fork/file map F): a fixed-capacity in-band extent array plus a spill
// key into a SpillIndex once TotalBlocks exceeds the in-band coverage.
type Map struct {
	FileID      string // spill key (CNID or equivalent)
	BlockSize   int64
	TotalBlocks int64
	InBand      []Extent
	Spill       SpillIndex // nil if this fork never spills
}

// FindExtent implements spec.md §4.5's algorithm: locate the extent
// covering the block containing logicalPos, and the logical byte offset
// at which that extent begins.
func (m *Map) FindExtent(logicalPos int64) (ext Extent, extentLogicalStart int64, err error) {
	if m.BlockSize <= 0 {
		return Extent{}, 0, vdiskerr.New(vdiskerr.Corrupt, "extent.FindExtent")
	}
	block := logicalPos / m.BlockSize
	blocksSeen := int64(0)

	for _, e := range m.InBand {
		if blocksSeen+e.BlockCount > block {
			return e, blocksSeen * m.BlockSize, nil
		}
		blocksSeen += e.BlockCount
	}

	for blocksSeen < m.TotalBlocks {
		if m.Spill == nil {
			return Extent{}, 0, vdiskerr.Wrap(vdiskerr.MissingExtent, "extent.FindExtent",
				fmt.Errorf("file %s has no spill index but needs blocks at %d", m.FileID, blocksSeen))
		}
		packed, ok, lookupErr := m.Spill.Lookup(m.FileID, blocksSeen)
		if lookupErr != nil {
			return Extent{}, 0, vdiskerr.Wrap(vdiskerr.IoFailed, "extent.FindExtent", lookupErr)
		}
		if !ok {
			return Extent{}, 0, vdiskerr.Wrap(vdiskerr.MissingExtent, "extent.FindExtent",
				fmt.Errorf("file %s blocksSeen %d", m.FileID, blocksSeen))
		}
		descriptors, decodeErr := decodeDescriptors(packed)
		if decodeErr != nil {
			return Extent{}, 0, decodeErr
		}
		if len(descriptors) == 0 {
			// a spill entry with no descriptors makes no forward progress;
			// treat it the same as a miss rather than loop forever.
			return Extent{}, 0, vdiskerr.Wrap(vdiskerr.MissingExtent, "extent.FindExtent",
				fmt.Errorf("file %s empty spill entry at %d", m.FileID, blocksSeen))
		}
		for _, e := range descriptors {
			if blocksSeen+e.BlockCount > block {
				return e, blocksSeen * m.BlockSize, nil
			}
			blocksSeen += e.BlockCount
		}
	}

	return Extent{}, 0, vdiskerr.New(vdiskerr.BeyondEof, "extent.FindExtent")
}
