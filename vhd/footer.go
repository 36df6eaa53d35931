// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package vhd implements the sample on-disk format module spec.md §6
// asks for: a VHD footer/dynamic-disk-header parser, the bit-exact
// parent-locator record, and a differencing-chain assembly wired through
// diskchain + layered. It exists to exercise the core end to end, not as
// a complete VHD implementation (sector-bitmap headers within an
// allocated block, checksums, and fixed-disk writers are out of scope).
//
// Grounded on internal/hfs/hfs.go's New (fixed-offset header parse into
// a struct, then build a reader over the parsed layout) restructured
// around VHD's footer+dynamic-header shape instead of HFS's MDB+catalog
// shape.
package vhd

import (
	"github.com/elliotnunn/vdiskcore/byteio"
	"github.com/elliotnunn/vdiskcore/ondisk"
	"github.com/elliotnunn/vdiskcore/vdiskerr"
)

// FooterSize is the fixed width of a VHD footer. Open reads it from the
// last FooterSize bytes of the file for every disk type.
const FooterSize = 512

// DiskType values from the footer's disk_type field.
const (
	DiskTypeFixed         uint32 = 2
	DiskTypeDynamic       uint32 = 3
	DiskTypeDifferencing  uint32 = 4
)

var cookie = [8]byte{'c', 'o', 'n', 'e', 'c', 't', 'i', 'x'}

// Geometry is the optional CHS geometry spec.md §3's Disk image file I
// calls out.
type Geometry struct {
	Cylinders       uint16
	Heads           uint8
	SectorsPerTrack uint8
}

// Footer is the fixed 512-byte VHD footer.
type Footer struct {
	Features          uint32
	FileFormatVersion uint32
	DataOffset        uint64 // BAT/dynamic-header location; all-ones for fixed disks
	Timestamp         uint32
	CreatorApp        [4]byte
	CreatorVersion    uint32
	CreatorHostOS     [4]byte
	OriginalSize      uint64
	CurrentSize       uint64
	Geometry          Geometry
	DiskType          uint32
	Checksum          uint32
	UniqueID          byteio.GUID
	SavedState        uint8
}

func (f *Footer) SizeBytes() int { return FooterSize }

// ReadFrom decodes a footer from exactly FooterSize bytes of b.
func (f *Footer) ReadFrom(b []byte) (int, error) {
	if len(b) < FooterSize {
		return 0, vdiskerr.Wrap(vdiskerr.SliceTooShort, "vhd.Footer.ReadFrom", byteio.ErrSliceTooShort)
	}
	if [8]byte(b[0:8]) != cookie {
		return 0, vdiskerr.New(vdiskerr.Corrupt, "vhd.Footer.ReadFrom")
	}

	var err error
	get32 := func(off int) uint32 { v, e := byteio.Uint32BE(b[off:]); err = firstErr(err, e); return v }
	get64 := func(off int) uint64 { v, e := byteio.Uint64BE(b[off:]); err = firstErr(err, e); return v }
	get16 := func(off int) uint16 { v, e := byteio.Uint16BE(b[off:]); err = firstErr(err, e); return v }

	f.Features = get32(8)
	f.FileFormatVersion = get32(12)
	f.DataOffset = get64(16)
	f.Timestamp = get32(24)
	copy(f.CreatorApp[:], b[28:32])
	f.CreatorVersion = get32(32)
	copy(f.CreatorHostOS[:], b[36:40])
	f.OriginalSize = get64(40)
	f.CurrentSize = get64(48)
	f.Geometry.Cylinders = get16(56)
	f.Geometry.Heads = b[58]
	f.Geometry.SectorsPerTrack = b[59]
	f.DiskType = get32(60)
	f.Checksum = get32(64)
	guid, gerr := byteio.GUIDBig(b[68:84])
	err = firstErr(err, gerr)
	f.UniqueID = guid
	f.SavedState = b[84]

	if err != nil {
		return 0, vdiskerr.Wrap(vdiskerr.Corrupt, "vhd.Footer.ReadFrom", err)
	}
	return FooterSize, nil
}

// WriteTo encodes f into exactly FooterSize bytes of b.
func (f *Footer) WriteTo(b []byte) error {
	if len(b) < FooterSize {
		return byteio.ErrSliceTooShort
	}
	clearBytes(b[:FooterSize])
	copy(b[0:8], cookie[:])
	if err := byteio.PutUint32BE(b[8:], f.Features); err != nil {
		return err
	}
	if err := byteio.PutUint32BE(b[12:], f.FileFormatVersion); err != nil {
		return err
	}
	if err := byteio.PutUint64BE(b[16:], f.DataOffset); err != nil {
		return err
	}
	if err := byteio.PutUint32BE(b[24:], f.Timestamp); err != nil {
		return err
	}
	copy(b[28:32], f.CreatorApp[:])
	if err := byteio.PutUint32BE(b[32:], f.CreatorVersion); err != nil {
		return err
	}
	copy(b[36:40], f.CreatorHostOS[:])
	if err := byteio.PutUint64BE(b[40:], f.OriginalSize); err != nil {
		return err
	}
	if err := byteio.PutUint64BE(b[48:], f.CurrentSize); err != nil {
		return err
	}
	if err := byteio.PutUint16BE(b[56:], f.Geometry.Cylinders); err != nil {
		return err
	}
	b[58] = f.Geometry.Heads
	b[59] = f.Geometry.SectorsPerTrack
	if err := byteio.PutUint32BE(b[60:], f.DiskType); err != nil {
		return err
	}
	if err := byteio.PutUint32BE(b[64:], f.Checksum); err != nil {
		return err
	}
	if err := byteio.PutGUIDBig(b[68:84], f.UniqueID); err != nil {
		return err
	}
	b[84] = f.SavedState
	return nil
}

// NeedsParent reports spec.md §3's invariant for this image: differencing
// disks need a parent, others do not.
func (f *Footer) NeedsParent() bool { return f.DiskType == DiskTypeDifferencing }

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func firstErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}

var _ ondisk.Serializable = (*Footer)(nil)
var _ ondisk.Writable = (*Footer)(nil)
