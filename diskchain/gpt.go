// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package diskchain

import (
	"github.com/elliotnunn/vdiskcore/byteio"
	"github.com/elliotnunn/vdiskcore/ondisk"
	"github.com/elliotnunn/vdiskcore/vdiskerr"
)

// GPTEntrySize is the fixed width of one GUID Partition Table entry
// (spec.md §6).
const GPTEntrySize = 128

// well-known partition type GUIDs, byte-exact per the UEFI spec, stored
// here (not computed) since they are literal constants of the format.
var efiSystemPartitionType = byteio.GUID{
	0x28, 0x73, 0x2a, 0xc1, 0x1f, 0xf8, 0xd2, 0x11,
	0xba, 0x4b, 0x00, 0xa0, 0xc9, 0x3e, 0xc9, 0x3b,
}

// GPTEntry is one partition table entry, bit-exact per spec.md §6:
// little-endian throughout, a mixed-encoding type/unique GUID pair,
// two LBA bounds, an attribute bitmask, and a fixed-width UTF-16LE name.
//
// Grounded on internal/hfs/hfs.go's catalog-record parse (fixed offsets
// decoded field-by-field with byteio-equivalent helpers) generalized
// from HFS+ catalog records to the GPT partition entry spec.md §6 names
// as its worked example.
type GPTEntry struct {
	TypeGUID   byteio.GUID
	UniqueGUID byteio.GUID
	FirstLBA   int64
	LastLBA    int64
	Attributes uint64
	Name       string
}

func (e *GPTEntry) SizeBytes() int { return GPTEntrySize }

// ReadFrom decodes one 128-byte GPT entry from b.
func (e *GPTEntry) ReadFrom(b []byte) (int, error) {
	if len(b) < GPTEntrySize {
		return 0, vdiskerr.Wrap(vdiskerr.SliceTooShort, "diskchain.GPTEntry.ReadFrom", byteio.ErrSliceTooShort)
	}

	typeGUID, err := byteio.GUIDMixed(b[0:16])
	if err != nil {
		return 0, vdiskerr.Wrap(vdiskerr.Corrupt, "diskchain.GPTEntry.ReadFrom", err)
	}
	uniqueGUID, err := byteio.GUIDMixed(b[16:32])
	if err != nil {
		return 0, vdiskerr.Wrap(vdiskerr.Corrupt, "diskchain.GPTEntry.ReadFrom", err)
	}
	firstLBA, err := byteio.Int64LE(b[32:40])
	if err != nil {
		return 0, vdiskerr.Wrap(vdiskerr.Corrupt, "diskchain.GPTEntry.ReadFrom", err)
	}
	lastLBA, err := byteio.Int64LE(b[40:48])
	if err != nil {
		return 0, vdiskerr.Wrap(vdiskerr.Corrupt, "diskchain.GPTEntry.ReadFrom", err)
	}
	attrs, err := byteio.Uint64LE(b[48:56])
	if err != nil {
		return 0, vdiskerr.Wrap(vdiskerr.Corrupt, "diskchain.GPTEntry.ReadFrom", err)
	}
	name, err := byteio.UTF16LEString(b[56:128], true)
	if err != nil {
		return 0, vdiskerr.Wrap(vdiskerr.Corrupt, "diskchain.GPTEntry.ReadFrom", err)
	}

	e.TypeGUID = typeGUID
	e.UniqueGUID = uniqueGUID
	e.FirstLBA = firstLBA
	e.LastLBA = lastLBA
	e.Attributes = attrs
	e.Name = name
	return GPTEntrySize, nil
}

// WriteTo encodes e into exactly GPTEntrySize bytes of b.
func (e *GPTEntry) WriteTo(b []byte) error {
	if len(b) < GPTEntrySize {
		return byteio.ErrSliceTooShort
	}
	if err := byteio.PutGUIDMixed(b[0:16], e.TypeGUID); err != nil {
		return err
	}
	if err := byteio.PutGUIDMixed(b[16:32], e.UniqueGUID); err != nil {
		return err
	}
	if err := byteio.PutInt64LE(b[32:40], e.FirstLBA); err != nil {
		return err
	}
	if err := byteio.PutInt64LE(b[40:48], e.LastLBA); err != nil {
		return err
	}
	if err := byteio.PutUint64LE(b[48:56], e.Attributes); err != nil {
		return err
	}
	return byteio.PutUTF16LEString(b[56:128], e.Name)
}

// FriendlyType maps well-known partition type GUIDs to a human name, the
// way a disk-info tool's listing would; unrecognized types report
// "unknown".
func (e *GPTEntry) FriendlyType() string {
	if e.TypeGUID == efiSystemPartitionType {
		return "EFI System"
	}
	return "unknown"
}

var _ ondisk.Serializable = (*GPTEntry)(nil)
var _ ondisk.Writable = (*GPTEntry)(nil)
