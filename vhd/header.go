// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package vhd

import (
	"github.com/elliotnunn/vdiskcore/byteio"
	"github.com/elliotnunn/vdiskcore/ondisk"
	"github.com/elliotnunn/vdiskcore/vdiskerr"
)

// HeaderSize is the fixed width of the VHD "dynamic disk header", present
// in dynamic and differencing disks only, at Footer.DataOffset.
const HeaderSize = 1024

// ParentLocatorCount is the fixed number of parent-locator slots a
// dynamic disk header carries; unused slots have a zero platform code.
const ParentLocatorCount = 8

var headerCookie = [8]byte{'c', 'x', 's', 'p', 'a', 'r', 's', 'e'}

// ParentLocatorEntry is spec.md §6's bit-exact 24-byte parent-locator
// record: a platform-dependent pointer to a differencing disk's parent
// file.
type ParentLocatorEntry struct {
	PlatformCode       string // exactly 4 Latin-1 characters, e.g. "W2ru"
	PlatformDataSpace  uint32
	PlatformDataLength uint32
	PlatformDataOffset int64
}

const ParentLocatorEntrySize = 24

func (e *ParentLocatorEntry) SizeBytes() int { return ParentLocatorEntrySize }

// ReadFrom decodes one 24-byte parent-locator record from b, matching
// spec.md §6's worked example exactly (platform code, space, length,
// reserved, offset, all big-endian).
func (e *ParentLocatorEntry) ReadFrom(b []byte) (int, error) {
	if len(b) < ParentLocatorEntrySize {
		return 0, vdiskerr.Wrap(vdiskerr.SliceTooShort, "vhd.ParentLocatorEntry.ReadFrom", byteio.ErrSliceTooShort)
	}
	code, err := byteio.Latin1Tag4(b[0:4])
	if err != nil {
		return 0, vdiskerr.Wrap(vdiskerr.Corrupt, "vhd.ParentLocatorEntry.ReadFrom", err)
	}
	space, err := byteio.Uint32BE(b[4:8])
	if err != nil {
		return 0, vdiskerr.Wrap(vdiskerr.Corrupt, "vhd.ParentLocatorEntry.ReadFrom", err)
	}
	length, err := byteio.Uint32BE(b[8:12])
	if err != nil {
		return 0, vdiskerr.Wrap(vdiskerr.Corrupt, "vhd.ParentLocatorEntry.ReadFrom", err)
	}
	// b[12:16] reserved, ignored on read
	offset, err := byteio.Int64BE(b[16:24])
	if err != nil {
		return 0, vdiskerr.Wrap(vdiskerr.Corrupt, "vhd.ParentLocatorEntry.ReadFrom", err)
	}

	if code == "\x00\x00\x00\x00" {
		code = "" // zero-filled unused slot
	}
	e.PlatformCode = code
	e.PlatformDataSpace = space
	e.PlatformDataLength = length
	e.PlatformDataOffset = offset
	return ParentLocatorEntrySize, nil
}

// WriteTo encodes e into exactly ParentLocatorEntrySize bytes of b.
func (e *ParentLocatorEntry) WriteTo(b []byte) error {
	if len(b) < ParentLocatorEntrySize {
		return byteio.ErrSliceTooShort
	}
	if e.PlatformCode == "" {
		clearBytes(b[0:4]) // unused slot
	} else if err := byteio.PutLatin1Tag4(b[0:4], e.PlatformCode); err != nil {
		return err
	}
	if err := byteio.PutUint32BE(b[4:8], e.PlatformDataSpace); err != nil {
		return err
	}
	if err := byteio.PutUint32BE(b[8:12], e.PlatformDataLength); err != nil {
		return err
	}
	clearBytes(b[12:16])
	return byteio.PutInt64BE(b[16:24], e.PlatformDataOffset)
}

// Active reports whether this slot holds a real locator (spec.md §6
// doesn't define a sentinel explicitly; an empty platform code is this
// implementation's "unused slot" marker, matching how a freshly
// zero-filled header reads back).
func (e *ParentLocatorEntry) Active() bool { return e.PlatformCode != "" && e.PlatformCode != "\x00\x00\x00\x00" }

// Header is the VHD "dynamic disk header": BAT location/size plus, for
// differencing disks, the parent's unique_id and location hints.
type Header struct {
	TableOffset      uint64
	HeaderVersion    uint32
	MaxTableEntries  uint32
	BlockSize        uint32
	Checksum         uint32
	ParentUniqueID   byteio.GUID
	ParentTimestamp  uint32
	ParentLocators   [ParentLocatorCount]ParentLocatorEntry
}

func (h *Header) SizeBytes() int { return HeaderSize }

// ReadFrom decodes the dynamic disk header from exactly HeaderSize bytes.
func (h *Header) ReadFrom(b []byte) (int, error) {
	if len(b) < HeaderSize {
		return 0, vdiskerr.Wrap(vdiskerr.SliceTooShort, "vhd.Header.ReadFrom", byteio.ErrSliceTooShort)
	}
	if [8]byte(b[0:8]) != headerCookie {
		return 0, vdiskerr.New(vdiskerr.Corrupt, "vhd.Header.ReadFrom")
	}
	// b[8:16] data_offset of a further header chain; vdiskcore only
	// supports a single dynamic disk header, so this is not retained.

	var err error
	get32 := func(off int) uint32 { v, e := byteio.Uint32BE(b[off:]); err = firstErr(err, e); return v }
	get64 := func(off int) uint64 { v, e := byteio.Uint64BE(b[off:]); err = firstErr(err, e); return v }

	h.TableOffset = get64(16)
	h.HeaderVersion = get32(24)
	h.MaxTableEntries = get32(28)
	h.BlockSize = get32(32)
	h.Checksum = get32(36)
	guid, gerr := byteio.GUIDBig(b[40:56])
	err = firstErr(err, gerr)
	h.ParentUniqueID = guid
	h.ParentTimestamp = get32(56)
	// b[60:64] reserved1
	// b[64:576] parent_unicode_name, informational only; not decoded here
	if err != nil {
		return 0, vdiskerr.Wrap(vdiskerr.Corrupt, "vhd.Header.ReadFrom", err)
	}

	const locatorsStart = 576
	for i := range h.ParentLocators {
		off := locatorsStart + i*ParentLocatorEntrySize
		if _, err := h.ParentLocators[i].ReadFrom(b[off : off+ParentLocatorEntrySize]); err != nil {
			return 0, err
		}
	}

	return HeaderSize, nil
}

// WriteTo encodes h into exactly HeaderSize bytes of b.
func (h *Header) WriteTo(b []byte) error {
	if len(b) < HeaderSize {
		return byteio.ErrSliceTooShort
	}
	clearBytes(b[:HeaderSize])
	copy(b[0:8], headerCookie[:])
	if err := byteio.PutUint64BE(b[8:16], ^uint64(0)); err != nil { // no further header chain
		return err
	}
	if err := byteio.PutUint64BE(b[16:24], h.TableOffset); err != nil {
		return err
	}
	if err := byteio.PutUint32BE(b[24:28], h.HeaderVersion); err != nil {
		return err
	}
	if err := byteio.PutUint32BE(b[28:32], h.MaxTableEntries); err != nil {
		return err
	}
	if err := byteio.PutUint32BE(b[32:36], h.BlockSize); err != nil {
		return err
	}
	if err := byteio.PutUint32BE(b[36:40], h.Checksum); err != nil {
		return err
	}
	if err := byteio.PutGUIDBig(b[40:56], h.ParentUniqueID); err != nil {
		return err
	}
	if err := byteio.PutUint32BE(b[56:60], h.ParentTimestamp); err != nil {
		return err
	}

	const locatorsStart = 576
	for i := range h.ParentLocators {
		off := locatorsStart + i*ParentLocatorEntrySize
		if err := h.ParentLocators[i].WriteTo(b[off : off+ParentLocatorEntrySize]); err != nil {
			return err
		}
	}
	return nil
}

var _ ondisk.Serializable = (*ParentLocatorEntry)(nil)
var _ ondisk.Writable = (*ParentLocatorEntry)(nil)
var _ ondisk.Serializable = (*Header)(nil)
var _ ondisk.Writable = (*Header)(nil)
