// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package byteio implements the fixed-width codec every on-disk structure
// in vdiskcore composes from: little/big-endian integers, mixed- and
// big-endian GUIDs, and UTF-16/Latin-1 string slots.
package byteio

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"
)

// ErrSliceTooShort is returned whenever a read or write needs more bytes
// than the caller supplied.
var ErrSliceTooShort = errors.New("byteio: slice too short")

func need(b []byte, n int) error {
	if len(b) < n {
		return ErrSliceTooShort
	}
	return nil
}

// Uint16LE reads a little-endian uint16 from b[0:2].
func Uint16LE(b []byte) (uint16, error) {
	if err := need(b, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// PutUint16LE writes a little-endian uint16 into b[0:2].
func PutUint16LE(b []byte, v uint16) error {
	if err := need(b, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

// Uint16BE reads a big-endian uint16 from b[0:2].
func Uint16BE(b []byte) (uint16, error) {
	if err := need(b, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// PutUint16BE writes a big-endian uint16 into b[0:2].
func PutUint16BE(b []byte, v uint16) error {
	if err := need(b, 2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b, v)
	return nil
}

// Uint32LE reads a little-endian uint32 from b[0:4].
func Uint32LE(b []byte) (uint32, error) {
	if err := need(b, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// PutUint32LE writes a little-endian uint32 into b[0:4].
func PutUint32LE(b []byte, v uint32) error {
	if err := need(b, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// Uint32BE reads a big-endian uint32 from b[0:4].
func Uint32BE(b []byte) (uint32, error) {
	if err := need(b, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// PutUint32BE writes a big-endian uint32 into b[0:4].
func PutUint32BE(b []byte, v uint32) error {
	if err := need(b, 4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, v)
	return nil
}

// Uint64LE reads a little-endian uint64 from b[0:8].
func Uint64LE(b []byte) (uint64, error) {
	if err := need(b, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// PutUint64LE writes a little-endian uint64 into b[0:8].
func PutUint64LE(b []byte, v uint64) error {
	if err := need(b, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

// Uint64BE reads a big-endian uint64 from b[0:8].
func Uint64BE(b []byte) (uint64, error) {
	if err := need(b, 8); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// PutUint64BE writes a big-endian uint64 into b[0:8].
func PutUint64BE(b []byte, v uint64) error {
	if err := need(b, 8); err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b, v)
	return nil
}

// Int16LE, Int32LE, Int64LE and their BE counterparts are thin signed
// reinterpretations of the unsigned readers above; on-disk formats
// (VHD's geometry fields, GPT's LBA fields) mix signedness freely.

func Int16LE(b []byte) (int16, error) { v, err := Uint16LE(b); return int16(v), err }
func Int16BE(b []byte) (int16, error) { v, err := Uint16BE(b); return int16(v), err }
func Int32LE(b []byte) (int32, error) { v, err := Uint32LE(b); return int32(v), err }
func Int32BE(b []byte) (int32, error) { v, err := Uint32BE(b); return int32(v), err }
func Int64LE(b []byte) (int64, error) { v, err := Uint64LE(b); return int64(v), err }
func Int64BE(b []byte) (int64, error) { v, err := Uint64BE(b); return int64(v), err }

func PutInt16LE(b []byte, v int16) error { return PutUint16LE(b, uint16(v)) }
func PutInt16BE(b []byte, v int16) error { return PutUint16BE(b, uint16(v)) }
func PutInt32LE(b []byte, v int32) error { return PutUint32LE(b, uint32(v)) }
func PutInt32BE(b []byte, v int32) error { return PutUint32BE(b, uint32(v)) }
func PutInt64LE(b []byte, v int64) error { return PutUint64LE(b, uint64(v)) }
func PutInt64BE(b []byte, v int64) error { return PutUint64BE(b, uint64(v)) }

// GUID is a 128-bit unique identifier as carried by VHD/VHDX/GPT structures.
type GUID [16]byte

// GUIDMixed reads a GUID in the Microsoft "mixed" encoding: the first three
// fields (Data1 uint32, Data2/Data3 uint16) little-endian, the last eight
// bytes (Data4) raw, from b[0:16].
func GUIDMixed(b []byte) (GUID, error) {
	if err := need(b, 16); err != nil {
		return GUID{}, err
	}
	var g GUID
	binary.LittleEndian.PutUint32(g[0:4], binary.LittleEndian.Uint32(b[0:4]))
	binary.LittleEndian.PutUint16(g[4:6], binary.LittleEndian.Uint16(b[4:6]))
	binary.LittleEndian.PutUint16(g[6:8], binary.LittleEndian.Uint16(b[6:8]))
	copy(g[8:16], b[8:16])
	return g, nil
}

// PutGUIDMixed writes g into b[0:16] in the mixed encoding.
func PutGUIDMixed(b []byte, g GUID) error {
	if err := need(b, 16); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b[0:4], binary.LittleEndian.Uint32(g[0:4]))
	binary.LittleEndian.PutUint16(b[4:6], binary.LittleEndian.Uint16(g[4:6]))
	binary.LittleEndian.PutUint16(b[6:8], binary.LittleEndian.Uint16(g[6:8]))
	copy(b[8:16], g[8:16])
	return nil
}

// GUIDBig reads a GUID as 16 raw big-endian bytes (no field reordering),
// the encoding used outside Microsoft-origin formats.
func GUIDBig(b []byte) (GUID, error) {
	if err := need(b, 16); err != nil {
		return GUID{}, err
	}
	var g GUID
	copy(g[:], b[:16])
	return g, nil
}

// PutGUIDBig writes g into b[0:16] as raw bytes.
func PutGUIDBig(b []byte, g GUID) error {
	if err := need(b, 16); err != nil {
		return err
	}
	copy(b[:16], g[:])
	return nil
}

// IsZero reports whether g is the all-zero GUID, used by diskchain to test
// "no parent".
func (g GUID) IsZero() bool {
	return g == GUID{}
}

// UTF16LEString reads a UTF-16LE string from b, which must have even length.
// If stripTrailingNUL is set, trailing U+0000 code units are removed.
func UTF16LEString(b []byte, stripTrailingNUL bool) (string, error) {
	return decodeUTF16(b, binary.LittleEndian, stripTrailingNUL)
}

// UTF16BEString reads a UTF-16BE string from b, which must have even length.
func UTF16BEString(b []byte, stripTrailingNUL bool) (string, error) {
	return decodeUTF16(b, binary.BigEndian, stripTrailingNUL)
}

func decodeUTF16(b []byte, order binary.ByteOrder, stripTrailingNUL bool) (string, error) {
	if len(b)%2 != 0 {
		return "", errors.New("byteio: odd-length UTF-16 slice")
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = order.Uint16(b[2*i:])
	}
	if stripTrailingNUL {
		for len(units) > 0 && units[len(units)-1] == 0 {
			units = units[:len(units)-1]
		}
	}
	return string(utf16.Decode(units)), nil
}

// PutUTF16LEString encodes s as UTF-16LE, zero-padding to exactly len(b)
// bytes. It fails with ErrSliceTooShort if the encoding does not fit.
func PutUTF16LEString(b []byte, s string) error {
	return encodeUTF16(b, s, binary.LittleEndian)
}

// PutUTF16BEString encodes s as UTF-16BE, zero-padding to exactly len(b)
// bytes.
func PutUTF16BEString(b []byte, s string) error {
	return encodeUTF16(b, s, binary.BigEndian)
}

func encodeUTF16(b []byte, s string, order binary.ByteOrder) error {
	units := utf16.Encode([]rune(s))
	if len(units)*2 > len(b) {
		return ErrSliceTooShort
	}
	for i, u := range units {
		order.PutUint16(b[2*i:], u)
	}
	for i := len(units) * 2; i < len(b); i++ {
		b[i] = 0
	}
	return nil
}

// Latin1Tag4 reads an exactly-4-byte Latin-1 "tag" string, used by VHD
// parent-locator platform codes (e.g. "W2ru").
func Latin1Tag4(b []byte) (string, error) {
	if err := need(b, 4); err != nil {
		return "", err
	}
	r := make([]rune, 4)
	for i, c := range b[:4] {
		r[i] = rune(c)
	}
	return string(r), nil
}

// PutLatin1Tag4 writes a 4-character Latin-1 tag into b[0:4]. Every rune in
// s must be <= 0xFF.
func PutLatin1Tag4(b []byte, s string) error {
	if err := need(b, 4); err != nil {
		return err
	}
	rs := []rune(s)
	if len(rs) != 4 {
		return errors.New("byteio: tag must be exactly 4 characters")
	}
	for i, r := range rs {
		if r > 0xFF {
			return errors.New("byteio: tag character out of Latin-1 range")
		}
		b[i] = byte(r)
	}
	return nil
}
