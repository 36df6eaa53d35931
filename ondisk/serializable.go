// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package ondisk implements the Serializable contract (spec.md §4.2, C2):
// every on-disk record type advertises its size and can be read from or
// written to a byte slice.
package ondisk

import (
	"github.com/elliotnunn/vdiskcore/vdiskerr"
)

// Serializable is implemented by every on-disk record type: VHD footers,
// parent-locator entries, GPT partition entries, and so on.
type Serializable interface {
	// SizeBytes is the record's on-disk size. For fixed-layout records
	// this is a constant; for variable-length records it may depend on
	// fields already populated by ReadFrom.
	SizeBytes() int

	// ReadFrom parses b (which must be at least SizeBytes() long) and
	// returns the number of bytes actually consumed, so callers can walk
	// a buffer containing a heterogeneous, variable-length array of
	// records.
	ReadFrom(b []byte) (n int, err error)
}

// Writable is the optional write half of Serializable. Not every record
// type supports it: some are only ever parsed, never emitted.
type Writable interface {
	Serializable
	WriteTo(b []byte) error
}

// ErrWriteNotSupported is returned by a read-only record's WriteTo, or by
// helper code attempting to write a Serializable that does not implement
// Writable.
var ErrWriteNotSupported = vdiskerr.New(vdiskerr.NotSupported, "ondisk.WriteTo")

// Write writes v into b if v implements Writable, else fails with
// ErrWriteNotSupported. This lets generic code (e.g. a record-array
// writer) stay agnostic to which concrete records are read-only.
func Write(v Serializable, b []byte) error {
	w, ok := v.(Writable)
	if !ok {
		return ErrWriteNotSupported
	}
	return w.WriteTo(b)
}

// ReadArray repeatedly constructs a new T via newT, calls ReadFrom at
// successive offsets into b, and appends the populated records, until b is
// exhausted. It is the idiom format modules use for "array of
// heterogeneous variable-length records" (e.g. VHD's block allocation
// table entries, or a run of parent-locator records).
func ReadArray[T Serializable](b []byte, newT func() T) ([]T, error) {
	var out []T
	for len(b) > 0 {
		rec := newT()
		n, err := rec.ReadFrom(b)
		if err != nil {
			return out, err
		}
		if n <= 0 {
			// progress guard: a record that consumes nothing would loop
			// forever walking the array.
			break
		}
		out = append(out, rec)
		b = b[n:]
	}
	return out, nil
}
