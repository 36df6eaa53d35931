// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package diskchain implements the virtual-disk chain resolver (spec.md
// §4.6, C6): given a top-level differencing image, locate and validate
// the linked parent chain by unique identifier, and assemble a read stack
// whose reads fall through to the deepest ancestor that has the data.
//
// Grounded on internal/hfs/hfs.go's New: iterative walk (extents →
// overflow → catalog), fail closed on the first inconsistency, control
// flow generalized here from "HFS extents overflow" to "disk parent
// chain".
package diskchain

import (
	"github.com/elliotnunn/vdiskcore/byteio"
	"github.com/elliotnunn/vdiskcore/ownership"
	"github.com/elliotnunn/vdiskcore/sparse"
)

// Image is one opened disk image file (spec.md §3's Disk image file I).
type Image interface {
	// UniqueID is this image's own 128-bit fingerprint.
	UniqueID() byteio.GUID

	// ParentUniqueID is the fingerprint of the image this one expects as
	// its parent; meaningful only when NeedsParent is true.
	ParentUniqueID() byteio.GUID

	// NeedsParent reports whether this image is a differencing disk.
	// Invariant (spec.md §3): NeedsParent() <=> !ParentUniqueID().IsZero().
	NeedsParent() bool

	// ParentLocationHints returns this image's ordered list of
	// platform-dependent candidate paths to its parent (VHD's
	// W2ru/W2ku parent-locator records, or equivalent).
	ParentLocationHints() []string

	// FullPath is this image's resolved path, used in error messages.
	FullPath() string

	// Capacity is the image's logical length in bytes.
	Capacity() int64

	// OpenContent returns this image's own sparse.Stream layered on top
	// of lower (the stream assembled from every ancestor below it in the
	// chain, or nil for the deepest image). own controls whether
	// layered.Stack will later close lower when it tears this layer
	// down.
	OpenContent(lower sparse.Stream, own ownership.Tag) (sparse.Stream, error)
}

// Closer is implemented by Images that hold an underlying file handle.
type Closer interface {
	Close() error
}
