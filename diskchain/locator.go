// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package diskchain

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-tinylfu"

	"github.com/elliotnunn/vdiskcore/sparse"
)

// Locator is the filesystem-facing capability a Resolver uses to turn a
// parent image's location hints into an openable host stream (spec.md
// §4.6's "the platform supplies a Locator capability"). Kept as an
// interface so callers embedding vdiskcore in a FUSE layer, a VFS, or a
// plain OS filesystem can all supply their own.
type Locator interface {
	// Expand turns one location hint (may be a doublestar glob, may be a
	// bare relative or absolute path) into zero or more candidate
	// absolute paths, resolved relative to fromDir.
	Expand(fromDir, hint string) ([]string, error)

	// Exists reports whether path names a regular file that can be
	// opened. Resolver calls this once per candidate before attempting
	// Open, so a Locator backed by a slow or remote filesystem should
	// memoize it.
	Exists(path string) bool

	// Open opens path as a host byte stream, writable if requested.
	Open(path string, writable bool) (sparse.HostStream, error)
}

// DirLocator is the default Locator: an ordinary OS directory tree, with
// glob expansion via doublestar and an existence-check cache via
// tinylfu — grounded on path.go's glob walk (pattern matching against a
// directory tree) and internal/spinner/spinner.go's tinylfu popularity
// cache (same admission policy, repurposed here to remember "this
// candidate path doesn't exist" so a chain with many dead location
// hints doesn't re-stat them on every resolve).
type DirLocator struct {
	existsCache *tinylfu.T[uint64, bool]
}

const (
	existsCacheSize    = 4096
	existsCacheSamples = existsCacheSize * 10
)

// NewDirLocator builds a DirLocator with a bounded existence-check cache.
func NewDirLocator() *DirLocator {
	return &DirLocator{
		existsCache: tinylfu.New[uint64, bool](existsCacheSize, existsCacheSamples, hashPath),
	}
}

func hashPath(path string) uint64 {
	return xxhash.Sum64String(path)
}

// Expand resolves hint relative to fromDir. An absolute hint is used
// as-is; hints containing glob metacharacters are expanded with
// doublestar.Glob, others are returned as a single candidate whether or
// not they currently exist (Resolver checks Exists itself).
func (d *DirLocator) Expand(fromDir, hint string) ([]string, error) {
	if filepath.IsAbs(hint) {
		hint = filepath.Clean(hint)
	} else {
		hint = filepath.Join(fromDir, hint)
	}

	if !doublestar.ValidatePattern(hint) {
		return []string{hint}, nil
	}

	matches, err := doublestar.FilepathGlob(hint)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		// not a glob in practice (no metacharacters matched anything);
		// still offer it as a literal candidate.
		return []string{hint}, nil
	}
	return matches, nil
}

// Exists reports whether path names a regular, statable file, memoized
// per path hash.
func (d *DirLocator) Exists(path string) bool {
	key := hashPath(path)
	if ok, hit := d.existsCache.Get(key); hit {
		return ok
	}
	info, err := os.Stat(path)
	exists := err == nil && !info.IsDir()
	d.existsCache.Add(key, exists)
	return exists
}

// Open opens path as a plain OS file, wrapped so it satisfies
// sparse.HostStream.
func (d *DirLocator) Open(path string, writable bool) (sparse.HostStream, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	return &osHostStream{f: f}, nil
}

// osHostStream adapts *os.File to sparse.HostStream.
type osHostStream struct{ f *os.File }

func (h *osHostStream) ReadAt(p []byte, off int64) (int, error)  { return h.f.ReadAt(p, off) }
func (h *osHostStream) WriteAt(p []byte, off int64) (int, error) { return h.f.WriteAt(p, off) }
func (h *osHostStream) Flush() error                             { return h.f.Sync() }
func (h *osHostStream) Close() error                             { return h.f.Close() }

func (h *osHostStream) Len() int64 {
	info, err := h.f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

func (h *osHostStream) SetLength(n int64) error {
	return h.f.Truncate(n)
}

var _ Locator = (*DirLocator)(nil)
var _ sparse.HostStream = (*osHostStream)(nil)
