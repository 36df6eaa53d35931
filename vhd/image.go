// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package vhd

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/elliotnunn/vdiskcore/byteio"
	"github.com/elliotnunn/vdiskcore/diskchain"
	"github.com/elliotnunn/vdiskcore/extent"
	"github.com/elliotnunn/vdiskcore/layered"
	"github.com/elliotnunn/vdiskcore/ondisk"
	"github.com/elliotnunn/vdiskcore/ownership"
	"github.com/elliotnunn/vdiskcore/sparse"
	"github.com/elliotnunn/vdiskcore/vdiskerr"
)

// recognized parent-locator platform codes: the Windows-relative and
// Windows-absolute path forms, both UTF-16LE. Other platform codes (Mac
// alias records, for instance) are left Active() but unreadable as a
// path hint, so Image simply skips them.
const (
	platformCodeRelative = "W2ru"
	platformCodeAbsolute = "W2ku"
)

// deviceReadCacheBlocks bounds how many 64KB blocks Image.readCache keeps
// per opened image.
const deviceReadCacheBlocks = 256

// headerCacheSizeEnv names the environment variable controlling
// headerCache's approximate byte budget, following extent.ReadCache's
// env-var-or-default idiom.
const headerCacheSizeEnv = "VDISK_HEADER_CACHE_BYTES"

const defaultHeaderCacheBytes = 4 << 20

// headerCache memoizes footer/header bytes by (path, offset) across opens,
// so that resolving a differencing chain that references the same parent
// from more than one child (a common snapshot-tree shape) doesn't re-read
// that parent's footer once per child. Shared package-wide rather than
// per-Image since the benefit is cross-Image by construction.
var headerCache = newHeaderCache()

func newHeaderCache() *ondisk.HeaderCache {
	sizeBytes := defaultHeaderCacheBytes
	if e := os.Getenv(headerCacheSizeEnv); e != "" {
		n, err := strconv.Atoi(e)
		if err != nil || n <= 0 {
			panic("malformed " + headerCacheSizeEnv + " environment variable, should be a positive byte count: " + e)
		}
		sizeBytes = n
	}
	c, err := ondisk.NewHeaderCache(sizeBytes)
	if err != nil {
		slog.Warn("vhd: header cache init failed, footer/header reads will not be memoized", "err", err)
		return nil
	}
	return c
}

// readCached reads length bytes at offset from host, through headerCache
// keyed by path when a cache is available.
func readCached(host sparse.HostStream, path string, offset int64, length int) ([]byte, error) {
	if headerCache != nil {
		if b, ok := headerCache.Get(path, offset, length); ok {
			return b, nil
		}
	}
	buf := make([]byte, length)
	if _, err := host.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	if headerCache != nil {
		headerCache.Put(path, offset, buf)
	}
	return buf, nil
}

// Image is a VHD file opened far enough to participate in
// diskchain.Resolver: its footer and, for non-fixed disks, its dynamic
// disk header and block allocation table.
//
// Grounded on internal/hfs/hfs.go's New (parse a fixed header at a known
// offset into a struct, keep the open file handle alongside it).
type Image struct {
	path     string
	host     sparse.HostStream
	writable bool

	footer Footer
	header Header // zero value when footer.DiskType == DiskTypeFixed
	bat    []uint32

	blockSize   int64
	bitmapBytes int64

	readCache *extent.ReadCache
}

// Open parses path's footer and (for dynamic/differencing disks) dynamic
// disk header and block allocation table through host, which the caller
// has already obtained from a diskchain.Locator.
func Open(path string, host sparse.HostStream, writable bool) (*Image, error) {
	img := &Image{path: path, host: host, writable: writable}

	footerBuf, err := readCached(host, path, host.Len()-FooterSize, FooterSize)
	if err != nil {
		return nil, vdiskerr.Wrap(vdiskerr.IoFailed, "vhd.Open", err)
	}
	if _, err := img.footer.ReadFrom(footerBuf); err != nil {
		slog.Warn("vhd: footer parse failed", "path", path, "err", err)
		return nil, vdiskerr.Wrap(vdiskerr.Corrupt, "vhd.Open: footer", err)
	}

	if img.footer.DiskType != DiskTypeFixed {
		headerBuf, err := readCached(host, path, int64(img.footer.DataOffset), HeaderSize)
		if err != nil {
			return nil, vdiskerr.Wrap(vdiskerr.IoFailed, "vhd.Open: header", err)
		}
		if _, err := img.header.ReadFrom(headerBuf); err != nil {
			return nil, vdiskerr.Wrap(vdiskerr.Corrupt, "vhd.Open: header", err)
		}

		img.blockSize = int64(img.header.BlockSize)
		sectorsPerBlock := img.blockSize / 512
		bitmapBits := (sectorsPerBlock + 7) / 8
		bitmapSectors := (bitmapBits + 511) / 512
		if bitmapSectors < 1 {
			bitmapSectors = 1
		}
		img.bitmapBytes = bitmapSectors * 512

		bat, err := img.readBAT()
		if err != nil {
			return nil, err
		}
		img.bat = bat
		img.readCache = extent.NewReadCache(path, deviceReadCacheBlocks)
	}

	return img, nil
}

func (img *Image) readBAT() ([]uint32, error) {
	n := int(img.header.MaxTableEntries)
	buf := make([]byte, n*4)
	if _, err := img.host.ReadAt(buf, int64(img.header.TableOffset)); err != nil {
		return nil, vdiskerr.Wrap(vdiskerr.IoFailed, "vhd.Image.readBAT", err)
	}
	bat := make([]uint32, n)
	for i := range bat {
		v, err := byteio.Uint32BE(buf[i*4:])
		if err != nil {
			return nil, vdiskerr.Wrap(vdiskerr.Corrupt, "vhd.Image.readBAT", err)
		}
		bat[i] = v
	}
	return bat, nil
}

func (img *Image) UniqueID() byteio.GUID { return img.footer.UniqueID }
func (img *Image) ParentUniqueID() byteio.GUID {
	if img.footer.DiskType != DiskTypeDifferencing {
		return byteio.GUID{}
	}
	return img.header.ParentUniqueID
}
func (img *Image) NeedsParent() bool { return img.footer.NeedsParent() }
func (img *Image) FullPath() string  { return img.path }
func (img *Image) Capacity() int64   { return int64(img.footer.CurrentSize) }

// ParentLocationHints reads each active, recognized parent-locator slot's
// path bytes out of the host file, in header order (spec.md §4.6 tries
// hints in the order the format module provides them).
func (img *Image) ParentLocationHints() []string {
	if img.footer.DiskType != DiskTypeDifferencing {
		return nil
	}
	var hints []string
	for _, loc := range img.header.ParentLocators {
		if !loc.Active() {
			continue
		}
		if loc.PlatformCode != platformCodeRelative && loc.PlatformCode != platformCodeAbsolute {
			continue
		}
		buf := make([]byte, loc.PlatformDataLength)
		if _, err := img.host.ReadAt(buf, loc.PlatformDataOffset); err != nil {
			continue
		}
		path, err := byteio.UTF16LEString(buf, true)
		if err != nil {
			continue
		}
		hints = append(hints, path)
	}
	return hints
}

// OpenContent builds this image's own content stream and, for a
// differencing disk, layers it over lower via layered.Stack — the "per-
// block presence map selects whether a read falls through" mechanism
// spec.md §4.4 describes, realized here as the VHD format's own BAT
// serving as that presence map.
func (img *Image) OpenContent(lower sparse.Stream, own ownership.Tag) (sparse.Stream, error) {
	switch img.footer.DiskType {
	case DiskTypeFixed:
		return sparse.NewFileStream(img.host, img.writable), nil

	case DiskTypeDynamic:
		return img.ownStream(), nil

	case DiskTypeDifferencing:
		if lower == nil {
			return nil, vdiskerr.New(vdiskerr.ChainMismatch, "vhd.Image.OpenContent: differencing disk with no parent stream")
		}
		return layered.New(
			layered.Layer{Stream: img.ownStream(), Own: ownership.None},
			layered.Layer{Stream: lower, Own: own},
		), nil

	default:
		return nil, vdiskerr.New(vdiskerr.NotSupported, "vhd.Image.OpenContent: unknown disk type")
	}
}

func (img *Image) ownStream() *dynamicStream {
	return &dynamicStream{
		host:        img.host,
		bat:         img.bat,
		blockSize:   img.blockSize,
		bitmapBytes: img.bitmapBytes,
		capacity:    img.Capacity(),
		writable:    img.writable,
		cache:       img.readCache,
	}
}

// Close releases the underlying host handle.
func (img *Image) Close() error {
	if c, ok := img.host.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// NewOpener adapts Open into a diskchain.ImageOpener bound to locator, the
// factory shape Resolver expects.
func NewOpener(locator diskchain.Locator) diskchain.ImageOpener {
	return func(path string, writable bool) (diskchain.Image, error) {
		host, err := locator.Open(path, writable)
		if err != nil {
			return nil, vdiskerr.Wrap(vdiskerr.IoFailed, "vhd.NewOpener", err)
		}
		img, err := Open(path, host, writable)
		if err != nil {
			if c, ok := host.(interface{ Close() error }); ok {
				c.Close()
			}
			return nil, err
		}
		return img, nil
	}
}

var _ diskchain.Image = (*Image)(nil)
var _ diskchain.Closer = (*Image)(nil)
