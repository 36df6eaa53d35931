// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package extent

import (
	"fmt"
	"os"
	"strconv"

	"github.com/maypok86/otter/v2"
)

// ReadCache memoizes fixed-size device-read blocks keyed by device
// identity and offset, so that repeated reads of the same extent window
// (common when a format module re-scans a directory or re-parses a
// header during chain resolution) don't re-issue the underlying I/O.
//
// Grounded directly on internal/reader2readerat/reader2readerat.go's
// block cache (same otter.Cache-backed shape, same env-var-configured
// size), simplified here because extent.Buffer's device is already a
// random-access ReaderAt — there's no "advance past a non-seekable
// reader" concern to replicate.
type ReadCache struct {
	blockSize int64
	cache     *otter.Cache[string, []byte]
	debugName string
}

// cacheBlockEnv names the environment variable controlling ReadCache's
// block size in bytes, following memlimit.go/cacheMemLimit's
// env-var-or-default idiom.
const cacheBlockEnv = "VDISK_CACHE_BLOCK"

const defaultBlockSize = 64 * 1024

// NewReadCache builds a cache holding up to maxBlocks blocks, each
// blockSize bytes (or the VDISK_CACHE_BLOCK override).
func NewReadCache(debugName string, maxBlocks int) *ReadCache {
	bs := int64(defaultBlockSize)
	if e := os.Getenv(cacheBlockEnv); e != "" {
		n, err := strconv.Atoi(e)
		if err != nil || n <= 0 {
			panic("malformed " + cacheBlockEnv + " environment variable, should be a positive byte count: " + e)
		}
		bs = int64(n)
	}
	return &ReadCache{
		blockSize: bs,
		debugName: debugName,
		cache:     otter.Must(&otter.Options[string, []byte]{MaximumSize: maxBlocks}),
	}
}

func (c *ReadCache) key(blockOff int64) string {
	return fmt.Sprintf("%s@%#x", c.debugName, blockOff)
}

// ReadAt serves p from cached blocks where possible, filling gaps from
// device and populating the cache as it goes.
func (c *ReadCache) ReadAt(device Device, p []byte, off int64) (int, error) {
	var done int64
	total := int64(len(p))

	for done < total {
		blockOff := (off + done) / c.blockSize * c.blockSize
		var block []byte
		if entry, ok := c.cache.GetEntry(c.key(blockOff)); ok {
			block = entry.Value
		} else {
			block = make([]byte, c.blockSize)
			n, err := device.ReadAt(block, blockOff)
			block = block[:n]
			c.cache.Set(c.key(blockOff), block)
			if err != nil && n == 0 {
				return int(done), err
			}
		}

		skip := (off + done) - blockOff
		if skip < 0 || skip > int64(len(block)) {
			break
		}
		src := block[skip:]
		n := copy(p[done:], src)
		done += int64(n)
		if n == 0 {
			break // short block at EOF; no more bytes to give
		}
	}
	return int(done), nil
}
