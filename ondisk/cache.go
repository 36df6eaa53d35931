// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package ondisk

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// HeaderCache memoizes the raw bytes behind a parsed fixed-size header
// (a VHD/VHDX footer, a GPT entry) keyed by (source identity, offset).
// Disk-chain resolution re-reads the same footer repeatedly while walking
// hints and verifying unique ids; this avoids re-issuing the underlying
// device read for bytes that cannot have changed during a single session.
//
// Grounded on internal/decompressioncache.ReaderAt, which caches decoded
// blocks keyed by a debug name plus an offset; here the "stepper" is
// replaced by a plain re-read function since header bytes, unlike
// decompressed blocks, are cheap to refetch and never chained.
type HeaderCache struct {
	cache *bigcache.BigCache
}

// NewHeaderCache builds a cache holding up to approximately sizeBytes of
// header data, evicting the oldest entries once full; entries also expire
// ten minutes after they are stored.
func NewHeaderCache(sizeBytes int) (*HeaderCache, error) {
	cfg := bigcache.DefaultConfig(10 * time.Minute)
	cfg.HardMaxCacheSize = max(1, sizeBytes/(1<<20)) // bigcache sizes in MB
	cfg.Shards = 16
	c, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &HeaderCache{cache: c}, nil
}

func headerKey(source string, offset int64) string {
	return fmt.Sprintf("%s@%#x", source, offset)
}

// Get returns a cached copy of the bytes at (source, offset, length), or
// ok == false on a miss.
func (c *HeaderCache) Get(source string, offset int64, length int) (b []byte, ok bool) {
	raw, err := c.cache.Get(headerKey(source, offset))
	if err != nil || len(raw) != length {
		return nil, false
	}
	out := make([]byte, length)
	copy(out, raw)
	return out, true
}

// Put stores a copy of b under (source, offset).
func (c *HeaderCache) Put(source string, offset int64, b []byte) {
	cp := make([]byte, len(b))
	copy(cp, b)
	_ = c.cache.Set(headerKey(source, offset), cp)
}
