// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package extent

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble/v2"
)

// PebbleSpillIndex is a SpillIndex backed by an embedded ordered
// key-value store, realizing spec.md §4.5 step 3's "secondary ordered
// structure" concretely: keys are (fileID, blocksSeen) pairs, values are
// packed extent descriptors (DescriptorSize bytes each).
//
// Declared as a direct dependency in the teacher's go.mod but not
// exercised by any sampled file there; given a concrete home here as the
// extents-overflow index every disk-image format with a "spill when the
// in-band array is full" design needs (HFS+'s extents overflow file,
// VHD/VHDX's dynamic block allocation table once it exceeds what a
// single-level table can index, ext4's extent tree interior nodes).
type PebbleSpillIndex struct {
	db *pebble.DB
}

// OpenPebbleSpillIndex opens (creating if absent) a pebble store at dir.
func OpenPebbleSpillIndex(dir string) (*PebbleSpillIndex, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleSpillIndex{db: db}, nil
}

func spillKey(fileID string, blocksSeen int64) []byte {
	key := make([]byte, len(fileID)+1+8)
	copy(key, fileID)
	key[len(fileID)] = 0
	binary.BigEndian.PutUint64(key[len(fileID)+1:], uint64(blocksSeen))
	return key
}

// Put stores the packed descriptors that continue fileID's map starting
// at blocksSeen blocks in. Called by whatever builds the spill index
// (typically a format module's writer, out of the core's scope, but the
// accessor lives here since it shares the key encoding with Lookup).
func (s *PebbleSpillIndex) Put(fileID string, blocksSeen int64, packed []byte) error {
	return s.db.Set(spillKey(fileID, blocksSeen), packed, pebble.Sync)
}

// Lookup implements SpillIndex.
func (s *PebbleSpillIndex) Lookup(fileID string, blocksSeen int64) ([]byte, bool, error) {
	v, closer, err := s.db.Get(spillKey(fileID, blocksSeen))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	return out, true, closer.Close()
}

// Close releases the underlying store.
func (s *PebbleSpillIndex) Close() error {
	return s.db.Close()
}

var _ SpillIndex = (*PebbleSpillIndex)(nil)
