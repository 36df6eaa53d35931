// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package extent

import (
	"bytes"
	"errors"
	"testing"

	"github.com/elliotnunn/vdiskcore/vdiskerr"
)

func encodeDescriptor(startBlock, blockCount uint32) []byte {
	b := make([]byte, DescriptorSize)
	b[0] = byte(startBlock >> 24)
	b[1] = byte(startBlock >> 16)
	b[2] = byte(startBlock >> 8)
	b[3] = byte(startBlock)
	b[4] = byte(blockCount >> 24)
	b[5] = byte(blockCount >> 16)
	b[6] = byte(blockCount >> 8)
	b[7] = byte(blockCount)
	return b
}

// TestFindExtent exercises spec.md §8 property 3 exactly.
func TestFindExtent(t *testing.T) {
	m := &Map{
		FileID:      "f1",
		BlockSize:   4096,
		TotalBlocks: 5,
		InBand:      []Extent{{StartBlock: 100, BlockCount: 3}, {StartBlock: 200, BlockCount: 2}},
	}

	e, start, err := m.FindExtent(0)
	if err != nil || e.StartBlock != 100 || start != 0 {
		t.Fatalf("got %+v start=%d err=%v", e, start, err)
	}

	e, start, err = m.FindExtent(3*4096 - 1)
	if err != nil || e.StartBlock != 100 {
		t.Fatalf("got %+v start=%d err=%v", e, start, err)
	}

	e, start, err = m.FindExtent(3 * 4096)
	if err != nil || e.StartBlock != 200 || start != 3*4096 {
		t.Fatalf("got %+v start=%d err=%v", e, start, err)
	}

	_, _, err = m.FindExtent(5 * 4096)
	if k, ok := vdiskerr.KindOf(err); !ok || k != vdiskerr.BeyondEof {
		t.Fatalf("expected BeyondEof, got %v", err)
	}
}

func TestFindExtentSpillsOver(t *testing.T) {
	spill := MapSpillIndex{}
	spill.Put("f2", 2, encodeDescriptor(500, 10))

	m := &Map{
		FileID:      "f2",
		BlockSize:   512,
		TotalBlocks: 12,
		InBand:      []Extent{{StartBlock: 1, BlockCount: 2}},
		Spill:       spill,
	}

	e, start, err := m.FindExtent(2 * 512) // first block past in-band
	if err != nil {
		t.Fatal(err)
	}
	if e.StartBlock != 500 || start != 2*512 {
		t.Fatalf("got %+v start=%d", e, start)
	}
}

// TestFindExtentSpillsOverPebble is TestFindExtentSpillsOver's scenario
// run through PebbleSpillIndex instead of MapSpillIndex, exercising the
// embedded-store-backed SpillIndex implementation end to end.
func TestFindExtentSpillsOverPebble(t *testing.T) {
	spill, err := OpenPebbleSpillIndex(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer spill.Close()

	if err := spill.Put("f2", 2, encodeDescriptor(500, 10)); err != nil {
		t.Fatal(err)
	}

	m := &Map{
		FileID:      "f2",
		BlockSize:   512,
		TotalBlocks: 12,
		InBand:      []Extent{{StartBlock: 1, BlockCount: 2}},
		Spill:       spill,
	}

	e, start, err := m.FindExtent(2 * 512) // first block past in-band
	if err != nil {
		t.Fatal(err)
	}
	if e.StartBlock != 500 || start != 2*512 {
		t.Fatalf("got %+v start=%d", e, start)
	}
}

func TestFindExtentMissingSpill(t *testing.T) {
	m := &Map{
		FileID:      "f3",
		BlockSize:   512,
		TotalBlocks: 10,
		InBand:      []Extent{{StartBlock: 1, BlockCount: 2}},
		Spill:       MapSpillIndex{}, // present but has no entry
	}
	_, _, err := m.FindExtent(5 * 512)
	if k, ok := vdiskerr.KindOf(err); !ok || k != vdiskerr.MissingExtent {
		t.Fatalf("expected MissingExtent, got %v", err)
	}
}

// fakeDevice serves reads from an in-memory buffer.
type fakeDevice struct{ data []byte }

func (d *fakeDevice) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(d.data)) {
		return 0, errors.New("fakeDevice: EOF")
	}
	n := copy(p, d.data[off:])
	return n, nil
}

func TestBufferReadAcrossExtents(t *testing.T) {
	device := &fakeDevice{data: make([]byte, 10*4096)}
	// extent A lives at device blocks [100,103), extent B at [200,202)
	for i := range device.data[100*4096 : 103*4096] {
		device.data[100*4096+i] = 0xAA
	}
	for i := range device.data[200*4096 : 202*4096] {
		device.data[200*4096+i] = 0xBB
	}

	m := &Map{
		BlockSize:   4096,
		TotalBlocks: 5,
		InBand:      []Extent{{StartBlock: 100, BlockCount: 3}, {StartBlock: 200, BlockCount: 2}},
	}
	buf := &Buffer{Map: m, Device: device, LogicalLen: 5 * 4096}

	p := make([]byte, 2*4096)
	n, err := buf.ReadAt(p, 2*4096) // spans the extent A/B boundary
	if err != nil || n != len(p) {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if !bytes.Equal(p[:4096], bytes.Repeat([]byte{0xAA}, 4096)) {
		t.Fatal("expected extent A bytes")
	}
	if !bytes.Equal(p[4096:], bytes.Repeat([]byte{0xBB}, 4096)) {
		t.Fatal("expected extent B bytes")
	}
}

// TestStepReadProgressGuard exercises the "to_read == 0" backstop spec.md
// §9 calls out as untested upstream. FindExtent's own containment check
// guarantees extentOffset < extentSize for any well-formed extent list
// (block-granular math can't do otherwise), so the only way to observe
// the guard deterministically is to feed stepRead an (ext, extStart, pos)
// combination that a corrupt or stale map could produce — here, a
// position already at or past the extent's own declared end.
func TestStepReadProgressGuard(t *testing.T) {
	ext := Extent{StartBlock: 10, BlockCount: 1} // 4096 bytes at BlockSize=4096
	_, toRead := stepRead(ext, 0 /*extStart*/, 4096 /*blockSize*/, 4096 /*pos, == extent end*/, 100)
	if toRead > 0 {
		t.Fatalf("expected toRead <= 0 once pos reaches the extent's end, got %d", toRead)
	}
}

// TestBufferProgressGuard covers Buffer.ReadAt's side of the guard: with
// one extent whose BlockCount covers exactly LogicalLen, a full-length
// read returns every byte and the guard is never reached. Reaching the
// guard through FindExtent itself would require corrupt on-disk extent
// data; the guard's own arithmetic is exercised via stepRead above.
func TestBufferProgressGuard(t *testing.T) {
	device := &fakeDevice{data: bytes.Repeat([]byte{0x11}, 4096)}
	m := &Map{
		BlockSize:   4096,
		TotalBlocks: 1,
		InBand:      []Extent{{StartBlock: 0, BlockCount: 1}},
	}
	buf := &Buffer{Map: m, Device: device, LogicalLen: 4096}

	p := make([]byte, 4096)
	n, err := buf.ReadAt(p, 0)
	if err != nil || n != 4096 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if !bytes.Equal(p, device.data) {
		t.Fatal("expected full extent contents")
	}
}
