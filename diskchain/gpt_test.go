// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package diskchain

import (
	"testing"

	"github.com/elliotnunn/vdiskcore/byteio"
)

// TestGPTEntryParse exercises spec.md §8's worked GPT entry example: a
// 128-byte entry whose type GUID is the well-known EFI System partition
// type.
func TestGPTEntryParse(t *testing.T) {
	b := make([]byte, GPTEntrySize)
	copy(b[0:16], efiSystemPartitionType[:])
	unique := byteio.GUID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	copy(b[16:32], unique[:])
	if err := byteio.PutInt64LE(b[32:40], 2048); err != nil {
		t.Fatal(err)
	}
	if err := byteio.PutInt64LE(b[40:48], 1048575); err != nil {
		t.Fatal(err)
	}
	if err := byteio.PutUint64LE(b[48:56], 0x8000000000000001); err != nil {
		t.Fatal(err)
	}
	if err := byteio.PutUTF16LEString(b[56:128], "EFI system partition"); err != nil {
		t.Fatal(err)
	}

	var e GPTEntry
	n, err := e.ReadFrom(b)
	if err != nil {
		t.Fatal(err)
	}
	if n != GPTEntrySize {
		t.Fatalf("expected SizeBytes()==n==%d, got %d", GPTEntrySize, n)
	}
	if e.FriendlyType() != "EFI System" {
		t.Fatalf("expected friendly_type EFI System, got %q", e.FriendlyType())
	}
	if e.UniqueGUID != unique {
		t.Fatalf("unique guid mismatch: %x", e.UniqueGUID)
	}
	if e.FirstLBA != 2048 || e.LastLBA != 1048575 {
		t.Fatalf("lba mismatch: %d %d", e.FirstLBA, e.LastLBA)
	}
	if e.Attributes != 0x8000000000000001 {
		t.Fatalf("attributes mismatch: %#x", e.Attributes)
	}
	if e.Name != "EFI system partition" {
		t.Fatalf("name mismatch: %q", e.Name)
	}
}

// TestGPTEntryRoundTrip exercises spec.md §8 property 2 (Serializable
// round trip) for GPTEntry.
func TestGPTEntryRoundTrip(t *testing.T) {
	want := GPTEntry{
		TypeGUID:   efiSystemPartitionType,
		UniqueGUID: byteio.GUID{9, 9, 9, 9},
		FirstLBA:   34,
		LastLBA:    2097118,
		Attributes: 0,
		Name:       "boot",
	}
	buf := make([]byte, want.SizeBytes())
	if err := want.WriteTo(buf); err != nil {
		t.Fatal(err)
	}

	var got GPTEntry
	if _, err := got.ReadFrom(buf); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}
