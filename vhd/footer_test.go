// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package vhd

import "testing"

// TestFooterRoundTrip exercises spec.md §8 property 2 on the VHD footer.
func TestFooterRoundTrip(t *testing.T) {
	want := Footer{
		Features:          0x00000002,
		FileFormatVersion: 0x00010000,
		DataOffset:        512,
		Timestamp:         0x1A2B3C4D,
		CreatorApp:        [4]byte{'v', 'p', 'c', ' '},
		CreatorVersion:    0x00050003,
		CreatorHostOS:     [4]byte{'W', 'i', '2', 'k'},
		OriginalSize:      64 * 1024 * 1024,
		CurrentSize:       64 * 1024 * 1024,
		Geometry:          Geometry{Cylinders: 1024, Heads: 16, SectorsPerTrack: 63},
		DiskType:          DiskTypeDynamic,
		Checksum:          0xDEADBEEF,
		SavedState:        0,
	}
	want.UniqueID[0] = 0x11
	want.UniqueID[15] = 0xFF

	b := make([]byte, FooterSize)
	if err := want.WriteTo(b); err != nil {
		t.Fatal(err)
	}

	var got Footer
	n, err := got.ReadFrom(b)
	if err != nil {
		t.Fatal(err)
	}
	if n != FooterSize {
		t.Fatalf("expected %d bytes consumed, got %d", FooterSize, n)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestFooterNeedsParent(t *testing.T) {
	cases := []struct {
		diskType uint32
		want     bool
	}{
		{DiskTypeFixed, false},
		{DiskTypeDynamic, false},
		{DiskTypeDifferencing, true},
	}
	for _, c := range cases {
		f := Footer{DiskType: c.diskType}
		if got := f.NeedsParent(); got != c.want {
			t.Errorf("DiskType=%d: NeedsParent() = %v, want %v", c.diskType, got, c.want)
		}
	}
}

func TestFooterRejectsBadCookie(t *testing.T) {
	b := make([]byte, FooterSize)
	copy(b, "notacnxt")
	var f Footer
	if _, err := f.ReadFrom(b); err == nil {
		t.Fatal("expected an error for a bad footer cookie")
	}
}

func TestFooterRejectsShortBuffer(t *testing.T) {
	var f Footer
	if _, err := f.ReadFrom(make([]byte, FooterSize-1)); err == nil {
		t.Fatal("expected an error for a too-short buffer")
	}
}
