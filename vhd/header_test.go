// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package vhd

import "testing"

// TestParentLocatorEntryParse exercises spec.md §8's VHD parent locator
// worked example exactly: bytes decode to platform_code="W2ru",
// platform_data_space=512, platform_data_length=100,
// platform_data_offset=0x1800.
func TestParentLocatorEntryParse(t *testing.T) {
	b := []byte{
		0x57, 0x32, 0x72, 0x75, // "W2ru"
		0x00, 0x00, 0x02, 0x00, // platform_data_space = 512
		0x00, 0x00, 0x00, 0x64, // platform_data_length = 100
		0x00, 0x00, 0x00, 0x00, // reserved
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x18, 0x00, // platform_data_offset = 0x1800
	}

	var e ParentLocatorEntry
	n, err := e.ReadFrom(b)
	if err != nil {
		t.Fatal(err)
	}
	if n != ParentLocatorEntrySize {
		t.Fatalf("expected %d bytes consumed, got %d", ParentLocatorEntrySize, n)
	}
	if e.PlatformCode != "W2ru" {
		t.Fatalf("platform code = %q, want W2ru", e.PlatformCode)
	}
	if e.PlatformDataSpace != 512 {
		t.Fatalf("platform data space = %d, want 512", e.PlatformDataSpace)
	}
	if e.PlatformDataLength != 100 {
		t.Fatalf("platform data length = %d, want 100", e.PlatformDataLength)
	}
	if e.PlatformDataOffset != 0x1800 {
		t.Fatalf("platform data offset = %#x, want 0x1800", e.PlatformDataOffset)
	}
	if !e.Active() {
		t.Fatal("expected Active() == true")
	}
}

// TestParentLocatorEntryRoundTrip exercises spec.md §8 property 2.
func TestParentLocatorEntryRoundTrip(t *testing.T) {
	want := ParentLocatorEntry{
		PlatformCode:       "W2ku",
		PlatformDataSpace:  1024,
		PlatformDataLength: 42,
		PlatformDataOffset: 0xABCD,
	}
	b := make([]byte, ParentLocatorEntrySize)
	if err := want.WriteTo(b); err != nil {
		t.Fatal(err)
	}
	var got ParentLocatorEntry
	if _, err := got.ReadFrom(b); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

// TestHeaderRoundTrip exercises spec.md §8 property 2 on the containing
// dynamic disk header, including an inactive locator slot.
func TestHeaderRoundTrip(t *testing.T) {
	want := Header{
		TableOffset:     1536,
		HeaderVersion:   0x00010000,
		MaxTableEntries: 4096,
		BlockSize:       2 * 1024 * 1024,
		Checksum:        0,
		ParentTimestamp: 12345,
	}
	want.ParentUniqueID[0] = 0xAA
	want.ParentLocators[0] = ParentLocatorEntry{
		PlatformCode:       "W2ru",
		PlatformDataSpace:  512,
		PlatformDataLength: 24,
		PlatformDataOffset: 0x2000,
	}
	// ParentLocators[1:] left zero-valued: empty platform code, inactive.

	b := make([]byte, HeaderSize)
	if err := want.WriteTo(b); err != nil {
		t.Fatal(err)
	}

	var got Header
	if _, err := got.ReadFrom(b); err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, want)
	}
	if got.ParentLocators[0].PlatformCode != "W2ru" || !got.ParentLocators[0].Active() {
		t.Fatal("expected slot 0 active with platform code W2ru")
	}
	if got.ParentLocators[1].Active() {
		t.Fatal("expected slot 1 inactive")
	}
}

func TestHeaderRejectsBadCookie(t *testing.T) {
	b := make([]byte, HeaderSize)
	copy(b, "notright")
	var h Header
	if _, err := h.ReadFrom(b); err == nil {
		t.Fatal("expected an error for a bad header cookie")
	}
}
