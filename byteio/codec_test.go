// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package byteio

import (
	"errors"
	"testing"
)

func TestIntRoundTrip(t *testing.T) {
	t.Run("uint16le", func(t *testing.T) {
		b := make([]byte, 2)
		if err := PutUint16LE(b, 0xBEEF); err != nil {
			t.Fatal(err)
		}
		got, err := Uint16LE(b)
		if err != nil || got != 0xBEEF {
			t.Fatalf("got %#x, %v", got, err)
		}
		if _, err := Uint16LE(b[:1]); !errors.Is(err, ErrSliceTooShort) {
			t.Fatalf("expected ErrSliceTooShort, got %v", err)
		}
	})

	t.Run("uint32be", func(t *testing.T) {
		b := make([]byte, 4)
		if err := PutUint32BE(b, 0xCAFEBABE); err != nil {
			t.Fatal(err)
		}
		got, err := Uint32BE(b)
		if err != nil || got != 0xCAFEBABE {
			t.Fatalf("got %#x, %v", got, err)
		}
		if err := PutUint32BE(b[:3], 1); !errors.Is(err, ErrSliceTooShort) {
			t.Fatalf("expected ErrSliceTooShort, got %v", err)
		}
	})

	t.Run("uint64le and int64be", func(t *testing.T) {
		b := make([]byte, 8)
		if err := PutUint64LE(b, 0x0102030405060708); err != nil {
			t.Fatal(err)
		}
		got, err := Uint64LE(b)
		if err != nil || got != 0x0102030405060708 {
			t.Fatalf("got %#x, %v", got, err)
		}

		if err := PutInt64BE(b, -1); err != nil {
			t.Fatal(err)
		}
		gi, err := Int64BE(b)
		if err != nil || gi != -1 {
			t.Fatalf("got %d, %v", gi, err)
		}
	})
}

func TestGUIDRoundTrip(t *testing.T) {
	g := GUID{0x28, 0x73, 0x2a, 0xc1, 0x1f, 0xf8, 0xd2, 0x11, 0xba, 0x4b, 0x00, 0xa0, 0xc9, 0x3e, 0xc9, 0x3b}

	t.Run("mixed", func(t *testing.T) {
		b := make([]byte, 16)
		if err := PutGUIDMixed(b, g); err != nil {
			t.Fatal(err)
		}
		got, err := GUIDMixed(b)
		if err != nil || got != g {
			t.Fatalf("got %x, %v", got, err)
		}
		if _, err := GUIDMixed(b[:15]); !errors.Is(err, ErrSliceTooShort) {
			t.Fatalf("expected ErrSliceTooShort, got %v", err)
		}
	})

	t.Run("big", func(t *testing.T) {
		b := make([]byte, 16)
		if err := PutGUIDBig(b, g); err != nil {
			t.Fatal(err)
		}
		got, err := GUIDBig(b)
		if err != nil || got != g {
			t.Fatalf("got %x, %v", got, err)
		}
	})

	t.Run("zero", func(t *testing.T) {
		var z GUID
		if !z.IsZero() {
			t.Fatal("zero GUID should report IsZero")
		}
		if g.IsZero() {
			t.Fatal("non-zero GUID reported IsZero")
		}
	})
}

func TestUTF16RoundTrip(t *testing.T) {
	b := make([]byte, 20)
	if err := PutUTF16LEString(b, "hello"); err != nil {
		t.Fatal(err)
	}
	got, err := UTF16LEString(b, true)
	if err != nil || got != "hello" {
		t.Fatalf("got %q, %v", got, err)
	}

	// without stripping, trailing NULs decode to U+0000 runes
	raw, err := UTF16LEString(b, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) <= len("hello") {
		t.Fatalf("expected padding NULs to survive, got %q", raw)
	}

	if err := PutUTF16LEString(make([]byte, 2), "toolong"); !errors.Is(err, ErrSliceTooShort) {
		t.Fatalf("expected ErrSliceTooShort, got %v", err)
	}
}

func TestLatin1Tag4(t *testing.T) {
	b := make([]byte, 4)
	if err := PutLatin1Tag4(b, "W2ru"); err != nil {
		t.Fatal(err)
	}
	got, err := Latin1Tag4(b)
	if err != nil || got != "W2ru" {
		t.Fatalf("got %q, %v", got, err)
	}
	if err := PutLatin1Tag4(b, "ab"); err == nil {
		t.Fatal("expected error for wrong-length tag")
	}
}
