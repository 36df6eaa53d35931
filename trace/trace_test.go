// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package trace

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/elliotnunn/vdiskcore/sparse"
)

// failingStream wraps a MemStream and fails every WriteAt at failPos.
type failingStream struct {
	*sparse.MemStream
	failPos int64
}

var errDiskFull = errors.New("disk full")

func (f *failingStream) WriteAt(p []byte, pos int64) (int, error) {
	if pos == f.failPos {
		return 0, errDiskFull
	}
	return f.MemStream.WriteAt(p, pos)
}

// TestTracerFidelity exercises spec.md §8 property 7.
func TestTracerFidelity(t *testing.T) {
	inner := &failingStream{MemStream: sparse.NewMemStream(4096), failPos: 999}
	tr := New(inner) // trace_writes=true, trace_reads=false by default
	tr.Start()

	if _, err := tr.WriteAt(make([]byte, 10), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.WriteAt(make([]byte, 20), 10); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.WriteAt(make([]byte, 30), 30); err != nil {
		t.Fatal(err)
	}

	// an intervening read must produce no record (trace_reads is off)
	if _, err := tr.ReadAt(make([]byte, 5), 0); err != nil {
		t.Fatal(err)
	}

	recs := tr.Records()
	if len(recs) != 3 {
		t.Fatalf("expected exactly 3 records, got %d", len(recs))
	}
	wantPos := []int64{0, 10, 30}
	wantCount := []int{10, 20, 30}
	for i, r := range recs {
		if r.Activity != Write || r.Position != wantPos[i] || r.Count != wantCount[i] || r.Result != wantCount[i] {
			t.Fatalf("record %d mismatch: %+v", i, r)
		}
	}

	// now a write that throws
	_, err := tr.WriteAt(make([]byte, 1), 999)
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected the underlying error to be observed by the caller, got %v", err)
	}
	recs = tr.Records()
	last := recs[len(recs)-1]
	if last.Result != -1 || last.Err == nil {
		t.Fatalf("expected a failed-write record with result=-1 and captured exception, got %+v", last)
	}
}

// TestTracerOrderingUnderReset exercises spec.md §8 property 8.
func TestTracerOrderingUnderReset(t *testing.T) {
	inner := sparse.NewMemStream(4096)
	tr := New(inner)

	tr.Start()
	tr.WriteAt([]byte("aaaa"), 0)
	tr.Stop()
	tr.WriteAt([]byte("bbbb"), 100) // stopped: must not be recorded
	tr.Reset(true)
	tr.WriteAt([]byte("cccc"), 200)

	recs := tr.Records()
	if len(recs) != 1 {
		t.Fatalf("expected exactly 1 record after reset, got %d", len(recs))
	}
	if recs[0].Position != 200 {
		t.Fatalf("expected only the post-reset write logged, got %+v", recs[0])
	}
}

// TestTracerFileSink exercises the §8 worked example: after start(),
// write_to_file, one successful 16-byte write at position 0x40 produces
// exactly one matching line.
func TestTracerFileSink(t *testing.T) {
	inner := sparse.NewMemStream(4096)
	tr := New(inner)
	tr.Start()

	path := filepath.Join(t.TempDir(), "t.log")
	if err := tr.WriteToFile(path); err != nil {
		t.Fatal(err)
	}

	if _, err := tr.WriteAt(make([]byte, 16), 0x40); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("expected exactly one line, got %d: %q", len(lines), data)
	}
	want := "1 WRITE @pos=40 count=16 result=16"
	if string(lines[0]) != want {
		t.Fatalf("got %q want %q", lines[0], want)
	}
}
