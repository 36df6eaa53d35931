// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// vdiskinfo opens a VHD chain and prints its resolved structure: each
// image's path, unique id, capacity and needs_parent flag, then the
// assembled content stream's length and stored ranges. It exists
// to exercise the core end to end, not as a finished CLI — argument
// parsing, format auto-detection, and output formatting are all
// out of scope (spec.md §1).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/elliotnunn/vdiskcore/diskchain"
	"github.com/elliotnunn/vdiskcore/vhd"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <disk.vhd>\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}
	if err := run(os.Args[1]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string) error {
	locator := diskchain.NewDirLocator()
	resolver := &diskchain.Resolver{
		Locator: locator,
		Open:    vhd.NewOpener(locator),
	}

	chain, err := resolver.OpenChain(path, false)
	if err != nil {
		return err
	}

	for i, entry := range chain {
		img := entry.Image
		fmt.Printf("[%d] %s\n", i, img.FullPath())
		fmt.Printf("    unique_id=%x capacity=%d needs_parent=%v\n",
			img.UniqueID(), img.Capacity(), img.NeedsParent())
	}

	stream, err := diskchain.Assemble(chain)
	if err != nil {
		return err
	}
	fmt.Printf("assembled content stream: len=%d stored_ranges=%v\n",
		stream.Len(), stream.StoredRanges())
	return nil
}
