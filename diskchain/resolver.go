// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package diskchain

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/elliotnunn/vdiskcore/ownership"
	"github.com/elliotnunn/vdiskcore/sparse"
	"github.com/elliotnunn/vdiskcore/vdiskerr"
)

// ImageOpener parses the image file at path (writable if requested) into
// an Image, format-specific (VHD, VHDX, ...). Resolver is otherwise
// format-agnostic.
type ImageOpener func(path string, writable bool) (Image, error)

// ChainEntry is one resolved link, paired with the ownership tag under
// which it will be handed to the assembled layered.Stack.
type ChainEntry struct {
	Image Image
	Own   ownership.Tag
}

// Resolver implements spec.md §4.6: walk a differencing disk's parent
// chain from the leaf toward the root, verifying each link by unique
// identifier, and assemble the result into a single layered content
// stream.
//
// Grounded on internal/hfs/hfs.go's New (iterative walk that stops at
// the first structural inconsistency) generalized from "catalog lookup"
// to "unique-ID-verified parent lookup", and on internal/spinner's
// worker-popularity dedup idiom, repurposed here to skip any candidate
// path already opened as part of the same chain, so a cyclic hint cannot
// reopen a file.
type Resolver struct {
	Locator Locator
	Open    ImageOpener
}

// OpenChain resolves topPath's full parent chain and returns it ordered
// leaf-first (index 0 is the image at topPath). The caller is
// responsible for eventually calling Close on the assembled stack, or
// on each Image if it builds its own stack via Assemble.
func (r *Resolver) OpenChain(topPath string, writable bool) ([]ChainEntry, error) {
	top, err := r.Open(topPath, writable)
	if err != nil {
		return nil, vdiskerr.Wrap(vdiskerr.IoFailed, "diskchain.OpenChain", err)
	}

	chain := []ChainEntry{{Image: top, Own: ownership.Dispose}}
	seen := map[uint64]bool{seenKey(topPath): true}

	current := top
	currentDir := filepath.Dir(topPath)

	for current.NeedsParent() {
		parent, parentPath, err := r.findParent(current, currentDir, seen)
		if err != nil {
			// fail closed: release everything already opened before
			// surfacing the error, per spec.md §4.8's failed-open rule.
			slog.Warn("diskchain: parent resolution failed", "image", current.FullPath(), "err", err)
			closeChain(chain)
			return nil, err
		}
		slog.Debug("diskchain: resolved parent", "image", current.FullPath(), "parent", parentPath)
		chain = append(chain, ChainEntry{Image: parent, Own: ownership.Dispose})
		seen[seenKey(parentPath)] = true
		current = parent
		currentDir = filepath.Dir(parentPath)
	}

	return chain, nil
}

// findParent implements spec.md §4.6 step 2a exactly: the first hint
// whose expansion exists wins — there is no searching past it. If that
// candidate's unique_id disagrees with img's expected parent, resolution
// fails immediately with ChainMismatch; it does not fall through to try
// another hint.
func (r *Resolver) findParent(img Image, fromDir string, seen map[uint64]bool) (Image, string, error) {
	want := img.ParentUniqueID()

	for _, hint := range img.ParentLocationHints() {
		candidates, err := r.Locator.Expand(fromDir, hint)
		if err != nil {
			continue
		}
		for _, path := range candidates {
			if seen[seenKey(path)] {
				continue // already part of this chain; refuse a cycle
			}
			if !r.Locator.Exists(path) {
				continue
			}

			candidate, err := r.Open(path, false)
			if err != nil {
				return nil, "", vdiskerr.Wrap(vdiskerr.IoFailed, "diskchain.findParent", err)
			}
			found := candidate.UniqueID()
			if found != want {
				if c, ok := candidate.(Closer); ok {
					c.Close()
				}
				return nil, "", vdiskerr.Wrap(vdiskerr.ChainMismatch, "diskchain.findParent",
					fmt.Errorf("%s: expected parent unique_id %x, found %x at %s", img.FullPath(), want, found, path))
			}
			return candidate, path, nil
		}
	}

	return nil, "", vdiskerr.Wrap(vdiskerr.ParentNotFound, "diskchain.findParent",
		fmt.Errorf("no existing file at %s's hints for %s", fromDir, img.FullPath()))
}

// seenKey hashes a cleaned path so Resolver can dedup by path rather than
// by Image pointer, matching internal/spinner's popularity-key pattern.
func seenKey(path string) uint64 {
	return xxhash.Sum64String(filepath.Clean(path))
}

func closeChain(chain []ChainEntry) {
	for i := len(chain) - 1; i >= 0; i-- {
		if c, ok := chain[i].Image.(Closer); ok {
			c.Close()
		}
	}
}

// Assemble builds the single content stream spec.md §4.6 describes:
// "from the deepest image upward, call each image's open_content(lower_
// stream, Ownership::Dispose); the result is a single C3 stream over the
// whole chain." Each image's own OpenContent is responsible for layering
// itself over lower (typically via layered.Stack internally); Assemble
// only supplies the images in the right order. chain must be ordered
// leaf-first, as returned by OpenChain.
func Assemble(chain []ChainEntry) (sparse.Stream, error) {
	var lower sparse.Stream

	for i := len(chain) - 1; i >= 0; i-- {
		entry := chain[i]
		stream, err := entry.Image.OpenContent(lower, entry.Own)
		if err != nil {
			return nil, vdiskerr.Wrap(vdiskerr.IoFailed, "diskchain.Assemble", err)
		}
		lower = stream
	}

	return lower, nil
}

// Resolve resolves topPath's chain and assembles it into a single content
// stream in one call — the common case. Each Image in the chain is
// tagged ownership.Dispose, so closing the returned stream (when it
// implements io.Closer, as every format module's OpenContent result
// should) releases the whole chain.
func (r *Resolver) Resolve(topPath string, writable bool) (sparse.Stream, error) {
	chain, err := r.OpenChain(topPath, writable)
	if err != nil {
		return nil, err
	}
	stream, err := Assemble(chain)
	if err != nil {
		closeChain(chain)
		return nil, err
	}
	return stream, nil
}

// OpenExplicit assembles a chain the caller has already opened and
// verified itself, bypassing Locator-based discovery entirely. This is
// the explicit-chain entry point spec.md §11 calls for: tests and
// callers that already know the exact parent images (no filesystem
// search, no existence probing) can hand them to OpenExplicit directly.
// images must be ordered leaf-first, as OpenChain would return them;
// OpenExplicit does not itself verify UniqueID/ParentUniqueID linkage —
// callers asserting a specific chain are assumed to have done so.
func OpenExplicit(images []Image, owns []ownership.Tag) (sparse.Stream, error) {
	if len(owns) != len(images) {
		return nil, vdiskerr.New(vdiskerr.Corrupt, "diskchain.OpenExplicit")
	}
	chain := make([]ChainEntry, len(images))
	for i, img := range images {
		chain[i] = ChainEntry{Image: img, Own: owns[i]}
	}
	return Assemble(chain)
}
