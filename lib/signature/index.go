// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package signature

import "bytes"

// Index is a block lookup table built from a signature. Delta
// generation probes it once per input byte in the worst case, so the
// weak checksum acts as a cheap first-level filter and the strong hash
// is only computed when a weak candidate exists.
type Index struct {
	sig *Signature

	// weak maps a weak checksum to the indexes of all blocks carrying
	// it, in basis order. Collisions are real at scale: a 32-bit
	// checksum over millions of blocks will alias.
	weak map[uint32][]int
}

// NewIndex builds the lookup table. The signature must not be mutated
// while the index is in use.
func NewIndex(sig *Signature) *Index {
	idx := &Index{
		sig:  sig,
		weak: make(map[uint32][]int, len(sig.Blocks)),
	}
	for i, block := range sig.Blocks {
		idx.weak[block.Weak] = append(idx.weak[block.Weak], i)
	}
	return idx
}

// Signature returns the signature the index was built from.
func (x *Index) Signature() *Signature { return x.sig }

// Has reports whether any block carries the given weak checksum. It
// is a bare map probe: callers on a per-byte hot path check Has before
// paying for window assembly and strong hashing in [Index.FindBlock].
func (x *Index) Has(weak uint32) bool {
	_, ok := x.weak[weak]
	return ok
}

// BlockLen returns the basis block length in bytes.
func (x *Index) BlockLen() uint32 { return x.sig.BlockLen }

// FindBlock returns the basis block matching the window data, or
// ok=false when no block matches. The caller supplies the window's
// weak checksum (which it maintains by rolling); the strong hash is
// computed here, and only when the weak checksum has candidates.
//
// When several blocks share both checksums the earliest basis block
// wins, which keeps copy commands maximally mergeable.
func (x *Index) FindBlock(weak uint32, window []byte) (blockIndex int, ok bool) {
	candidates := x.weak[weak]
	if len(candidates) == 0 {
		return 0, false
	}

	strong := x.sig.Magic.sum(window)[:x.sig.StrongLen]
	for _, i := range candidates {
		if bytes.Equal(x.sig.Blocks[i].Strong, strong) {
			return i, true
		}
	}
	return 0, false
}

// BlockStart returns the basis byte offset covered by block i.
func (x *Index) BlockStart(i int) int64 {
	return int64(i) * int64(x.sig.BlockLen)
}
