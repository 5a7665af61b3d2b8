// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package rollsum implements the weak rolling checksum used by the
// rsync block-matching algorithm.
//
// The checksum is the librsync "Rollsum": a pair of 16-bit running
// sums over the window bytes, each byte offset by a fixed constant.
// For a window c_0..c_{n-1}:
//
//	s1 = Σ (c_i + 31)
//	s2 = Σ (n - i) · (c_i + 31)
//
// with both sums taken modulo 2^16. The 32-bit digest packs s2 in the
// high half and s1 in the low half. The weighted s2 term makes the
// digest order-sensitive; the fixed offset keeps short runs of zero
// bytes from collapsing to a zero digest.
//
// The checksum is cheap to slide: Rotate updates the sums for a
// one-byte window shift in constant time, which is what makes
// byte-at-a-time block search affordable. It is NOT collision
// resistant: every weak match must be confirmed with a strong hash
// before it is trusted.
package rollsum

// charOffset is added to every input byte before summing. This is a
// wire constant: changing it changes every digest and breaks
// signature compatibility.
const charOffset = 31

// Rollsum is the rolling checksum state. The zero value is an empty
// window, ready for use.
//
// The 16-bit sum fields wrap naturally; window length is tracked
// separately so bytes can be rolled out as well as in.
type Rollsum struct {
	count uint64
	s1    uint16
	s2    uint16
}

// Reset returns the state to an empty window.
func (r *Rollsum) Reset() {
	r.count = 0
	r.s1 = 0
	r.s2 = 0
}

// Count returns the current window length in bytes.
func (r *Rollsum) Count() uint64 {
	return r.count
}

// Update extends the window with all bytes of p.
func (r *Rollsum) Update(p []byte) {
	s1, s2 := r.s1, r.s2
	for _, b := range p {
		s1 += uint16(b) + charOffset
		s2 += s1
	}
	r.s1, r.s2 = s1, s2
	r.count += uint64(len(p))
}

// Rollin extends the window by one byte at the end.
func (r *Rollsum) Rollin(in byte) {
	r.s1 += uint16(in) + charOffset
	r.s2 += r.s1
	r.count++
}

// Rollout removes the oldest byte from the window. The caller must
// pass the byte that entered first; the state has no way to check.
func (r *Rollsum) Rollout(out byte) {
	v := uint16(out) + charOffset
	r.s1 -= v
	r.s2 -= uint16(r.count) * v
	r.count--
}

// Rotate slides the window one byte: out leaves at the front, in
// enters at the back. Equivalent to Rollout(out) followed by
// Rollin(in) but in one step, keeping the window length constant.
func (r *Rollsum) Rotate(out, in byte) {
	r.s1 += uint16(in) - uint16(out)
	r.s2 += r.s1 - uint16(r.count)*(uint16(out)+charOffset)
}

// Digest returns the 32-bit weak checksum of the current window:
// s2 in the high 16 bits, s1 in the low 16 bits.
func (r *Rollsum) Digest() uint32 {
	return uint32(r.s2)<<16 | uint32(r.s1)
}

// Sum returns the digest of p as a single window. Convenience for
// whole-block sums during signature generation, where no sliding is
// needed.
func Sum(p []byte) uint32 {
	var r Rollsum
	r.Update(p)
	return r.Digest()
}
