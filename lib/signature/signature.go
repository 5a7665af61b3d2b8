// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package signature implements generation, serialization, and loading
// of basis-file signatures.
//
// A signature describes a basis file as a sequence of fixed-size
// blocks, each identified by a weak rolling checksum and a truncated
// strong hash. Delta generation streams a new file against the
// signature's block index to find ranges that already exist in the
// basis; only the signature, never the basis itself, has to be present
// on the signature-generating side.
//
// The wire format is big-endian: a 12-byte header (magic, block
// length, strong-hash length) followed by one record per block of
// 4-byte weak checksum plus strong-hash-length bytes of truncated
// strong hash. The final block of the basis may be shorter than the
// block length; its checksums cover only the bytes present.
package signature

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/rollsync/rollsync/lib/rollsum"
)

// Magic identifies the strong-hash algorithm of a signature. The
// magic doubles as the wire-format file signature.
type Magic uint32

// Signature file magics. MD4 and BLAKE2b are interoperable with other
// tools speaking the rsync signature format; BLAKE3 is an extension
// magic in the same numbering scheme and is only understood by this
// module.
const (
	MagicMD4    Magic = 0x72730136
	MagicBLAKE2 Magic = 0x72730137
	MagicBLAKE3 Magic = 0x72730138
)

// Format constants.
const (
	// headerSize is the fixed signature header: 4-byte magic + 4-byte
	// block length + 4-byte strong-hash length.
	headerSize = 12

	// DefaultBlockLen is the block length used when options leave it
	// zero. Smaller blocks find more matches but grow the signature.
	DefaultBlockLen = 2048
)

// ErrBadMagic is returned by [Load] when the input does not start with
// a known signature magic. Callers use it to distinguish "not a
// signature file" from a corrupt or truncated one.
var ErrBadMagic = errors.New("not a signature file")

// Options control signature generation.
type Options struct {
	// Magic selects the strong-hash algorithm. The zero value selects
	// BLAKE2b.
	Magic Magic

	// BlockLen is the basis block size in bytes. Zero selects
	// [DefaultBlockLen].
	BlockLen uint32

	// StrongLen is the number of strong-hash bytes kept per block.
	// Zero keeps the full hash. Truncating saves signature space at
	// the cost of a higher chance that a corrupt delta goes
	// undetected; values below 12 are unsafe against deliberate
	// collision attacks on MD4.
	StrongLen uint32
}

// Block is one basis block's identity within a signature.
type Block struct {
	// Weak is the rolling checksum of the block data.
	Weak uint32

	// Strong is the strong hash of the block data, truncated to the
	// signature's strong-hash length.
	Strong []byte
}

// Signature is a parsed or freshly generated basis signature.
type Signature struct {
	// Magic names the strong-hash algorithm.
	Magic Magic

	// BlockLen is the basis block size in bytes. Every block except
	// possibly the last covers exactly this many bytes.
	BlockLen uint32

	// StrongLen is the number of strong-hash bytes stored per block,
	// in [1, hash size].
	StrongLen uint32

	// Blocks holds one entry per basis block, in basis order. Block i
	// covers basis offset i*BlockLen.
	Blocks []Block
}

// Generate reads the whole basis and computes its signature. An empty
// basis yields a signature with no blocks, which is still valid wire
// format (header only).
func Generate(basis io.Reader, opts Options) (*Signature, error) {
	magic := opts.Magic
	if magic == 0 {
		magic = MagicBLAKE2
	}
	if !magic.valid() {
		return nil, fmt.Errorf("unknown signature magic %#08x", uint32(magic))
	}

	blockLen := opts.BlockLen
	if blockLen == 0 {
		blockLen = DefaultBlockLen
	}

	strongLen := opts.StrongLen
	if strongLen == 0 {
		strongLen = uint32(magic.strongSize())
	}
	if strongLen > uint32(magic.strongSize()) {
		return nil, fmt.Errorf("strong-hash length %d exceeds %s digest size %d",
			strongLen, magic, magic.strongSize())
	}

	sig := &Signature{
		Magic:     magic,
		BlockLen:  blockLen,
		StrongLen: strongLen,
	}

	buf := make([]byte, blockLen)
	for blockIndex := 0; ; blockIndex++ {
		n, err := io.ReadFull(basis, buf)
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("reading basis block %d: %w", blockIndex, err)
		}

		block := buf[:n]
		sig.Blocks = append(sig.Blocks, Block{
			Weak:   rollsum.Sum(block),
			Strong: magic.sum(block)[:strongLen],
		})

		// ErrUnexpectedEOF means this was a short final block.
		if err == io.ErrUnexpectedEOF {
			break
		}
	}

	return sig, nil
}

// WriteTo serializes the signature in wire format. It implements
// [io.WriterTo].
func (s *Signature) WriteTo(w io.Writer) (int64, error) {
	var written int64

	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(s.Magic))
	binary.BigEndian.PutUint32(header[4:8], s.BlockLen)
	binary.BigEndian.PutUint32(header[8:12], s.StrongLen)
	n, err := w.Write(header[:])
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("writing signature header: %w", err)
	}

	var weak [4]byte
	for i, block := range s.Blocks {
		binary.BigEndian.PutUint32(weak[:], block.Weak)
		n, err = w.Write(weak[:])
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("writing block %d weak checksum: %w", i, err)
		}

		n, err = w.Write(block.Strong)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("writing block %d strong hash: %w", i, err)
		}
	}

	return written, nil
}

// Load parses a serialized signature from r, reading to EOF. It
// returns [ErrBadMagic] if the input does not begin with a known
// signature magic.
func Load(r io.Reader) (*Signature, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("signature header truncated: %w", io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("reading signature header: %w", err)
	}

	magic := Magic(binary.BigEndian.Uint32(header[0:4]))
	if !magic.valid() {
		return nil, fmt.Errorf("%w (magic %#08x)", ErrBadMagic, uint32(magic))
	}

	blockLen := binary.BigEndian.Uint32(header[4:8])
	if blockLen == 0 {
		return nil, fmt.Errorf("signature has zero block length")
	}

	strongLen := binary.BigEndian.Uint32(header[8:12])
	if strongLen == 0 || strongLen > uint32(magic.strongSize()) {
		return nil, fmt.Errorf("signature strong-hash length %d outside [1, %d] for %s",
			strongLen, magic.strongSize(), magic)
	}

	sig := &Signature{
		Magic:     magic,
		BlockLen:  blockLen,
		StrongLen: strongLen,
	}

	recordSize := 4 + int(strongLen)
	for blockIndex := 0; ; blockIndex++ {
		record := make([]byte, recordSize)
		if _, err := io.ReadFull(r, record); err != nil {
			if err == io.EOF {
				break
			}
			if err == io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("signature truncated inside block %d record", blockIndex)
			}
			return nil, fmt.Errorf("reading block %d record: %w", blockIndex, err)
		}
		sig.Blocks = append(sig.Blocks, Block{
			Weak:   binary.BigEndian.Uint32(record[:4]),
			Strong: record[4:],
		})
	}

	return sig, nil
}

// Options returns the generation options this signature was built
// with. Feeding them back to [Generate] against the same basis
// reproduces the signature.
func (s *Signature) Options() Options {
	return Options{Magic: s.Magic, BlockLen: s.BlockLen, StrongLen: s.StrongLen}
}

// WireSize returns the serialized size of the signature in bytes.
func (s *Signature) WireSize() int64 {
	return headerSize + int64(len(s.Blocks))*(4+int64(s.StrongLen))
}
