// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package patch applies deltas. Given the basis file and a delta
// generated against its signature, [Apply] reproduces the new file.
//
// The basis is accessed through [io.ReaderAt] because copy commands
// reference arbitrary basis offsets in any order; the delta and the
// output are plain streams. Apply validates as it goes: unknown
// opcodes, copy ranges outside the basis, truncated payloads, and data
// after the END command are all rejected, and nothing is written
// beyond the point of the error.
package patch

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/rollsync/rollsync/lib/command"
)

// ErrBadMagic is returned by [Apply] when the input does not start
// with the delta stream magic.
var ErrBadMagic = errors.New("not a delta stream")

// Stats summarize an applied delta. LiteralBytes plus CopyBytes equals
// the size of the reconstructed file.
type Stats struct {
	// LiteralBytes is the number of output bytes taken from the delta.
	LiteralBytes int64

	// CopyBytes is the number of output bytes taken from the basis.
	CopyBytes int64

	// LiteralCommands and CopyCommands count the commands applied.
	LiteralCommands int64
	CopyCommands    int64
}

// Apply reads a delta from r and writes the reconstructed file to dst,
// resolving copy commands against basis. The delta must terminate with
// an END command followed by end of stream.
func Apply(dst io.Writer, r io.Reader, basis io.ReaderAt) (Stats, error) {
	var stats Stats

	in := bufio.NewReaderSize(r, 32<<10)

	var magic [4]byte
	if _, err := io.ReadFull(in, magic[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return stats, fmt.Errorf("delta magic truncated: %w", io.ErrUnexpectedEOF)
		}
		return stats, fmt.Errorf("reading delta magic: %w", err)
	}
	if got := binary.BigEndian.Uint32(magic[:]); got != command.DeltaMagic {
		return stats, fmt.Errorf("%w (magic %#08x)", ErrBadMagic, got)
	}

	out := bufio.NewWriterSize(dst, 32<<10)
	copyBuf := make([]byte, 32<<10)

	for {
		hdr, err := command.ReadHeader(in)
		if err != nil {
			return stats, err
		}

		switch hdr.Kind {
		case command.End:
			// END must be the last byte of the stream. Anything after
			// it means the delta was corrupted or concatenated.
			if _, err := in.ReadByte(); err != io.EOF {
				if err != nil {
					return stats, fmt.Errorf("reading past END command: %w", err)
				}
				return stats, fmt.Errorf("trailing data after END command")
			}
			if err := out.Flush(); err != nil {
				return stats, fmt.Errorf("flushing output: %w", err)
			}
			return stats, nil

		case command.Literal:
			n, err := io.CopyBuffer(out, io.LimitReader(in, int64(hdr.Length)), copyBuf)
			stats.LiteralBytes += n
			if err != nil {
				return stats, fmt.Errorf("copying %d-byte literal: %w", hdr.Length, err)
			}
			if n != int64(hdr.Length) {
				return stats, fmt.Errorf("literal payload truncated after %d of %d bytes", n, hdr.Length)
			}
			stats.LiteralCommands++

		case command.Copy:
			if hdr.Start > math.MaxInt64 || hdr.Length > math.MaxInt64-hdr.Start {
				return stats, fmt.Errorf("copy range [%d, +%d) overflows", hdr.Start, hdr.Length)
			}
			section := io.NewSectionReader(basis, int64(hdr.Start), int64(hdr.Length))
			n, err := io.CopyBuffer(out, section, copyBuf)
			stats.CopyBytes += n
			if err != nil {
				return stats, fmt.Errorf("copying %d bytes from basis offset %d: %w",
					hdr.Length, hdr.Start, err)
			}
			if n != int64(hdr.Length) {
				return stats, fmt.Errorf("copy range [%d, %d) extends beyond end of basis",
					hdr.Start, hdr.Start+hdr.Length)
			}
			stats.CopyCommands++
		}
	}
}
