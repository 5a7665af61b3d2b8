// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package delta generates deltas: command streams that transform a
// basis file into a new file.
//
// Generation streams the new file through a rolling window the size of
// the signature's block length. At each position the window's weak
// checksum probes the signature index; on a candidate the strong hash
// confirms or rejects the match. Matched windows become COPY commands
// referencing basis block ranges, unmatched bytes accumulate into
// LITERAL commands, and copies over contiguous basis ranges merge into
// a single command. The generator never reads the basis itself:
// everything it knows about the basis comes from the signature.
//
// At end of input the window is probed at every shrinking length so
// that the basis's short final block can still match. The resulting
// delta always terminates with an explicit END command.
package delta

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rollsync/rollsync/lib/command"
	"github.com/rollsync/rollsync/lib/signature"
)

// Stats summarize a generated delta. LiteralBytes plus CopyBytes
// equals the size of the new file.
type Stats struct {
	// LiteralBytes is the number of new-file bytes carried verbatim.
	LiteralBytes int64

	// CopyBytes is the number of new-file bytes matched to the basis.
	CopyBytes int64

	// LiteralCommands and CopyCommands count emitted commands after
	// literal batching and copy merging.
	LiteralCommands int64
	CopyCommands    int64

	// WireBytes is the total serialized delta size, including the
	// magic and the END command.
	WireBytes int64
}

// Generate reads the new file from src and writes its delta against
// the indexed basis to dst. Output is buffered internally; dst sees
// the complete delta by the time Generate returns.
func Generate(dst io.Writer, src io.Reader, idx *signature.Index) (Stats, error) {
	blockLen := int(idx.BlockLen())
	if blockLen <= 0 {
		return Stats{}, fmt.Errorf("signature has zero block length")
	}

	counted := &countingWriter{w: dst}
	buffered := bufio.NewWriterSize(counted, 32<<10)

	var magic [4]byte
	binary.BigEndian.PutUint32(magic[:], command.DeltaMagic)
	if _, err := buffered.Write(magic[:]); err != nil {
		return Stats{}, fmt.Errorf("writing delta magic: %w", err)
	}

	out := &deltaWriter{w: buffered}
	m := &matcher{
		idx:     idx,
		out:     out,
		in:      bufio.NewReaderSize(src, 64<<10),
		win:     make([]byte, blockLen),
		scratch: make([]byte, blockLen),
		lit:     make([]byte, 0, maxLiteral),
	}
	if err := m.run(); err != nil {
		return Stats{}, err
	}

	if err := buffered.Flush(); err != nil {
		return Stats{}, fmt.Errorf("flushing delta output: %w", err)
	}
	out.stats.WireBytes = counted.n
	return out.stats, nil
}

// countingWriter tracks bytes that actually reached the destination.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
