// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package command implements the delta command set: the opcode space
// shared by delta generation and patch application.
//
// A delta is a sequence of commands. LITERAL carries new-file bytes
// verbatim; COPY references a byte range of the basis file; END
// terminates the stream. Opcode values and integer encodings are wire
// constants from the rsync delta format: integers are big-endian, and
// command parameters use the smallest of the 1/2/4/8-byte widths that
// fits the value.
//
// The encoder only ever emits the explicit-length literal forms
// (LITERAL_N1..N8); the 64 inline-length literal opcodes exist in the
// format and are accepted by the decoder, but other encoders produce
// them rarely and emitting the explicit forms keeps output
// byte-identical with the reference implementation.
package command

import (
	"fmt"
	"io"
)

// DeltaMagic is the big-endian stream magic that precedes the command
// sequence in a serialized delta.
const DeltaMagic uint32 = 0x72730236

// Opcode values. The copy opcodes form a 4x4 grid: start-offset width
// varies every four opcodes, length width cycles within each group.
const (
	opEnd = 0x00

	// opLiteral1..opLiteral64 (0x01..0x40) carry the literal length
	// in the opcode itself. Decode-only.
	opLiteral1  = 0x01
	opLiteral64 = 0x40

	// Explicit-length literals: a 1/2/4/8-byte length follows.
	opLiteralN1 = 0x41
	opLiteralN8 = 0x44

	// Copies: start offset then length, each 1/2/4/8 bytes.
	opCopyN1N1 = 0x45
	opCopyN8N8 = 0x54
)

// Kind discriminates decoded commands.
type Kind int

const (
	// End terminates the delta. No further commands follow.
	End Kind = iota

	// Literal carries Length bytes of new-file data. The payload
	// follows the command header on the wire; ReadHeader does not
	// consume it.
	Literal

	// Copy instructs the patcher to copy Length bytes from basis
	// offset Start.
	Copy
)

// String returns the command kind name for diagnostics.
func (k Kind) String() string {
	switch k {
	case End:
		return "END"
	case Literal:
		return "LITERAL"
	case Copy:
		return "COPY"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Header is one decoded command header. For Literal commands the
// payload bytes are still on the stream when ReadHeader returns.
type Header struct {
	Kind   Kind
	Length uint64
	Start  uint64
}

// WriteEnd writes the END command.
func WriteEnd(w io.Writer) error {
	if _, err := w.Write([]byte{opEnd}); err != nil {
		return fmt.Errorf("writing end command: %w", err)
	}
	return nil
}

// WriteLiteral writes a literal command header followed by the data.
// Zero-length literals are elided entirely: the format has no use for
// them and the decoder treats them as corrupt.
func WriteLiteral(w io.Writer, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	length := uint64(len(data))
	widthIdx := netintWidthIndex(length)

	var header [9]byte
	header[0] = opLiteralN1 + byte(widthIdx)
	n := 1 + putNetint(header[1:], length, widthIdx)

	if _, err := w.Write(header[:n]); err != nil {
		return fmt.Errorf("writing literal command: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing literal payload: %w", err)
	}
	return nil
}

// WriteCopy writes a copy command referencing length bytes at basis
// offset start. Zero-length copies are invalid.
func WriteCopy(w io.Writer, start, length uint64) error {
	if length == 0 {
		return fmt.Errorf("zero-length copy command")
	}

	startIdx := netintWidthIndex(start)
	lengthIdx := netintWidthIndex(length)

	var header [17]byte
	header[0] = opCopyN1N1 + byte(4*startIdx+lengthIdx)
	n := 1
	n += putNetint(header[n:], start, startIdx)
	n += putNetint(header[n:], length, lengthIdx)

	if _, err := w.Write(header[:n]); err != nil {
		return fmt.Errorf("writing copy command: %w", err)
	}
	return nil
}

// ReadHeader reads and decodes the next command header from r. For
// Literal commands the caller must then consume exactly Length payload
// bytes before reading the next header.
//
// io.EOF from the opcode byte is returned as io.ErrUnexpectedEOF: a
// well-formed delta always ends with an explicit END command, so a
// bare EOF means truncation.
func ReadHeader(r io.Reader) (Header, error) {
	var opcode [1]byte
	if _, err := io.ReadFull(r, opcode[:]); err != nil {
		if err == io.EOF {
			return Header{}, fmt.Errorf("delta truncated before END command: %w", io.ErrUnexpectedEOF)
		}
		return Header{}, fmt.Errorf("reading command opcode: %w", err)
	}

	op := opcode[0]
	switch {
	case op == opEnd:
		return Header{Kind: End}, nil

	case op >= opLiteral1 && op <= opLiteral64:
		// Inline-length literal: the opcode is the length.
		return Header{Kind: Literal, Length: uint64(op)}, nil

	case op >= opLiteralN1 && op <= opLiteralN8:
		length, err := readNetint(r, int(op-opLiteralN1))
		if err != nil {
			return Header{}, fmt.Errorf("reading literal length: %w", err)
		}
		if length == 0 {
			return Header{}, fmt.Errorf("zero-length literal command")
		}
		return Header{Kind: Literal, Length: length}, nil

	case op >= opCopyN1N1 && op <= opCopyN8N8:
		rel := int(op - opCopyN1N1)
		start, err := readNetint(r, rel/4)
		if err != nil {
			return Header{}, fmt.Errorf("reading copy start: %w", err)
		}
		length, err := readNetint(r, rel%4)
		if err != nil {
			return Header{}, fmt.Errorf("reading copy length: %w", err)
		}
		if length == 0 {
			return Header{}, fmt.Errorf("zero-length copy command")
		}
		return Header{Kind: Copy, Start: start, Length: length}, nil

	default:
		return Header{}, fmt.Errorf("reserved delta opcode %#02x", op)
	}
}
