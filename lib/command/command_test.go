// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestWriteLiteral(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		header []byte
	}{
		{
			name:   "one byte",
			data:   []byte{0xaa},
			header: []byte{0x41, 0x01},
		},
		{
			name:   "sixteen bytes",
			data:   bytes.Repeat([]byte{0x42}, 16),
			header: []byte{0x41, 0x10},
		},
		{
			name:   "widest one-byte length",
			data:   bytes.Repeat([]byte{0x01}, 255),
			header: []byte{0x41, 0xff},
		},
		{
			name:   "two-byte length",
			data:   bytes.Repeat([]byte{0x02}, 256),
			header: []byte{0x42, 0x01, 0x00},
		},
		{
			name:   "four-byte length",
			data:   bytes.Repeat([]byte{0x03}, 0x10000),
			header: []byte{0x43, 0x00, 0x01, 0x00, 0x00},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteLiteral(&buf, tt.data); err != nil {
				t.Fatalf("WriteLiteral: %v", err)
			}
			want := append(append([]byte{}, tt.header...), tt.data...)
			if !bytes.Equal(buf.Bytes(), want) {
				t.Errorf("wire bytes = %x..., want %x...", head(buf.Bytes(), 12), head(want, 12))
			}
		})
	}
}

func TestWriteLiteralEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLiteral(&buf, nil); err != nil {
		t.Fatalf("WriteLiteral(nil): %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("empty literal wrote %d bytes, want 0", buf.Len())
	}
}

func TestWriteCopy(t *testing.T) {
	tests := []struct {
		name          string
		start, length uint64
		want          []byte
	}{
		{
			name:  "one-byte start and length",
			start: 10, length: 19,
			want: []byte{0x45, 0x0a, 0x13},
		},
		{
			name:  "one-byte start widest",
			start: 255, length: 255,
			want: []byte{0x45, 0xff, 0xff},
		},
		{
			name:  "two-byte start",
			start: 256, length: 5,
			want: []byte{0x49, 0x01, 0x00, 0x05},
		},
		{
			name:  "two-byte length",
			start: 5, length: 256,
			want: []byte{0x46, 0x05, 0x01, 0x00},
		},
		{
			name:  "four-byte start two-byte length",
			start: 0x12345678, length: 0x9abc,
			want: []byte{0x4e, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc},
		},
		{
			name:  "eight-byte start one-byte length",
			start: 1 << 40, length: 3,
			want: []byte{0x51, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03},
		},
		{
			name:  "eight-byte start and length",
			start: 1 << 40, length: 1 << 33,
			want: []byte{
				0x54,
				0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x02, 0x00, 0x00, 0x00, 0x00,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteCopy(&buf, tt.start, tt.length); err != nil {
				t.Fatalf("WriteCopy(%d, %d): %v", tt.start, tt.length, err)
			}
			if !bytes.Equal(buf.Bytes(), tt.want) {
				t.Errorf("wire bytes = %x, want %x", buf.Bytes(), tt.want)
			}
		})
	}
}

func TestWriteCopyZeroLength(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCopy(&buf, 7, 0); err == nil {
		t.Fatal("WriteCopy with zero length succeeded, want error")
	}
	if buf.Len() != 0 {
		t.Errorf("failed copy wrote %d bytes, want 0", buf.Len())
	}
}

func TestReadHeaderEnd(t *testing.T) {
	hdr, err := ReadHeader(bytes.NewReader([]byte{0x00}))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.Kind != End {
		t.Errorf("kind = %v, want END", hdr.Kind)
	}
}

func TestReadHeaderInlineLiterals(t *testing.T) {
	// The 64 inline-length opcodes are decode-only: the encoder never
	// emits them, but other encoders may.
	tests := []struct {
		opcode byte
		length uint64
	}{
		{0x01, 1},
		{0x10, 16},
		{0x40, 64},
	}
	for _, tt := range tests {
		hdr, err := ReadHeader(bytes.NewReader([]byte{tt.opcode}))
		if err != nil {
			t.Fatalf("ReadHeader(%#02x): %v", tt.opcode, err)
		}
		if hdr.Kind != Literal || hdr.Length != tt.length {
			t.Errorf("opcode %#02x decoded to %v len %d, want LITERAL len %d",
				tt.opcode, hdr.Kind, hdr.Length, tt.length)
		}
	}
}

func TestReadHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		want Header
	}{
		{"small literal", Header{Kind: Literal, Length: 16}},
		{"large literal", Header{Kind: Literal, Length: 1 << 20}},
		{"small copy", Header{Kind: Copy, Start: 10, Length: 19}},
		{"wide copy", Header{Kind: Copy, Start: 1 << 40, Length: 1 << 17}},
		{"end", Header{Kind: End}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			var err error
			switch tt.want.Kind {
			case Literal:
				err = WriteLiteral(&buf, make([]byte, tt.want.Length))
			case Copy:
				err = WriteCopy(&buf, tt.want.Start, tt.want.Length)
			case End:
				err = WriteEnd(&buf)
			}
			if err != nil {
				t.Fatalf("writing %v: %v", tt.want.Kind, err)
			}

			got, err := ReadHeader(&buf)
			if err != nil {
				t.Fatalf("ReadHeader: %v", err)
			}
			if got != tt.want {
				t.Errorf("decoded %+v, want %+v", got, tt.want)
			}
			if tt.want.Kind == Literal {
				if uint64(buf.Len()) != tt.want.Length {
					t.Errorf("payload remaining = %d, want %d", buf.Len(), tt.want.Length)
				}
			} else if buf.Len() != 0 {
				t.Errorf("%d bytes left on stream after %v", buf.Len(), tt.want.Kind)
			}
		})
	}
}

func TestReadHeaderReservedOpcodes(t *testing.T) {
	for _, opcode := range []byte{0x55, 0x80, 0xff} {
		_, err := ReadHeader(bytes.NewReader([]byte{opcode}))
		if err == nil {
			t.Fatalf("opcode %#02x decoded, want error", opcode)
		}
		if !strings.Contains(err.Error(), "reserved") {
			t.Errorf("opcode %#02x error = %q, want mention of reserved", opcode, err)
		}
	}
}

func TestReadHeaderTruncated(t *testing.T) {
	tests := []struct {
		name string
		wire []byte
	}{
		{"empty stream", nil},
		{"literal missing length", []byte{0x42}},
		{"literal partial length", []byte{0x43, 0x00, 0x01}},
		{"copy missing start", []byte{0x45}},
		{"copy missing length", []byte{0x49, 0x01, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadHeader(bytes.NewReader(tt.wire))
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("error = %v, want io.ErrUnexpectedEOF", err)
			}
		})
	}
}

func TestReadHeaderZeroLengths(t *testing.T) {
	tests := []struct {
		name string
		wire []byte
	}{
		{"explicit zero literal", []byte{0x41, 0x00}},
		{"zero-length copy", []byte{0x45, 0x07, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadHeader(bytes.NewReader(tt.wire)); err == nil {
				t.Error("zero-length command decoded, want error")
			}
		})
	}
}

// head returns at most n leading bytes of b, for readable failures.
func head(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}
