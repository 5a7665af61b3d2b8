// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// envelopeMagic is the 4-byte envelope prefix: "rsz" + version byte.
// Version 1 is the initial format.
var envelopeMagic = [4]byte{'r', 's', 'z', 1}

// NewWriter returns a writer that wraps w in a compression envelope.
// For [TagNone] it returns a bare passthrough and writes no envelope.
// The caller must Close the returned writer to flush the compressor;
// Close does not close w.
func NewWriter(w io.Writer, tag Tag) (io.WriteCloser, error) {
	switch tag {
	case TagNone:
		return nopWriteCloser{w}, nil

	case TagLZ4:
		if err := writeHeader(w, tag); err != nil {
			return nil, err
		}
		return lz4.NewWriter(w), nil

	case TagZstd:
		if err := writeHeader(w, tag); err != nil {
			return nil, err
		}
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		return zw, nil

	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func writeHeader(w io.Writer, tag Tag) error {
	header := [5]byte{envelopeMagic[0], envelopeMagic[1], envelopeMagic[2], envelopeMagic[3], byte(tag)}
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing envelope header: %w", err)
	}
	return nil
}

// NewReader sniffs r for an envelope. Enveloped streams are unwrapped
// through the tagged decompressor; anything else (including streams
// shorter than the magic) is passed through untouched and reported as
// [TagNone]. Close releases decompressor state without closing r.
func NewReader(r io.Reader) (io.ReadCloser, Tag, error) {
	var prefix [4]byte
	n, err := io.ReadFull(r, prefix[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, 0, fmt.Errorf("reading stream prefix: %w", err)
	}

	if n < len(prefix) || prefix != envelopeMagic {
		replay := io.MultiReader(bytes.NewReader(prefix[:n]), r)
		return io.NopCloser(replay), TagNone, nil
	}

	var tagByte [1]byte
	if _, err := io.ReadFull(r, tagByte[:]); err != nil {
		return nil, 0, fmt.Errorf("envelope truncated before tag byte: %w", io.ErrUnexpectedEOF)
	}

	switch tag := Tag(tagByte[0]); tag {
	case TagLZ4:
		return io.NopCloser(lz4.NewReader(r)), tag, nil

	case TagZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, 0, fmt.Errorf("creating zstd reader: %w", err)
		}
		return zr.IOReadCloser(), tag, nil

	default:
		return nil, 0, fmt.Errorf("envelope has unsupported compression tag %d", tag)
	}
}

// autoProbeSize is how much payload [NewAutoWriter] buffers before
// selecting an algorithm. Delta literals cluster at the front of most
// deltas, so an early sample is representative.
const autoProbeSize = 64 << 10

// NewAutoWriter returns a writer that buffers an initial sample of the
// payload, selects a compression algorithm with [Select], and then
// streams the remainder through the chosen envelope. Payloads that
// probe as incompressible are written bare.
func NewAutoWriter(w io.Writer) io.WriteCloser {
	return &autoWriter{dst: w}
}

type autoWriter struct {
	dst    io.Writer
	sample []byte
	out    io.WriteCloser
}

func (aw *autoWriter) Write(p []byte) (int, error) {
	if aw.out == nil {
		aw.sample = append(aw.sample, p...)
		if len(aw.sample) < autoProbeSize {
			return len(p), nil
		}
		if err := aw.open(); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	return aw.out.Write(p)
}

// open selects the algorithm from the buffered sample and flushes the
// sample through the selected writer.
func (aw *autoWriter) open() error {
	out, err := NewWriter(aw.dst, Select(aw.sample))
	if err != nil {
		return err
	}
	if _, err := out.Write(aw.sample); err != nil {
		return err
	}
	aw.out = out
	aw.sample = nil
	return nil
}

func (aw *autoWriter) Close() error {
	if aw.out == nil {
		if err := aw.open(); err != nil {
			return err
		}
	}
	return aw.out.Close()
}

// nopWriteCloser is the TagNone passthrough.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
