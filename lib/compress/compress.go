// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress wraps delta and signature streams in an optional
// compression envelope.
//
// The raw wire formats carry rolling-checksum and hash material that
// is already high-entropy, but delta literals are new-file content and
// often compress well. The envelope is a 5-byte header (4-byte magic
// "rsz" + version, 1 algorithm tag byte) followed by the compressed
// payload. Uncompressed output carries no envelope at all, so default
// output stays byte-compatible with other tools; [NewReader] sniffs
// the magic and passes bare streams through untouched.
package compress

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Tag identifies the compression algorithm of an envelope payload.
// The tag byte is a protocol constant; changing a value breaks every
// envelope already written.
type Tag uint8

const (
	// TagNone means no envelope is written: the payload appears on the
	// wire as-is. Used for already-compressed or high-entropy content.
	TagNone Tag = 0

	// TagLZ4 is LZ4 frame compression. Fast default with moderate
	// ratios when content is unknown or mixed.
	TagLZ4 Tag = 1

	// TagZstd is zstd at the default level. Better ratios for
	// text-like literals at a higher CPU cost.
	TagZstd Tag = 2
)

// String returns the human-readable name of a compression tag.
func (tag Tag) String() string {
	switch tag {
	case TagNone:
		return "none"
	case TagLZ4:
		return "lz4"
	case TagZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseTag parses a compression tag from its string representation.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none":
		return TagNone, nil
	case "lz4":
		return TagLZ4, nil
	case "zstd":
		return TagZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// probeEncoder is a shared zstd encoder used only for ratio probes via
// EncodeAll. It is safe for concurrent use.
var probeEncoder *zstd.Encoder

func init() {
	var err error
	probeEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd probe encoder initialization failed: " + err.Error())
	}
}

// Select probes a sample of the payload and picks an algorithm: zstd
// when the sample compresses at least 1.5x, LZ4 between 1.1x and 1.5x
// (faster with an acceptable ratio), and none below that.
func Select(sample []byte) Tag {
	if len(sample) == 0 {
		return TagNone
	}

	compressed := probeEncoder.EncodeAll(sample, nil)
	ratio := float64(len(sample)) / float64(len(compressed))

	switch {
	case ratio >= 1.5:
		return TagZstd
	case ratio >= 1.1:
		return TagLZ4
	default:
		return TagNone
	}
}
