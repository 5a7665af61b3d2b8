// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"encoding/binary"
	"fmt"
	"io"
)

// netintWidthIndex returns the width index (0..3 for 1/2/4/8 bytes) of
// the smallest big-endian encoding that holds v. Command headers always
// use the minimal width so equal inputs produce identical deltas.
func netintWidthIndex(v uint64) int {
	switch {
	case v <= 0xff:
		return 0
	case v <= 0xffff:
		return 1
	case v <= 0xffffffff:
		return 2
	default:
		return 3
	}
}

// putNetint encodes v into buf at the given width index and returns the
// number of bytes written. buf must have room for 8 bytes.
func putNetint(buf []byte, v uint64, widthIdx int) int {
	switch widthIdx {
	case 0:
		buf[0] = byte(v)
		return 1
	case 1:
		binary.BigEndian.PutUint16(buf, uint16(v))
		return 2
	case 2:
		binary.BigEndian.PutUint32(buf, uint32(v))
		return 4
	default:
		binary.BigEndian.PutUint64(buf, v)
		return 8
	}
}

// readNetint reads one big-endian integer of the given width index.
func readNetint(r io.Reader, widthIdx int) (uint64, error) {
	var buf [8]byte
	width := 1 << widthIdx
	if _, err := io.ReadFull(r, buf[:width]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, fmt.Errorf("reading %d-byte integer: %w", width, err)
	}
	switch widthIdx {
	case 0:
		return uint64(buf[0]), nil
	case 1:
		return uint64(binary.BigEndian.Uint16(buf[:2])), nil
	case 2:
		return uint64(binary.BigEndian.Uint32(buf[:4])), nil
	default:
		return binary.BigEndian.Uint64(buf[:8]), nil
	}
}
