// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"io"

	"github.com/rollsync/rollsync/lib/command"
)

// deltaWriter serializes commands and merges copies over contiguous
// basis ranges. A copy is held back until the next command shows
// whether it can be extended; literals and END flush it first, so
// command order on the wire matches emission order.
type deltaWriter struct {
	w     io.Writer
	stats Stats

	pendingStart uint64
	pendingLen   uint64
	havePending  bool
}

// copy records a match of length basis bytes at offset start. Adjacent
// calls whose ranges abut are merged into one command.
func (dw *deltaWriter) copy(start, length uint64) error {
	dw.stats.CopyBytes += int64(length)

	if dw.havePending && dw.pendingStart+dw.pendingLen == start {
		dw.pendingLen += length
		return nil
	}
	if err := dw.flushCopy(); err != nil {
		return err
	}
	dw.pendingStart = start
	dw.pendingLen = length
	dw.havePending = true
	return nil
}

// literal writes data as a literal command. Empty slices are no-ops.
func (dw *deltaWriter) literal(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := dw.flushCopy(); err != nil {
		return err
	}
	dw.stats.LiteralCommands++
	dw.stats.LiteralBytes += int64(len(data))
	return command.WriteLiteral(dw.w, data)
}

// end flushes any held copy and terminates the stream.
func (dw *deltaWriter) end() error {
	if err := dw.flushCopy(); err != nil {
		return err
	}
	return command.WriteEnd(dw.w)
}

func (dw *deltaWriter) flushCopy() error {
	if !dw.havePending {
		return nil
	}
	dw.havePending = false
	dw.stats.CopyCommands++
	return command.WriteCopy(dw.w, dw.pendingStart, dw.pendingLen)
}
