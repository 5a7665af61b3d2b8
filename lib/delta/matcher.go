// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"bufio"
	"fmt"
	"io"

	"github.com/rollsync/rollsync/lib/rollsum"
	"github.com/rollsync/rollsync/lib/signature"
)

// maxLiteral caps the pending literal buffer. A run of unmatched input
// longer than this is split across several literal commands, which
// bounds generator memory independent of input size.
const maxLiteral = 64 << 10

// matcher drives the rolling-window scan. The window is a circular
// buffer of at most one block; win index start is the oldest byte and
// n is the current window length. The checksum always covers exactly
// the window contents.
type matcher struct {
	idx *signature.Index
	out *deltaWriter
	in  *bufio.Reader

	win     []byte
	start   int
	n       int
	sum     rollsum.Rollsum
	lit     []byte
	scratch []byte
}

func (m *matcher) run() error {
	for {
		if err := m.fill(); err != nil {
			return err
		}
		if m.n == 0 {
			break
		}
		if m.n == len(m.win) {
			if err := m.slide(); err != nil {
				return err
			}
		}
		// A nonempty window here means slide hit end of input (or the
		// fill itself was short). Probe the shrinking tail and stop.
		if m.n > 0 {
			if err := m.shrink(); err != nil {
				return err
			}
			break
		}
	}

	if err := m.out.literal(m.lit); err != nil {
		return err
	}
	m.lit = m.lit[:0]
	return m.out.end()
}

// fill loads a fresh window from the input. Only valid when the window
// is empty. A short or zero-length fill means the input is ending.
func (m *matcher) fill() error {
	m.start = 0
	m.sum.Reset()
	n, err := io.ReadFull(m.in, m.win)
	m.n = n
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		m.sum.Update(m.win[:n])
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	m.sum.Update(m.win)
	return nil
}

// slide advances the full window one byte at a time until a block
// matches or the input ends. On a match the window is consumed; on end
// of input the remaining window is left for [matcher.shrink].
func (m *matcher) slide() error {
	for {
		if block, ok := m.probe(); ok {
			if err := m.emitMatch(block); err != nil {
				return err
			}
			return nil
		}

		m.lit = append(m.lit, m.pop())
		if err := m.maybeFlushLiteral(); err != nil {
			return err
		}

		b, err := m.in.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		m.push(b)
	}
}

// shrink probes the window at every decreasing length. Only the
// basis's short final block can match here, since full blocks have
// full-length hashes. Runs only once the input is exhausted.
func (m *matcher) shrink() error {
	for m.n > 0 {
		if block, ok := m.probe(); ok {
			return m.emitMatch(block)
		}
		m.lit = append(m.lit, m.pop())
		if err := m.maybeFlushLiteral(); err != nil {
			return err
		}
	}
	return nil
}

// probe checks the current window against the index. The weak checksum
// gates the probe so window assembly and strong hashing only happen on
// candidate hits.
func (m *matcher) probe() (int, bool) {
	digest := m.sum.Digest()
	if !m.idx.Has(digest) {
		return 0, false
	}
	return m.idx.FindBlock(digest, m.window())
}

// emitMatch flushes the pending literal, emits a copy for the whole
// window, and empties the window.
func (m *matcher) emitMatch(block int) error {
	if err := m.out.literal(m.lit); err != nil {
		return err
	}
	m.lit = m.lit[:0]
	if err := m.out.copy(uint64(m.idx.BlockStart(block)), uint64(m.n)); err != nil {
		return err
	}
	m.n = 0
	m.start = 0
	m.sum.Reset()
	return nil
}

// pop removes and returns the oldest window byte.
func (m *matcher) pop() byte {
	out := m.win[m.start]
	m.start++
	if m.start == len(m.win) {
		m.start = 0
	}
	m.n--
	m.sum.Rollout(out)
	return out
}

// push appends a byte to the window. The caller ensures there is room.
func (m *matcher) push(b byte) {
	i := m.start + m.n
	if i >= len(m.win) {
		i -= len(m.win)
	}
	m.win[i] = b
	m.n++
	m.sum.Rollin(b)
}

// window returns the window contents as a contiguous slice, assembling
// into scratch when the circular buffer wraps.
func (m *matcher) window() []byte {
	if m.start+m.n <= len(m.win) {
		return m.win[m.start : m.start+m.n]
	}
	first := len(m.win) - m.start
	copy(m.scratch, m.win[m.start:])
	copy(m.scratch[first:], m.win[:m.n-first])
	return m.scratch[:m.n]
}

func (m *matcher) maybeFlushLiteral() error {
	if len(m.lit) < maxLiteral {
		return nil
	}
	if err := m.out.literal(m.lit); err != nil {
		return err
	}
	m.lit = m.lit[:0]
	return nil
}
