// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewLogger creates the logger for CLI operations, writing to stderr.
// When stderr is a terminal the output is human-readable text; when
// piped or redirected (scripts, cron, CI) it is JSON for machine
// parsing.
//
// Verbosity 0 logs warnings only, keeping the default invocation
// quiet the way rdiff is. Each -v step lowers the threshold: 1 adds
// info (per-operation summaries), 2 and above adds debug (per-file
// decisions).
func NewLogger(verbose int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbose >= 2:
		level = slog.LevelDebug
	case verbose == 1:
		level = slog.LevelInfo
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if Interactive() {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

// Interactive reports whether stderr is attached to a terminal.
// Commands use it to gate progress output that would clutter logs
// when the binary runs from a script.
func Interactive() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
