// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
)

// UsageError reports a command line the binary could not act on:
// unknown subcommand, bad flag, wrong argument count, unparseable
// flag value. main distinguishes it from operation failures to pick
// the exit code (2 for usage, 1 for everything else).
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error, so errors.Is and errors.As
// walk the chain through the UsageError wrapper.
func (e *UsageError) Unwrap() error { return e.Err }

// Usagef builds a UsageError from a format string.
func Usagef(format string, args ...any) *UsageError {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// IsUsage reports whether err stems from how the command was invoked.
func IsUsage(err error) bool {
	var usage *UsageError
	return errors.As(err, &usage)
}
