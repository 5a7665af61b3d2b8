// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/rollsync/rollsync/cmd/rollsync/cli"
	"github.com/rollsync/rollsync/lib/patch"
	libsync "github.com/rollsync/rollsync/lib/sync"
)

func patchCommand() *cli.Command {
	var (
		force     bool
		showStats bool
	)

	return &cli.Command{
		Name:    "patch",
		Summary: "Apply a delta to a basis file",
		Usage:   "rollsync patch [flags] BASIS DELTA [NEWFILE]",
		Description: `Apply a delta to the basis file and write the reconstructed new
version.

Patching reads the basis by random access, so BASIS must be a real
file, not stdin. DELTA may be "-"; compressed deltas are detected and
unwrapped automatically. NEWFILE defaults to stdout when omitted or
"-". Naming the basis itself as NEWFILE patches in place: the output
replaces the basis atomically once the patch completes.`,
		Examples: []cli.Example{
			{
				Description: "Reconstruct the new version next to the basis",
				Command:     "rollsync patch basis.bin update.delta updated.bin",
			},
			{
				Description: "Patch in place",
				Command:     "rollsync patch basis.bin update.delta basis.bin",
			},
			{
				Description: "Apply a delta arriving on a pipe",
				Command:     "ssh build-host cat update.delta | rollsync patch basis.bin - updated.bin",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("patch", pflag.ContinueOnError)
			flagSet.BoolVar(&force, "force", false, "overwrite an existing output file")
			flagSet.BoolVar(&showStats, "stats", false, "print transfer statistics to stderr")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) < 2 || len(args) > 3 {
				return cli.Usagef("patch takes BASIS, DELTA, and an optional NEWFILE path, got %d arguments", len(args))
			}
			basisPath := args[0]
			if basisPath == "-" {
				return cli.Usagef("BASIS cannot be stdin: patching needs random access to the basis")
			}

			basis, err := os.Open(basisPath)
			if err != nil {
				return err
			}
			defer basis.Close()

			deltaStream, err := openInput(args[1])
			if err != nil {
				return err
			}
			defer deltaStream.Close()

			// In-place patching replaces the output it reads from; the
			// open basis handle keeps the old content readable while the
			// temp file is written.
			outPath := arg(args, 2)
			if outPath == basisPath {
				force = true
			}

			var stats patch.Stats
			err = withOutput(outPath, force, func(w io.Writer) error {
				var err error
				stats, err = libsync.Patch(w, deltaStream, basis)
				return err
			})
			if err != nil {
				return err
			}

			if showStats {
				printPatchStats(stats)
			}
			return nil
		},
	}
}
