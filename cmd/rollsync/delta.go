// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"

	"github.com/spf13/pflag"

	"github.com/rollsync/rollsync/cmd/rollsync/cli"
	"github.com/rollsync/rollsync/lib/delta"
	libsync "github.com/rollsync/rollsync/lib/sync"
)

func deltaCommand() *cli.Command {
	var (
		comp      compressParam
		force     bool
		showStats bool
	)

	return &cli.Command{
		Name:    "delta",
		Summary: "Compute a delta from a signature and a new file",
		Usage:   "rollsync delta [flags] SIGNATURE NEWFILE [DELTA]",
		Description: `Read a signature and the new version of the file, and write the
delta that transforms the signed basis into the new version.

Block size and hash algorithm come from the signature; there are no
flags for them here. Either SIGNATURE or NEWFILE may be "-" for stdin,
but not both. DELTA defaults to stdout when omitted or "-".`,
		Examples: []cli.Example{
			{
				Description: "Delta between the signed basis and an updated file",
				Command:     "rollsync delta basis.sig updated.bin update.delta",
			},
			{
				Description: "Compress the delta for transport",
				Command:     "rollsync delta -z zstd basis.sig updated.bin update.delta",
			},
			{
				Description: "Stream the new file through a pipe",
				Command:     "zcat updated.gz | rollsync delta basis.sig - > update.delta",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("delta", pflag.ContinueOnError)
			comp.addFlags(flagSet)
			flagSet.BoolVar(&force, "force", false, "overwrite an existing output file")
			flagSet.BoolVar(&showStats, "stats", false, "print transfer statistics to stderr")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) < 2 || len(args) > 3 {
				return cli.Usagef("delta takes SIGNATURE, NEWFILE, and an optional DELTA path, got %d arguments", len(args))
			}
			if args[0] == "-" && args[1] == "-" {
				return cli.Usagef("SIGNATURE and NEWFILE cannot both be stdin")
			}

			mode, err := comp.mode()
			if err != nil {
				return err
			}

			sigFile, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer sigFile.Close()
			sig, err := libsync.LoadSignature(sigFile)
			if err != nil {
				return err
			}

			newFile, err := openInput(args[1])
			if err != nil {
				return err
			}
			defer newFile.Close()

			var stats delta.Stats
			err = withOutput(arg(args, 2), force, func(w io.Writer) error {
				out, err := mode.NewWriter(w)
				if err != nil {
					return err
				}
				if stats, err = libsync.Delta(out, newFile, sig); err != nil {
					return err
				}
				return out.Close()
			})
			if err != nil {
				return err
			}

			if showStats {
				printDeltaStats(stats)
			}
			return nil
		},
	}
}
