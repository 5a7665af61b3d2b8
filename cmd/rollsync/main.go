// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

// The rollsync binary generates file signatures, computes and applies
// deltas, and mirrors directory trees, speaking the librsync wire
// formats.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/rollsync/rollsync/cmd/rollsync/cli"
	"github.com/rollsync/rollsync/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if cli.IsUsage(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	return rootCommand().Execute(os.Args[1:])
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name: "rollsync",
		Description: `rollsync: delta transfer for single files and directory trees.

Signatures describe a basis file in a few dozen bytes per block;
deltas carry only what changed relative to a signature; patch
reconstructs the new file from the basis plus the delta. The formats
are wire-compatible with librsync (rdiff).`,
		Subcommands: []*cli.Command{
			signatureCommand(),
			deltaCommand(),
			patchCommand(),
			syncCommand(),
			cacheCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Signature, delta, patch round trip between two hosts",
				Command:     "rollsync signature basis.bin basis.sig",
			},
			{
				Command: "rollsync delta basis.sig updated.bin update.delta",
			},
			{
				Command: "rollsync patch basis.bin update.delta updated.bin",
			},
			{
				Description: "Mirror a tree, printing transfer totals",
				Command:     "rollsync sync --stats ./build /srv/deploy/build",
			},
		},
	}
}

func versionCommand() *cli.Command {
	var short bool

	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
			flagSet.BoolVar(&short, "short", false, "print just the version number")
			return flagSet
		},
		Run: func(args []string) error {
			if short {
				fmt.Println(version.Short())
				return nil
			}
			fmt.Printf("rollsync %s\n", version.Full())
			return nil
		},
	}
}
