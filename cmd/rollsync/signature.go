// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"

	"github.com/spf13/pflag"

	"github.com/rollsync/rollsync/cmd/rollsync/cli"
	"github.com/rollsync/rollsync/lib/signature"
	libsync "github.com/rollsync/rollsync/lib/sync"
)

func signatureCommand() *cli.Command {
	var (
		sig       sigParams
		comp      compressParam
		force     bool
		showStats bool
	)

	return &cli.Command{
		Name:    "signature",
		Summary: "Generate a signature for a basis file",
		Usage:   "rollsync signature [flags] BASIS [SIGNATURE]",
		Description: `Read the basis file and write its block signature.

The signature is what the delta command needs to find unchanged
regions; it is small (a few dozen bytes per block) and can be shipped
to wherever the new version of the file lives. BASIS may be "-" for
stdin; SIGNATURE defaults to stdout when omitted or "-".`,
		Examples: []cli.Example{
			{
				Description: "Signature of a local file",
				Command:     "rollsync signature basis.bin basis.sig",
			},
			{
				Description: "Smaller blocks resolve finer-grained changes",
				Command:     "rollsync signature -b 512 basis.bin basis.sig",
			},
			{
				Description: "Pipe a signature out of a backup stream",
				Command:     "zcat backup.gz | rollsync signature - > backup.sig",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("signature", pflag.ContinueOnError)
			sig.addFlags(flagSet)
			comp.addFlags(flagSet)
			flagSet.BoolVar(&force, "force", false, "overwrite an existing output file")
			flagSet.BoolVar(&showStats, "stats", false, "print signature statistics to stderr")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return cli.Usagef("signature takes BASIS and an optional SIGNATURE path, got %d arguments", len(args))
			}

			opts, err := sig.options()
			if err != nil {
				return err
			}
			mode, err := comp.mode()
			if err != nil {
				return err
			}

			basis, err := openInput(args[0])
			if err != nil {
				return err
			}
			defer basis.Close()

			var generated *signature.Signature
			err = withOutput(arg(args, 1), force, func(w io.Writer) error {
				out, err := mode.NewWriter(w)
				if err != nil {
					return err
				}
				if generated, err = libsync.Signature(out, basis, opts); err != nil {
					return err
				}
				return out.Close()
			})
			if err != nil {
				return err
			}

			if showStats {
				printSignatureStats(generated)
			}
			return nil
		},
	}
}
