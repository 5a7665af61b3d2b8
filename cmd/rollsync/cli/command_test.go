// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "rollsync",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "signature",
				Run: func(args []string) error {
					called = "signature"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"signature"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "signature" {
		t.Errorf("dispatched to %q, want %q", called, "signature")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "rollsync",
		Subcommands: []*Command{
			{
				Name: "cache",
				Subcommands: []*Command{
					{
						Name: "gc",
						Run: func(args []string) error {
							called = "cache gc"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"cache", "gc", "extra-arg"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "cache gc" {
		t.Errorf("dispatched to %q, want %q", called, "cache gc")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra-arg" {
		t.Errorf("args = %v, want [extra-arg]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var blockSize uint32
	var basis string

	command := &Command{
		Name: "signature",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("signature", pflag.ContinueOnError)
			flagSet.Uint32VarP(&blockSize, "block-size", "b", 2048, "block size in bytes")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				basis = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--block-size", "512", "basis.bin"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if blockSize != 512 {
		t.Errorf("blockSize = %d, want 512", blockSize)
	}
	if basis != "basis.bin" {
		t.Errorf("basis = %q, want %q", basis, "basis.bin")
	}
}

func TestCommand_Execute_ShorthandFlag(t *testing.T) {
	var hash string

	command := &Command{
		Name: "signature",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("signature", pflag.ContinueOnError)
			flagSet.StringVarP(&hash, "hash", "H", "blake2", "strong hash algorithm")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	if err := command.Execute([]string{"-H", "md4"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if hash != "md4" {
		t.Errorf("hash = %q, want %q", hash, "md4")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "delta",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("delta", pflag.ContinueOnError)
			flagSet.Bool("stats", false, "print transfer statistics")
			flagSet.String("compress", "none", "delta compression")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--stast"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --stats") {
		t.Errorf("error = %q, want suggestion for '--stats'", errStr)
	}
	// Suggestion should be on the same line as the error, not buried.
	if !strings.Contains(errStr, "stast") {
		t.Errorf("error = %q, should mention the bad flag", errStr)
	}
	// Should include a pointer to --help.
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
	if !IsUsage(err) {
		t.Errorf("error = %v, want usage error classification", err)
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "delta",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("delta", pflag.ContinueOnError)
			flagSet.Bool("stats", false, "print transfer statistics")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "rollsync",
		Subcommands: []*Command{
			{Name: "signature"},
			{Name: "delta"},
			{Name: "patch"},
		},
	}

	err := root.Execute([]string{"detla"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "did you mean \"delta\"") {
		t.Errorf("error = %q, want suggestion for 'delta'", err.Error())
	}
	if !IsUsage(err) {
		t.Errorf("error = %v, want usage error classification", err)
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "rollsync",
		Subcommands: []*Command{
			{Name: "signature"},
			{Name: "delta"},
		},
	}

	err := root.Execute([]string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			root := &Command{
				Name:    "rollsync",
				Summary: "Delta transfer for single files and directory trees",
				Subcommands: []*Command{
					{Name: "signature", Summary: "Generate a signature"},
				},
			}

			err := root.Execute([]string{helpArg})
			if err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
		})
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	root := &Command{
		Name: "rollsync",
		Subcommands: []*Command{
			{Name: "signature", Summary: "Generate a signature"},
		},
	}

	err := root.Execute([]string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
	if !IsUsage(err) {
		t.Errorf("error = %v, want usage error classification", err)
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "rollsync",
		Description: "Delta transfer for single files and directory trees.",
		Subcommands: []*Command{
			{Name: "signature", Summary: "Generate a signature for a basis file"},
			{Name: "delta", Summary: "Compute a delta from a signature and a new file"},
			{Name: "patch", Summary: "Apply a delta to a basis file"},
		},
		Examples: []Example{
			{
				Description: "Generate a signature",
				Command:     "rollsync signature basis.bin basis.sig",
			},
			{
				Description: "Compute a delta against the signature",
				Command:     "rollsync delta basis.sig updated.bin update.delta",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	// Verify structural elements are present.
	for _, want := range []string{
		"Delta transfer for single files and directory trees.",
		"Usage:",
		"rollsync <command> [flags]",
		"Commands:",
		"signature",
		"Generate a signature for a basis file",
		"delta",
		"Compute a delta from a signature and a new file",
		"Examples:",
		"rollsync signature basis.bin basis.sig",
		"rollsync delta basis.sig",
		"Run 'rollsync <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "delta",
		Summary: "Compute a delta from a signature and a new file",
		Usage:   "rollsync delta [flags] SIGNATURE NEWFILE [DELTA]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("delta", pflag.ContinueOnError)
			flagSet.String("compress", "none", "delta compression (none, lz4, zstd, auto)")
			flagSet.Bool("stats", false, "print transfer statistics to stderr")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"rollsync delta [flags] SIGNATURE NEWFILE [DELTA]",
		"Flags:",
		"compress",
		"stats",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "rollsync"}
	cache := &Command{Name: "cache", parent: root}
	gc := &Command{Name: "gc", parent: cache}

	if got := root.fullName(); got != "rollsync" {
		t.Errorf("root.fullName() = %q, want %q", got, "rollsync")
	}
	if got := cache.fullName(); got != "rollsync cache" {
		t.Errorf("cache.fullName() = %q, want %q", got, "rollsync cache")
	}
	if got := gc.fullName(); got != "rollsync cache gc" {
		t.Errorf("gc.fullName() = %q, want %q", got, "rollsync cache gc")
	}
}
