// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/rollsync/rollsync/cmd/rollsync/cli"
	"github.com/rollsync/rollsync/lib/config"
	"github.com/rollsync/rollsync/lib/delta"
	"github.com/rollsync/rollsync/lib/dirsync"
	"github.com/rollsync/rollsync/lib/patch"
	"github.com/rollsync/rollsync/lib/signature"
	libsync "github.com/rollsync/rollsync/lib/sync"
)

// sigParams bundles the signature generation flags shared by the
// signature and sync commands. Flag names and shorthands follow rdiff
// where one exists.
type sigParams struct {
	blockSize  uint32
	strongSize uint32
	hash       string
}

func (p *sigParams) addFlags(flagSet *pflag.FlagSet) {
	flagSet.Uint32VarP(&p.blockSize, "block-size", "b", signature.DefaultBlockLen,
		"signature block size in bytes")
	flagSet.Uint32VarP(&p.strongSize, "strong-size", "S", 0,
		"truncate strong hashes to this many bytes (0 keeps the full width)")
	flagSet.StringVarP(&p.hash, "hash", "H", "blake2",
		"strong hash algorithm (md4, blake2, blake3)")
}

func (p *sigParams) options() (signature.Options, error) {
	magic, err := signature.ParseHash(p.hash)
	if err != nil {
		return signature.Options{}, cli.Usagef("--hash: %v", err)
	}
	return signature.Options{
		Magic:     magic,
		BlockLen:  p.blockSize,
		StrongLen: p.strongSize,
	}, nil
}

// compressParam is the --compress flag shared by commands that write
// signature or delta files.
type compressParam struct {
	name string
}

func (p *compressParam) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&p.name, "compress", "z", "none",
		"output compression (none, lz4, zstd, auto)")
}

func (p *compressParam) mode() (libsync.CompressMode, error) {
	mode, err := libsync.ParseCompressMode(p.name)
	if err != nil {
		return libsync.CompressMode{}, cli.Usagef("--compress: %v", err)
	}
	return mode, nil
}

// loadConfig resolves the configuration for commands that take
// --config and --profile: an explicit path wins, otherwise
// ROLLSYNC_CONFIG or built-in defaults via [config.Load].
func loadConfig(path, profile string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	cfg, err = cfg.Profile(profile)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// arg returns the i'th positional argument, or "" when absent.
// Commands treat a missing trailing path the same as "-".
func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// openInput opens path for reading, with "-" meaning stdin. The
// caller closes the result; stdin is wrapped so the close is a no-op.
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// withOutput runs write against the resolved output target: stdout
// when path is empty or "-", otherwise an atomic file write honoring
// force. File output is all-or-nothing; stdout output is a plain
// stream.
func withOutput(path string, force bool, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(os.Stdout)
	}
	return libsync.WriteFileAtomic(path, force, write)
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// Stats go to stderr so stdout stays clean for piped wire output.

func printSignatureStats(sig *signature.Signature) {
	fmt.Fprintf(os.Stderr, "signature: %d blocks of %s, %s strong hash (%d bytes), %s on the wire\n",
		len(sig.Blocks), formatSize(int64(sig.BlockLen)), sig.Magic, sig.StrongLen,
		formatSize(sig.WireSize()))
}

func printDeltaStats(s delta.Stats) {
	fmt.Fprintf(os.Stderr, "delta: %s matched (%d commands), %s literal (%d commands), %s on the wire",
		formatSize(s.CopyBytes), s.CopyCommands,
		formatSize(s.LiteralBytes), s.LiteralCommands,
		formatSize(s.WireBytes))
	if input := s.LiteralBytes + s.CopyBytes; input > 0 {
		fmt.Fprintf(os.Stderr, " (%.1f%% of input)", 100*float64(s.WireBytes)/float64(input))
	}
	fmt.Fprintln(os.Stderr)
}

func printPatchStats(s patch.Stats) {
	fmt.Fprintf(os.Stderr, "patch: %s written, %s from basis (%d copies), %s from delta (%d literals)\n",
		formatSize(s.LiteralBytes+s.CopyBytes),
		formatSize(s.CopyBytes), s.CopyCommands,
		formatSize(s.LiteralBytes), s.LiteralCommands)
}

func printSyncStats(s dirsync.Stats) {
	fmt.Fprintf(os.Stderr, "sync: %d created, %d updated, %d deleted, %d unchanged (%d dirs, %d symlinks)\n",
		s.Created, s.Updated, s.Deleted, s.Unchanged, s.Dirs, s.Symlinks)
	if s.LiteralBytes+s.CopyBytes+s.FileCopyBytes > 0 {
		fmt.Fprintf(os.Stderr, "transfer: %s literal, %s reused from basis, %s whole-file\n",
			formatSize(s.LiteralBytes), formatSize(s.CopyBytes), formatSize(s.FileCopyBytes))
	}
	if s.CacheHits+s.CacheMisses > 0 {
		fmt.Fprintf(os.Stderr, "cache: %d hits, %d misses\n", s.CacheHits, s.CacheMisses)
	}
}
