// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package dirsync

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rollsync/rollsync/lib/delta"
	"github.com/rollsync/rollsync/lib/patch"
	"github.com/rollsync/rollsync/lib/sigcache"
	"github.com/rollsync/rollsync/lib/signature"
	libsync "github.com/rollsync/rollsync/lib/sync"
)

// Stats totals what an execution did.
type Stats struct {
	// Examined is the number of plan entries processed.
	Examined int

	Created   int
	Updated   int
	Deleted   int
	Unchanged int
	Dirs      int
	Symlinks  int

	// CacheHits and CacheMisses count basis signature lookups when a
	// cache is configured.
	CacheHits   int
	CacheMisses int

	// LiteralBytes and CopyBytes total the delta commands behind
	// updates: bytes carried in the deltas versus bytes reused from
	// the basis files.
	LiteralBytes int64
	CopyBytes    int64

	// FileCopyBytes totals whole-file copies for created files.
	FileCopyBytes int64
}

// Apply executes the plan, mirroring the source tree onto the
// destination. It stops at the first error; completed entries stay
// applied.
func (p *Plan) Apply() (Stats, error) {
	var stats Stats
	logger := p.opts.logger()

	if err := os.MkdirAll(p.Dest, 0o755); err != nil {
		return stats, fmt.Errorf("creating destination root: %w", err)
	}

	for _, entry := range p.Entries {
		stats.Examined++
		dstPath := filepath.Join(p.Dest, filepath.FromSlash(entry.Path))

		switch entry.Action {
		case ActionUnchanged:
			stats.Unchanged++

		case ActionMkdir:
			if err := makeDir(dstPath, entry); err != nil {
				return stats, err
			}
			logger.Debug("mkdir", "path", entry.Path)
			stats.Dirs++

		case ActionSymlink:
			if err := makeSymlink(dstPath, entry); err != nil {
				return stats, err
			}
			logger.Debug("symlink", "path", entry.Path, "target", entry.LinkTarget)
			stats.Symlinks++

		case ActionCreate:
			n, err := p.copyFile(dstPath, entry)
			if err != nil {
				return stats, err
			}
			logger.Debug("create", "path", entry.Path, "bytes", n)
			stats.Created++
			stats.FileCopyBytes += n

		case ActionUpdate:
			dstats, err := p.updateFile(dstPath, entry, &stats)
			if err != nil {
				return stats, err
			}
			logger.Debug("update", "path", entry.Path,
				"literal_bytes", dstats.LiteralBytes, "copy_bytes", dstats.CopyBytes)
			stats.Updated++
			stats.LiteralBytes += dstats.LiteralBytes
			stats.CopyBytes += dstats.CopyBytes

		case ActionDelete:
			if err := removeEntry(dstPath, entry, logger, &stats); err != nil {
				return stats, err
			}

		default:
			return stats, fmt.Errorf("unknown plan action %d for %s", entry.Action, entry.Path)
		}
	}

	logger.Info("sync applied",
		"created", stats.Created,
		"updated", stats.Updated,
		"deleted", stats.Deleted,
		"unchanged", stats.Unchanged,
		"literal_bytes", stats.LiteralBytes,
		"copy_bytes", stats.CopyBytes)
	return stats, nil
}

// makeDir creates a planned directory, clearing any non-directory in
// the way.
func makeDir(dstPath string, entry Entry) error {
	if info, err := os.Lstat(dstPath); err == nil && !info.IsDir() {
		if err := os.Remove(dstPath); err != nil {
			return fmt.Errorf("clearing %s for directory: %w", entry.Path, err)
		}
	}
	if err := os.MkdirAll(dstPath, entry.Mode.Perm()); err != nil {
		return fmt.Errorf("creating directory %s: %w", entry.Path, err)
	}
	return nil
}

// makeSymlink recreates a planned symlink, replacing whatever is
// there.
func makeSymlink(dstPath string, entry Entry) error {
	if _, err := os.Lstat(dstPath); err == nil {
		if err := os.RemoveAll(dstPath); err != nil {
			return fmt.Errorf("clearing %s for symlink: %w", entry.Path, err)
		}
	}
	if err := os.Symlink(entry.LinkTarget, dstPath); err != nil {
		return fmt.Errorf("creating symlink %s: %w", entry.Path, err)
	}
	return nil
}

// copyFile copies a new file from the source tree into place.
func (p *Plan) copyFile(dstPath string, entry Entry) (int64, error) {
	srcFile, err := os.Open(filepath.Join(p.Source, filepath.FromSlash(entry.Path)))
	if err != nil {
		return 0, fmt.Errorf("opening source file %s: %w", entry.Path, err)
	}
	defer srcFile.Close()

	// A directory in the way blocks the rename; files and symlinks
	// are replaced by it.
	if info, err := os.Lstat(dstPath); err == nil && info.IsDir() {
		if err := os.RemoveAll(dstPath); err != nil {
			return 0, fmt.Errorf("clearing %s for file: %w", entry.Path, err)
		}
	}

	var n int64
	err = libsync.WriteFileAtomic(dstPath, true, func(w io.Writer) error {
		n, err = io.Copy(w, srcFile)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("copying %s: %w", entry.Path, err)
	}
	return n, p.finishFile(dstPath, entry)
}

// updateFile rewrites a changed file by delta: the destination's
// current content is the basis, the source is the target. The delta
// streams through a pipe straight into patching, so no intermediate
// file or buffer holds it.
func (p *Plan) updateFile(dstPath string, entry Entry, stats *Stats) (delta.Stats, error) {
	sig, _, err := p.basisSignature(dstPath, stats)
	if err != nil {
		return delta.Stats{}, fmt.Errorf("signing basis for %s: %w", entry.Path, err)
	}

	srcFile, err := os.Open(filepath.Join(p.Source, filepath.FromSlash(entry.Path)))
	if err != nil {
		return delta.Stats{}, fmt.Errorf("opening source file %s: %w", entry.Path, err)
	}
	defer srcFile.Close()

	// The basis stays readable through this handle while the rename
	// replaces its name.
	basis, err := os.Open(dstPath)
	if err != nil {
		return delta.Stats{}, fmt.Errorf("opening basis %s: %w", entry.Path, err)
	}
	defer basis.Close()

	pr, pw := io.Pipe()
	var dstats delta.Stats
	go func() {
		s, err := libsync.Delta(pw, srcFile, sig)
		dstats = s
		pw.CloseWithError(err)
	}()

	err = libsync.WriteFileAtomic(dstPath, true, func(w io.Writer) error {
		_, err := patch.Apply(w, pr, basis)
		return err
	})
	pr.Close()
	if err != nil {
		return delta.Stats{}, fmt.Errorf("updating %s: %w", entry.Path, err)
	}
	return dstats, p.finishFile(dstPath, entry)
}

// finishFile applies source mode and, when configured, times to a
// freshly written file.
func (p *Plan) finishFile(dstPath string, entry Entry) error {
	if err := os.Chmod(dstPath, entry.Mode.Perm()); err != nil {
		return fmt.Errorf("setting mode on %s: %w", entry.Path, err)
	}
	if p.opts.PreserveTimes {
		if err := os.Chtimes(dstPath, entry.ModTime, entry.ModTime); err != nil {
			return fmt.Errorf("setting times on %s: %w", entry.Path, err)
		}
	}
	return nil
}

// basisSignature returns the signature and content identity of the
// destination file, from the cache when one is configured.
func (p *Plan) basisSignature(dstPath string, stats *Stats) (*signature.Signature, sigcache.BasisID, error) {
	if p.opts.Cache != nil {
		sig, id, hit, err := p.opts.Cache.SignatureFor(dstPath, p.opts.Signature)
		if err != nil {
			return nil, id, err
		}
		if hit {
			stats.CacheHits++
		} else {
			stats.CacheMisses++
		}
		return sig, id, nil
	}

	f, err := os.Open(dstPath)
	if err != nil {
		return nil, sigcache.BasisID{}, err
	}
	defer f.Close()

	// Hash the identity on the same pass that reads the blocks.
	hasher := sigcache.NewBasisHasher()
	sig, err := signature.Generate(io.TeeReader(f, hasher), p.opts.Signature)
	if err != nil {
		return nil, sigcache.BasisID{}, err
	}
	return sig, hasher.Sum(), nil
}

// removeEntry deletes an extraneous destination entry. A directory
// kept non-empty by excluded children is left in place.
func removeEntry(dstPath string, entry Entry, logger *slog.Logger, stats *Stats) error {
	err := os.Remove(dstPath)
	switch {
	case err == nil:
		logger.Debug("delete", "path", entry.Path)
		stats.Deleted++
	case os.IsNotExist(err):
		// Already gone, likely removed with a parent.
	case errors.Is(err, syscall.ENOTEMPTY):
		logger.Debug("keeping non-empty directory", "path", entry.Path)
	default:
		return fmt.Errorf("deleting %s: %w", entry.Path, err)
	}
	return nil
}
