// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package dirsync

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/rollsync/rollsync/lib/sigcache"
	"github.com/rollsync/rollsync/lib/signature"
	libsync "github.com/rollsync/rollsync/lib/sync"
)

// Action is what a plan entry does to the destination tree.
type Action int

const (
	// ActionUnchanged marks a file the quick check found identical.
	ActionUnchanged Action = iota
	// ActionCreate copies a file that has no destination counterpart.
	ActionCreate
	// ActionUpdate delta-encodes a file onto its destination version.
	ActionUpdate
	// ActionDelete removes a destination entry with no source
	// counterpart.
	ActionDelete
	// ActionMkdir creates a directory.
	ActionMkdir
	// ActionSymlink creates or replaces a symlink.
	ActionSymlink
)

// String returns the lowercase name used in logs and dry-run output.
func (a Action) String() string {
	switch a {
	case ActionUnchanged:
		return "unchanged"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	case ActionMkdir:
		return "mkdir"
	case ActionSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Entry is one planned operation.
type Entry struct {
	// Path is slash-separated, relative to both tree roots.
	Path string

	Action Action

	// Size is the source size, or the destination size for deletes.
	Size int64

	// Mode is the source entry's mode for creates, updates, and
	// mkdirs.
	Mode fs.FileMode

	// ModTime is the source modification time.
	ModTime time.Time

	// LinkTarget is the symlink target for symlink entries.
	LinkTarget string
}

// Options configures planning and execution.
type Options struct {
	// Signature configures basis signature generation.
	Signature signature.Options

	// Compress selects the envelope for patchset delta files.
	Compress libsync.CompressMode

	// Include lists patterns that files must match to be synced.
	// Empty means everything.
	Include []string

	// Exclude lists patterns for entries to skip entirely.
	Exclude []string

	// Delete removes destination entries absent from the source.
	Delete bool

	// PreserveTimes copies source modification times to synced files.
	// It also keeps the quick check effective across runs.
	PreserveTimes bool

	// Cache is consulted for basis signatures. If nil, signatures are
	// generated on the fly.
	Cache *sigcache.Cache

	// Logger receives per-entry decisions at debug level and
	// operation summaries at info level. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return o.Logger
}

// Plan is the result of comparing two trees: the operations that would
// make the destination mirror the source.
type Plan struct {
	// Source and Dest are the tree roots the plan was built from.
	Source string
	Dest   string

	// Entries is ordered for execution: directories before their
	// contents, deletions last with children before parents.
	Entries []Entry

	opts Options
}

// Pending returns the number of entries that change the destination.
func (p *Plan) Pending() int {
	n := 0
	for _, e := range p.Entries {
		if e.Action != ActionUnchanged {
			n++
		}
	}
	return n
}

// BuildPlan walks the source and destination trees and classifies
// every entry. It writes nothing.
func BuildPlan(source, dest string, opts Options) (*Plan, error) {
	srcInfo, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("reading source tree: %w", err)
	}
	if !srcInfo.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", source)
	}
	if dstInfo, err := os.Stat(dest); err == nil && !dstInfo.IsDir() {
		return nil, fmt.Errorf("destination %s is not a directory", dest)
	}

	logger := opts.logger()
	plan := &Plan{Source: source, Dest: dest, opts: opts}

	// Everything the source walk accepts, so the destination walk can
	// tell extraneous entries from known ones.
	known := make(map[string]bool)

	err = fs.WalkDir(os.DirFS(source), ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking source tree: %w", err)
		}
		if rel == "." {
			return nil
		}

		if matchAny(opts.Exclude, rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		switch {
		case d.IsDir():
			known[rel] = true
			entry, err := classifyDir(rel, d, dest)
			if err != nil {
				return err
			}
			if entry != nil {
				logger.Debug("planned", "path", rel, "action", entry.Action)
				plan.Entries = append(plan.Entries, *entry)
			}

		case d.Type()&fs.ModeSymlink != 0:
			if !included(opts.Include, rel) {
				return nil
			}
			known[rel] = true
			entry, err := classifySymlink(rel, source, dest)
			if err != nil {
				return err
			}
			logger.Debug("planned", "path", rel, "action", entry.Action)
			plan.Entries = append(plan.Entries, *entry)

		case d.Type().IsRegular():
			if !included(opts.Include, rel) {
				return nil
			}
			known[rel] = true
			entry, err := classifyFile(rel, d, dest)
			if err != nil {
				return err
			}
			logger.Debug("planned", "path", rel, "action", entry.Action)
			plan.Entries = append(plan.Entries, *entry)

		default:
			// Sockets, devices, fifos. Not our business.
			logger.Debug("skipping special file", "path", rel, "type", d.Type().String())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opts.Delete {
		deletes, err := findExtraneous(dest, known, opts)
		if err != nil {
			return nil, err
		}
		for _, e := range deletes {
			logger.Debug("planned", "path", e.Path, "action", e.Action)
		}
		plan.Entries = append(plan.Entries, deletes...)
	}

	return plan, nil
}

// destLstat stats the destination counterpart of a source entry. A
// path under a non-directory reports as missing; the obstruction
// itself gets planned by its own entry.
func destLstat(dest, rel string) (fs.FileInfo, error) {
	info, err := os.Lstat(filepath.Join(dest, filepath.FromSlash(rel)))
	if err != nil && errors.Is(err, syscall.ENOTDIR) {
		return nil, fs.ErrNotExist
	}
	return info, err
}

// classifyDir plans a directory. Existing directories need nothing and
// return nil.
func classifyDir(rel string, d fs.DirEntry, dest string) (*Entry, error) {
	info, err := d.Info()
	if err != nil {
		return nil, fmt.Errorf("reading source directory %s: %w", rel, err)
	}

	dstInfo, err := destLstat(dest, rel)
	if err == nil && dstInfo.IsDir() {
		return nil, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading destination %s: %w", rel, err)
	}

	// Missing, or present as something that is not a directory.
	return &Entry{
		Path:    rel,
		Action:  ActionMkdir,
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
	}, nil
}

// classifySymlink plans a symlink by comparing targets.
func classifySymlink(rel, source, dest string) (*Entry, error) {
	target, err := os.Readlink(filepath.Join(source, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("reading source symlink %s: %w", rel, err)
	}

	entry := &Entry{Path: rel, Action: ActionSymlink, LinkTarget: target}

	dstPath := filepath.Join(dest, filepath.FromSlash(rel))
	dstInfo, err := destLstat(dest, rel)
	if os.IsNotExist(err) {
		return entry, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading destination %s: %w", rel, err)
	}
	if dstInfo.Mode()&fs.ModeSymlink != 0 {
		if existing, err := os.Readlink(dstPath); err == nil && existing == target {
			entry.Action = ActionUnchanged
		}
	}
	return entry, nil
}

// classifyFile plans a regular file with the size+mtime quick check.
func classifyFile(rel string, d fs.DirEntry, dest string) (*Entry, error) {
	info, err := d.Info()
	if err != nil {
		return nil, fmt.Errorf("reading source file %s: %w", rel, err)
	}

	entry := &Entry{
		Path:    rel,
		Size:    info.Size(),
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
	}

	dstInfo, err := destLstat(dest, rel)
	switch {
	case os.IsNotExist(err):
		entry.Action = ActionCreate
	case err != nil:
		return nil, fmt.Errorf("reading destination %s: %w", rel, err)
	case !dstInfo.Mode().IsRegular():
		// A directory or symlink is in the way; replace it outright.
		entry.Action = ActionCreate
	case dstInfo.Size() == info.Size() && dstInfo.ModTime().Equal(info.ModTime()):
		entry.Action = ActionUnchanged
	default:
		entry.Action = ActionUpdate
	}
	return entry, nil
}

// findExtraneous walks the destination and collects entries the source
// walk never claimed, ordered children before parents so plain Remove
// suffices.
func findExtraneous(dest string, known map[string]bool, opts Options) ([]Entry, error) {
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return nil, nil
	}

	var deletes []Entry
	err := fs.WalkDir(os.DirFS(dest), ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walking destination tree: %w", err)
		}
		if rel == "." || known[rel] {
			return nil
		}

		// Excluded entries are invisible on both sides: never synced,
		// never deleted.
		if matchAny(opts.Exclude, rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && !included(opts.Include, rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("reading destination %s: %w", rel, err)
		}
		deletes = append(deletes, Entry{
			Path:   rel,
			Action: ActionDelete,
			Size:   info.Size(),
			Mode:   info.Mode(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Reverse-lexical order deletes a directory's contents before the
	// directory itself.
	sort.Slice(deletes, func(i, j int) bool { return deletes[i].Path > deletes[j].Path })
	return deletes, nil
}

// matchAny reports whether the relative path or its base name matches
// any pattern.
func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := path.Match(pattern, path.Base(rel)); ok {
			return true
		}
	}
	return false
}

// included reports whether a file passes the include filter.
func included(include []string, rel string) bool {
	if len(include) == 0 {
		return true
	}
	return matchAny(include, rel)
}
