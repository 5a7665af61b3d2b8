// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package dirsync

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rollsync/rollsync/lib/codec"
	"github.com/rollsync/rollsync/lib/delta"
	"github.com/rollsync/rollsync/lib/patch"
	"github.com/rollsync/rollsync/lib/sigcache"
	"github.com/rollsync/rollsync/lib/signature"
	libsync "github.com/rollsync/rollsync/lib/sync"
)

// ManifestName is the manifest file within a patchset directory.
const ManifestName = "manifest.cbor"

const (
	manifestVersion = 1
	deltaSubdir     = "deltas"
)

// Manifest operation names. They are wire values: changing one breaks
// every patchset already written.
const (
	opPatch   = "patch"
	opCreate  = "create"
	opDelete  = "delete"
	opMkdir   = "mkdir"
	opSymlink = "symlink"
)

type patchsetManifest struct {
	Version int              `cbor:"version"`
	Created int64            `cbor:"created"`
	Entries []patchsetRecord `cbor:"entries"`
}

type patchsetRecord struct {
	Path       string `cbor:"path"`
	Op         string `cbor:"op"`
	Size       int64  `cbor:"size,omitempty"`
	Mode       uint32 `cbor:"mode,omitempty"`
	ModTime    int64  `cbor:"mtime_ns,omitempty"`
	BasisID    []byte `cbor:"basis_id,omitempty"`
	NewID      []byte `cbor:"new_id,omitempty"`
	Delta      string `cbor:"delta,omitempty"`
	LinkTarget string `cbor:"symlink_target,omitempty"`
}

// WritePatchset writes the plan's changes into dir as a portable
// patchset: one delta file per created or updated file, and a CBOR
// manifest describing every operation. Updates are encoded against the
// plan's destination tree, whose content identities the manifest
// records so that [ApplyPatchset] can refuse drifted targets.
//
// The directory must not already hold a patchset.
func (p *Plan) WritePatchset(dir string) (Stats, error) {
	var stats Stats
	logger := p.opts.logger()

	manifestPath := filepath.Join(dir, ManifestName)
	if _, err := os.Stat(manifestPath); err == nil {
		return stats, fmt.Errorf("patchset already exists at %s", dir)
	}
	if err := os.MkdirAll(filepath.Join(dir, deltaSubdir), 0o755); err != nil {
		return stats, fmt.Errorf("creating patchset directory: %w", err)
	}

	m := patchsetManifest{
		Version: manifestVersion,
		Created: time.Now().Unix(),
	}

	seq := 0
	for _, entry := range p.Entries {
		stats.Examined++

		switch entry.Action {
		case ActionUnchanged:
			stats.Unchanged++

		case ActionMkdir:
			m.Entries = append(m.Entries, patchsetRecord{
				Path: entry.Path,
				Op:   opMkdir,
				Mode: uint32(entry.Mode.Perm()),
			})
			stats.Dirs++

		case ActionSymlink:
			m.Entries = append(m.Entries, patchsetRecord{
				Path:       entry.Path,
				Op:         opSymlink,
				LinkTarget: entry.LinkTarget,
			})
			stats.Symlinks++

		case ActionDelete:
			m.Entries = append(m.Entries, patchsetRecord{
				Path: entry.Path,
				Op:   opDelete,
			})
			stats.Deleted++

		case ActionCreate, ActionUpdate:
			seq++
			record, dstats, err := p.writeDelta(dir, seq, entry, &stats)
			if err != nil {
				return stats, err
			}
			m.Entries = append(m.Entries, record)
			stats.LiteralBytes += dstats.LiteralBytes
			stats.CopyBytes += dstats.CopyBytes
			if entry.Action == ActionCreate {
				stats.Created++
			} else {
				stats.Updated++
			}
			logger.Debug("patchset delta", "path", entry.Path,
				"delta", record.Delta, "wire_bytes", dstats.WireBytes)

		default:
			return stats, fmt.Errorf("unknown plan action %d for %s", entry.Action, entry.Path)
		}
	}

	err := libsync.WriteFileAtomic(manifestPath, false, func(w io.Writer) error {
		return codec.NewEncoder(w).Encode(m)
	})
	if err != nil {
		return stats, fmt.Errorf("writing patchset manifest: %w", err)
	}

	logger.Info("patchset written", "dir", dir, "entries", len(m.Entries))
	return stats, nil
}

// writeDelta encodes one file into the patchset. New files are deltas
// against an empty basis, so the apply side has a single code path.
func (p *Plan) writeDelta(dir string, seq int, entry Entry, stats *Stats) (patchsetRecord, delta.Stats, error) {
	var (
		sig     *signature.Signature
		basisID []byte
		err     error
	)
	if entry.Action == ActionUpdate {
		var id sigcache.BasisID
		sig, id, err = p.basisSignature(filepath.Join(p.Dest, filepath.FromSlash(entry.Path)), stats)
		if err != nil {
			return patchsetRecord{}, delta.Stats{}, fmt.Errorf("signing basis for %s: %w", entry.Path, err)
		}
		basisID = id[:]
	} else {
		sig, err = signature.Generate(bytes.NewReader(nil), p.opts.Signature)
		if err != nil {
			return patchsetRecord{}, delta.Stats{}, fmt.Errorf("signing empty basis: %w", err)
		}
	}

	srcFile, err := os.Open(filepath.Join(p.Source, filepath.FromSlash(entry.Path)))
	if err != nil {
		return patchsetRecord{}, delta.Stats{}, fmt.Errorf("opening source file %s: %w", entry.Path, err)
	}
	defer srcFile.Close()

	deltaName := fmt.Sprintf("%s/%06d.delta", deltaSubdir, seq)

	// Hash the new content on the same pass that encodes it.
	hasher := sigcache.NewBasisHasher()
	var dstats delta.Stats
	err = libsync.WriteFileAtomic(filepath.Join(dir, filepath.FromSlash(deltaName)), true, func(w io.Writer) error {
		out, err := p.opts.Compress.NewWriter(w)
		if err != nil {
			return err
		}
		if dstats, err = libsync.Delta(out, io.TeeReader(srcFile, hasher), sig); err != nil {
			return err
		}
		return out.Close()
	})
	if err != nil {
		return patchsetRecord{}, delta.Stats{}, fmt.Errorf("encoding delta for %s: %w", entry.Path, err)
	}

	op := opPatch
	if entry.Action == ActionCreate {
		op = opCreate
	}
	newID := hasher.Sum()
	return patchsetRecord{
		Path:    entry.Path,
		Op:      op,
		Size:    hasher.Size(),
		Mode:    uint32(entry.Mode.Perm()),
		ModTime: entry.ModTime.UnixNano(),
		BasisID: basisID,
		NewID:   newID[:],
		Delta:   deltaName,
	}, dstats, nil
}

// ApplyPatchset replays a patchset directory onto the tree rooted at
// root. Every patch target is verified against the basis identity the
// manifest records, and every result against the expected new
// identity; a file that already matches the new identity is left
// alone, so interrupted applies can simply be rerun.
func ApplyPatchset(patchsetDir, root string, opts Options) (Stats, error) {
	var stats Stats
	logger := opts.logger()

	f, err := os.Open(filepath.Join(patchsetDir, ManifestName))
	if err != nil {
		return stats, fmt.Errorf("opening patchset manifest: %w", err)
	}
	var m patchsetManifest
	err = codec.NewDecoder(f).Decode(&m)
	f.Close()
	if err != nil {
		return stats, fmt.Errorf("reading patchset manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return stats, fmt.Errorf("unsupported patchset version %d", m.Version)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return stats, fmt.Errorf("creating target root: %w", err)
	}

	for _, record := range m.Entries {
		stats.Examined++

		// The manifest is input; never let it walk out of the tree.
		if !filepath.IsLocal(filepath.FromSlash(record.Path)) {
			return stats, fmt.Errorf("unsafe path %q in patchset manifest", record.Path)
		}
		target := filepath.Join(root, filepath.FromSlash(record.Path))

		switch record.Op {
		case opMkdir:
			entry := Entry{Path: record.Path, Mode: fs.FileMode(record.Mode)}
			if err := makeDir(target, entry); err != nil {
				return stats, err
			}
			logger.Debug("mkdir", "path", record.Path)
			stats.Dirs++

		case opSymlink:
			entry := Entry{Path: record.Path, LinkTarget: record.LinkTarget}
			if err := makeSymlink(target, entry); err != nil {
				return stats, err
			}
			logger.Debug("symlink", "path", record.Path, "target", record.LinkTarget)
			stats.Symlinks++

		case opDelete:
			if err := removeEntry(target, Entry{Path: record.Path}, logger, &stats); err != nil {
				return stats, err
			}

		case opCreate, opPatch:
			if err := applyPatchRecord(patchsetDir, target, record, opts, &stats); err != nil {
				return stats, err
			}

		default:
			return stats, fmt.Errorf("unknown patchset op %q for %s", record.Op, record.Path)
		}
	}

	logger.Info("patchset applied",
		"created", stats.Created,
		"updated", stats.Updated,
		"deleted", stats.Deleted,
		"unchanged", stats.Unchanged)
	return stats, nil
}

// applyPatchRecord patches or creates one file from the patchset.
func applyPatchRecord(patchsetDir, target string, record patchsetRecord, opts Options, stats *Stats) error {
	wantNew, err := asBasisID(record.NewID)
	if err != nil {
		return fmt.Errorf("manifest entry %s: %w", record.Path, err)
	}

	var basis io.ReaderAt = bytes.NewReader(nil)

	info, err := os.Lstat(target)
	switch {
	case os.IsNotExist(err):
		if record.Op == opPatch {
			return fmt.Errorf("basis mismatch for %s: file missing from target tree", record.Path)
		}

	case err != nil:
		return fmt.Errorf("reading target %s: %w", record.Path, err)

	case !info.Mode().IsRegular():
		if record.Op == opPatch {
			return fmt.Errorf("basis mismatch for %s: target is not a regular file", record.Path)
		}
		// Creating over a directory or symlink: clear it.
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("clearing %s for file: %w", record.Path, err)
		}

	default:
		targetFile, err := os.Open(target)
		if err != nil {
			return fmt.Errorf("opening target %s: %w", record.Path, err)
		}
		defer targetFile.Close()

		current, _, err := sigcache.HashBasis(targetFile)
		if err != nil {
			return fmt.Errorf("hashing target %s: %w", record.Path, err)
		}
		if current == wantNew {
			// Already at the new content; a rerun of an interrupted
			// apply lands here.
			stats.Unchanged++
			return nil
		}

		if record.Op == opCreate {
			return fmt.Errorf("basis mismatch for %s: patchset creates this file but it already exists with other content", record.Path)
		}
		wantBasis, err := asBasisID(record.BasisID)
		if err != nil {
			return fmt.Errorf("manifest entry %s: %w", record.Path, err)
		}
		if current != wantBasis {
			return fmt.Errorf("basis mismatch for %s: target content does not match the patchset basis", record.Path)
		}

		// The handle keeps the basis readable while the rename
		// replaces its name.
		basis = targetFile
	}

	if record.Delta == "" || !filepath.IsLocal(filepath.FromSlash(record.Delta)) {
		return fmt.Errorf("unsafe delta name %q in patchset manifest", record.Delta)
	}
	deltaFile, err := os.Open(filepath.Join(patchsetDir, filepath.FromSlash(record.Delta)))
	if err != nil {
		return fmt.Errorf("opening delta for %s: %w", record.Path, err)
	}
	defer deltaFile.Close()

	hasher := sigcache.NewBasisHasher()
	var pstats patch.Stats
	err = libsync.WriteFileAtomic(target, true, func(w io.Writer) error {
		var err error
		pstats, err = libsync.Patch(io.MultiWriter(w, hasher), deltaFile, basis)
		if err != nil {
			return err
		}
		if hasher.Sum() != wantNew {
			return fmt.Errorf("patched result for %s does not match the expected content identity", record.Path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("patching %s: %w", record.Path, err)
	}

	if record.Mode != 0 {
		if err := os.Chmod(target, fs.FileMode(record.Mode).Perm()); err != nil {
			return fmt.Errorf("setting mode on %s: %w", record.Path, err)
		}
	}
	if opts.PreserveTimes && record.ModTime != 0 {
		mtime := time.Unix(0, record.ModTime)
		if err := os.Chtimes(target, mtime, mtime); err != nil {
			return fmt.Errorf("setting times on %s: %w", record.Path, err)
		}
	}

	if record.Op == opCreate {
		stats.Created++
	} else {
		stats.Updated++
	}
	stats.LiteralBytes += pstats.LiteralBytes
	stats.CopyBytes += pstats.CopyBytes
	return nil
}

// asBasisID validates and converts a manifest identity field.
func asBasisID(b []byte) (sigcache.BasisID, error) {
	var id sigcache.BasisID
	if len(b) != len(id) {
		return id, fmt.Errorf("malformed content identity (%d bytes)", len(b))
	}
	copy(id[:], b)
	return id, nil
}
