// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package sigcache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rollsync/rollsync/lib/codec"
)

// ListEntry describes one cache entry for inspection.
type ListEntry struct {
	BasisID    BasisID
	BasisSize  int64
	Magic      uint32
	BlockLen   uint32
	StrongLen  uint32
	SigSize    int64
	StoredSize int64
	CreatedAt  time.Time
	LastUsed   time.Time
}

// List returns all cache entries, in no particular order. Entries
// whose record or signature file is missing are skipped; GC cleans
// those up.
func (c *Cache) List() ([]ListEntry, error) {
	var entries []ListEntry
	err := filepath.WalkDir(filepath.Join(c.root, sigDir), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".cbor") {
			return nil
		}

		recData, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var rec record
		if err := codec.Unmarshal(recData, &rec); err != nil {
			return nil
		}

		sigInfo, err := os.Stat(strings.TrimSuffix(path, ".cbor") + ".sig")
		if err != nil {
			return nil
		}

		var id BasisID
		copy(id[:], rec.BasisID)
		entries = append(entries, ListEntry{
			BasisID:    id,
			BasisSize:  rec.BasisSize,
			Magic:      rec.Magic,
			BlockLen:   rec.BlockLen,
			StrongLen:  rec.StrongLen,
			SigSize:    rec.SigSize,
			StoredSize: sigInfo.Size(),
			CreatedAt:  time.Unix(rec.CreatedAt, 0),
			LastUsed:   sigInfo.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking cache: %w", err)
	}
	return entries, nil
}

// GCStats reports what a garbage collection pass did.
type GCStats struct {
	// Entries is the number of live entries left after the pass.
	Entries int
	// Removed is the number of entries deleted for age.
	Removed int
	// Orphans is the number of stray files deleted, such as records
	// whose signature never landed.
	Orphans int
	// FreedBytes is the total size of everything deleted.
	FreedBytes int64
}

// GC removes entries whose last use is older than maxAge, along with
// any orphaned files from interrupted writes. A maxAge of zero purges
// the whole cache. Concurrent GC passes are serialized by an advisory
// lock; Get and Put need no lock because entries are immutable and
// renamed into place.
func (c *Cache) GC(maxAge time.Duration) (GCStats, error) {
	var stats GCStats

	lock, err := os.OpenFile(filepath.Join(c.root, "gc.lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return stats, fmt.Errorf("opening gc lock: %w", err)
	}
	defer lock.Close()
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX); err != nil {
		return stats, fmt.Errorf("acquiring gc lock: %w", err)
	}
	defer unix.Flock(int(lock.Fd()), unix.LOCK_UN)

	cutoff := c.now().Add(-maxAge)

	err = filepath.WalkDir(filepath.Join(c.root, sigDir), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, ".sig"):
			info, err := d.Info()
			if err != nil {
				return nil
			}
			stats.Entries++
			if info.ModTime().After(cutoff) {
				return nil
			}
			recPath := strings.TrimSuffix(path, ".sig") + ".cbor"
			freed := info.Size()
			if recInfo, err := os.Stat(recPath); err == nil {
				freed += recInfo.Size()
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("removing stale entry: %w", err)
			}
			os.Remove(recPath)
			stats.Entries--
			stats.Removed++
			stats.FreedBytes += freed

		case strings.HasSuffix(path, ".cbor"):
			// Records are swept with their signature above; one on its
			// own is the leftover of an interrupted Put.
			if _, err := os.Stat(strings.TrimSuffix(path, ".cbor") + ".sig"); os.IsNotExist(err) {
				if info, err := d.Info(); err == nil {
					stats.FreedBytes += info.Size()
				}
				os.Remove(path)
				stats.Orphans++
			}

		default:
			// Unknown file in the cache tree. Leave it alone.
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("collecting cache: %w", err)
	}

	// Stale temp files from crashed writers.
	tmpFiles, err := os.ReadDir(filepath.Join(c.root, tmpDir))
	if err != nil {
		return stats, fmt.Errorf("reading temp directory: %w", err)
	}
	for _, entry := range tmpFiles {
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(c.root, tmpDir, entry.Name())) == nil {
			stats.Orphans++
			stats.FreedBytes += info.Size()
		}
	}

	return stats, nil
}
