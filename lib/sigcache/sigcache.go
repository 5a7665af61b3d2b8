// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package sigcache caches basis signatures on disk.
//
// Signature generation reads the whole basis and hashes every block.
// When the same basis is synced repeatedly (directory sync, scheduled
// jobs), that work is identical every time, so the cache stores the
// serialized signature keyed by basis content identity plus generation
// options. Identity is content-addressed: a BLAKE3 keyed hash of the
// basis bytes, so renames and copies share cache entries and a
// modified basis can never serve a stale signature.
//
// On disk each entry is two files in a sharded directory layout:
// a zstd-enveloped signature and a CBOR metadata record. Writes go
// through a temp directory and rename, so readers never observe
// partial entries. Garbage collection is age-based over last-use
// times and serialized by an advisory file lock.
package sigcache

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/rollsync/rollsync/lib/codec"
	"github.com/rollsync/rollsync/lib/compress"
	"github.com/rollsync/rollsync/lib/signature"
	libsync "github.com/rollsync/rollsync/lib/sync"
)

// Directory names within the cache root.
const (
	sigDir = "sigs"
	tmpDir = "tmp"
)

// BasisID is the 32-byte BLAKE3 keyed hash identifying basis content.
type BasisID [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation keeps basis identities and entry keys from colliding with
// each other or with any other BLAKE3 use. The byte values are the
// ASCII domain name zero-padded to 32 bytes, which keeps them
// readable in hex dumps.
type domainKey [32]byte

var (
	basisDomainKey = domainKey{
		'r', 'o', 'l', 'l', 's', 'y', 'n', 'c', '.', 's', 'i', 'g', 'c', 'a', 'c', 'h',
		'e', '.', 'b', 'a', 's', 'i', 's', 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	entryDomainKey = domainKey{
		'r', 'o', 'l', 'l', 's', 'y', 'n', 'c', '.', 's', 'i', 'g', 'c', 'a', 'c', 'h',
		'e', '.', 'e', 'n', 't', 'r', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// String returns the hex form of the identity, the canonical spelling
// in records, logs, and CLI output.
func (id BasisID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseID parses a 64-character hex string into a BasisID.
func ParseID(hexString string) (BasisID, error) {
	var id BasisID
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return id, fmt.Errorf("parsing basis identity: %w", err)
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("basis identity is %d bytes, want %d", len(decoded), len(id))
	}
	copy(id[:], decoded)
	return id, nil
}

// HashBasis computes the content identity of a basis stream and the
// number of bytes read.
func HashBasis(r io.Reader) (BasisID, int64, error) {
	hasher := NewBasisHasher()
	n, err := io.Copy(hasher, r)
	if err != nil {
		return BasisID{}, n, fmt.Errorf("hashing basis content: %w", err)
	}
	return hasher.Sum(), n, nil
}

// BasisHasher computes a basis identity incrementally. It is an
// io.Writer, so content can be hashed while it streams somewhere else
// through an io.TeeReader or io.MultiWriter.
type BasisHasher struct {
	inner *blake3.Hasher
	n     int64
}

// NewBasisHasher returns a hasher for the basis identity domain.
func NewBasisHasher() *BasisHasher {
	return &BasisHasher{inner: newKeyedHasher(basisDomainKey)}
}

// Write feeds content into the hasher. It never fails.
func (h *BasisHasher) Write(p []byte) (int, error) {
	n, err := h.inner.Write(p)
	h.n += int64(n)
	return n, err
}

// Sum returns the identity of everything written so far.
func (h *BasisHasher) Sum() BasisID {
	var id BasisID
	copy(id[:], h.inner.Sum(nil))
	return id
}

// Size returns the number of bytes written so far.
func (h *BasisHasher) Size() int64 { return h.n }

// record is the CBOR metadata stored beside each cached signature.
type record struct {
	BasisID   []byte `cbor:"basis_id"`
	BasisSize int64  `cbor:"basis_size"`
	Magic     uint32 `cbor:"magic"`
	BlockLen  uint32 `cbor:"block_len"`
	StrongLen uint32 `cbor:"strong_len"`
	SigSize   int64  `cbor:"sig_size"`
	CreatedAt int64  `cbor:"created_at"`
}

// Cache is a signature cache rooted at a directory. It is safe for
// concurrent use by multiple processes: entries are immutable once
// renamed into place and GC holds an advisory lock.
type Cache struct {
	root string

	// now is the time source, overridable in tests.
	now func() time.Time
}

// Open creates a Cache rooted at the given directory, creating the
// directory structure if needed.
func Open(root string) (*Cache, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, sigDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
		}
	}
	return &Cache{root: root, now: time.Now}, nil
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// Get looks up a cached signature for the given basis identity and
// generation options. A missing entry returns ok=false with no error.
// A corrupt entry is removed and reported as a miss: the cache heals
// itself rather than failing the sync that hit it.
func (c *Cache) Get(id BasisID, opts signature.Options) (*signature.Signature, bool, error) {
	key := c.entryKey(id, opts)
	sigPath := c.sigPath(key)

	f, err := os.Open(sigPath)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("opening cached signature: %w", err)
	}
	defer f.Close()

	sig, err := libsync.LoadSignature(f)
	if err != nil {
		os.Remove(sigPath)
		os.Remove(c.recordPath(key))
		return nil, false, nil
	}

	// Touch the entry so age-based GC sees it as recently used.
	now := c.now()
	os.Chtimes(sigPath, now, now)

	return sig, true, nil
}

// Put stores a signature for the given basis identity. The entry key
// binds the generation options, so the same basis cached at two block
// lengths yields two entries.
func (c *Cache) Put(id BasisID, basisSize int64, sig *signature.Signature) error {
	key := c.entryKey(id, sig.Options())

	rec := record{
		BasisID:   id[:],
		BasisSize: basisSize,
		Magic:     uint32(sig.Magic),
		BlockLen:  sig.BlockLen,
		StrongLen: sig.StrongLen,
		SigSize:   sig.WireSize(),
		CreatedAt: c.now().Unix(),
	}
	recData, err := codec.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling cache record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.sigPath(key)), 0o755); err != nil {
		return fmt.Errorf("creating cache shard directory: %w", err)
	}

	// Record first, signature second: the signature file's presence is
	// what makes the entry live, so a crash in between leaves only an
	// orphan record for GC to sweep.
	if err := c.writeAtomic(c.recordPath(key), func(w io.Writer) error {
		_, err := w.Write(recData)
		return err
	}); err != nil {
		return fmt.Errorf("writing cache record: %w", err)
	}

	if err := c.writeAtomic(c.sigPath(key), func(w io.Writer) error {
		out, err := compress.NewWriter(w, compress.TagZstd)
		if err != nil {
			return err
		}
		if _, err := sig.WriteTo(out); err != nil {
			return err
		}
		return out.Close()
	}); err != nil {
		return fmt.Errorf("writing cached signature: %w", err)
	}

	return nil
}

// SignatureFor returns the signature of the basis file and its content
// identity, from cache when possible. On a miss the signature is
// generated, stored, and returned; hit reports which happened.
func (c *Cache) SignatureFor(basisPath string, opts signature.Options) (sig *signature.Signature, id BasisID, hit bool, err error) {
	f, err := os.Open(basisPath)
	if err != nil {
		return nil, BasisID{}, false, fmt.Errorf("opening basis file: %w", err)
	}
	defer f.Close()

	id, size, err := HashBasis(f)
	if err != nil {
		return nil, id, false, err
	}

	// Normalize options the way generation will, so the entry key
	// matches what Put stores.
	probe := opts
	if probe.Magic == 0 {
		probe.Magic = signature.MagicBLAKE2
	}
	if probe.BlockLen == 0 {
		probe.BlockLen = signature.DefaultBlockLen
	}
	if probe.StrongLen == 0 {
		probe.StrongLen = 32
		if probe.Magic == signature.MagicMD4 {
			probe.StrongLen = 16
		}
	}

	if sig, ok, err := c.Get(id, probe); err != nil {
		return nil, id, false, err
	} else if ok {
		return sig, id, true, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, id, false, fmt.Errorf("rewinding basis file: %w", err)
	}
	sig, err = signature.Generate(f, opts)
	if err != nil {
		return nil, id, false, err
	}

	if err := c.Put(id, size, sig); err != nil {
		return nil, id, false, err
	}
	return sig, id, false, nil
}

// entryKey derives the entry address from the basis identity and the
// generation options that shaped the signature.
func (c *Cache) entryKey(id BasisID, opts signature.Options) [32]byte {
	var material [44]byte
	copy(material[:32], id[:])
	binary.BigEndian.PutUint32(material[32:36], uint32(opts.Magic))
	binary.BigEndian.PutUint32(material[36:40], opts.BlockLen)
	binary.BigEndian.PutUint32(material[40:44], opts.StrongLen)

	hasher := newKeyedHasher(entryDomainKey)
	hasher.Write(material[:])
	var key [32]byte
	copy(key[:], hasher.Sum(nil))
	return key
}

// sigPath returns the sharded path of an entry's signature file:
// sigs/a3/f9/a3f9...sig.
func (c *Cache) sigPath(key [32]byte) string {
	h := hex.EncodeToString(key[:])
	return filepath.Join(c.root, sigDir, h[:2], h[2:4], h+".sig")
}

// recordPath returns the sharded path of an entry's metadata record.
func (c *Cache) recordPath(key [32]byte) string {
	h := hex.EncodeToString(key[:])
	return filepath.Join(c.root, sigDir, h[:2], h[2:4], h+".cbor")
}

// writeAtomic writes through the cache tmp directory and renames into
// place.
func (c *Cache) writeAtomic(path string, write func(io.Writer) error) error {
	tmpFile, err := os.CreateTemp(filepath.Join(c.root, tmpDir), "entry-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := write(tmpFile); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into cache: %w", err)
	}

	success = true
	return nil
}

// newKeyedHasher creates a BLAKE3 keyed hasher for a domain. NewKeyed
// only fails on a wrong key length, which the domainKey type rules
// out.
func newKeyedHasher(key domainKey) *blake3.Hasher {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("sigcache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}
