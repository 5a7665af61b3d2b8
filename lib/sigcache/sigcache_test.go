// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package sigcache

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/rollsync/rollsync/lib/signature"
)

func testBasis(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = seed + byte(i%251)
	}
	return data
}

func mustSignature(t *testing.T, basis []byte, opts signature.Options) *signature.Signature {
	t.Helper()
	sig, err := signature.Generate(bytes.NewReader(basis), opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return sig
}

func TestHashBasis(t *testing.T) {
	data := testBasis(10000, 3)

	id1, n, err := HashBasis(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HashBasis: %v", err)
	}
	if n != int64(len(data)) {
		t.Fatalf("HashBasis read %d bytes, want %d", n, len(data))
	}

	id2, _, err := HashBasis(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HashBasis again: %v", err)
	}
	if id1 != id2 {
		t.Fatal("identical content produced different identities")
	}

	data[5000] ^= 1
	id3, _, err := HashBasis(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HashBasis modified: %v", err)
	}
	if id1 == id3 {
		t.Fatal("modified content produced the same identity")
	}
}

func TestParseID(t *testing.T) {
	data := testBasis(100, 9)
	id, _, err := HashBasis(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HashBasis: %v", err)
	}

	parsed, err := ParseID(id.String())
	if err != nil {
		t.Fatalf("ParseID: %v", err)
	}
	if parsed != id {
		t.Fatalf("ParseID round trip: got %s, want %s", parsed, id)
	}

	if _, err := ParseID("abc"); err == nil {
		t.Fatal("ParseID accepted a short string")
	}
	if _, err := ParseID("zz"); err == nil {
		t.Fatal("ParseID accepted non-hex input")
	}
}

func TestPutGet(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	basis := testBasis(5000, 1)
	id, size, err := HashBasis(bytes.NewReader(basis))
	if err != nil {
		t.Fatalf("HashBasis: %v", err)
	}
	opts := signature.Options{Magic: signature.MagicBLAKE3, BlockLen: 512, StrongLen: 32}
	sig := mustSignature(t, basis, opts)

	if _, ok, err := cache.Get(id, opts); err != nil || ok {
		t.Fatalf("Get on empty cache: ok=%v err=%v", ok, err)
	}

	if err := cache.Put(id, size, sig); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := cache.Get(id, opts)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get missed after Put")
	}
	if !reflect.DeepEqual(got, sig) {
		t.Fatal("cached signature does not match the stored one")
	}

	// The entry key binds generation options. Same basis, different
	// block length, different entry.
	other := signature.Options{Magic: signature.MagicBLAKE3, BlockLen: 1024, StrongLen: 32}
	if _, ok, err := cache.Get(id, other); err != nil || ok {
		t.Fatalf("Get with different options: ok=%v err=%v", ok, err)
	}
}

func TestGetCorruptEntry(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	basis := testBasis(2000, 7)
	id, size, err := HashBasis(bytes.NewReader(basis))
	if err != nil {
		t.Fatalf("HashBasis: %v", err)
	}
	opts := signature.Options{Magic: signature.MagicMD4, BlockLen: 128, StrongLen: 16}
	if err := cache.Put(id, size, mustSignature(t, basis, opts)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	sigPath := cache.sigPath(cache.entryKey(id, opts))
	if err := os.WriteFile(sigPath, []byte("not a signature"), 0o644); err != nil {
		t.Fatalf("corrupting entry: %v", err)
	}

	if _, ok, err := cache.Get(id, opts); err != nil || ok {
		t.Fatalf("Get on corrupt entry: ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(sigPath); !os.IsNotExist(err) {
		t.Fatal("corrupt entry was not removed")
	}
}

func TestSignatureFor(t *testing.T) {
	dir := t.TempDir()
	cache, err := Open(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	basisPath := filepath.Join(dir, "basis")
	basis := testBasis(20000, 5)
	if err := os.WriteFile(basisPath, basis, 0o644); err != nil {
		t.Fatalf("writing basis: %v", err)
	}

	opts := signature.Options{Magic: signature.MagicBLAKE2, BlockLen: 1024, StrongLen: 32}

	wantID, _, err := HashBasis(bytes.NewReader(basis))
	if err != nil {
		t.Fatalf("HashBasis: %v", err)
	}

	sig1, id, hit, err := cache.SignatureFor(basisPath, opts)
	if err != nil {
		t.Fatalf("SignatureFor: %v", err)
	}
	if hit {
		t.Fatal("first SignatureFor reported a hit")
	}
	if id != wantID {
		t.Fatalf("SignatureFor identity = %s, want %s", id, wantID)
	}

	sig2, _, hit, err := cache.SignatureFor(basisPath, opts)
	if err != nil {
		t.Fatalf("SignatureFor again: %v", err)
	}
	if !hit {
		t.Fatal("second SignatureFor missed")
	}
	if !reflect.DeepEqual(sig1, sig2) {
		t.Fatal("cached signature differs from the generated one")
	}

	// Changing the basis changes its identity, so the stale entry is
	// never served.
	basis[0] ^= 0xff
	if err := os.WriteFile(basisPath, basis, 0o644); err != nil {
		t.Fatalf("rewriting basis: %v", err)
	}
	if _, _, hit, err := cache.SignatureFor(basisPath, opts); err != nil {
		t.Fatalf("SignatureFor after edit: %v", err)
	} else if hit {
		t.Fatal("modified basis hit the old cache entry")
	}
}

func TestSignatureForDefaultOptions(t *testing.T) {
	dir := t.TempDir()
	cache, err := Open(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	basisPath := filepath.Join(dir, "basis")
	if err := os.WriteFile(basisPath, testBasis(8000, 2), 0o644); err != nil {
		t.Fatalf("writing basis: %v", err)
	}

	if _, _, hit, err := cache.SignatureFor(basisPath, signature.Options{}); err != nil || hit {
		t.Fatalf("SignatureFor with defaults: hit=%v err=%v", hit, err)
	}

	// Zero options and their spelled-out equivalents address the same
	// entry.
	explicit := signature.Options{
		Magic:     signature.MagicBLAKE2,
		BlockLen:  signature.DefaultBlockLen,
		StrongLen: 32,
	}
	if _, _, hit, err := cache.SignatureFor(basisPath, explicit); err != nil {
		t.Fatalf("SignatureFor with explicit defaults: %v", err)
	} else if !hit {
		t.Fatal("explicit default options missed the cached entry")
	}
}

func TestBasisHasherMatchesHashBasis(t *testing.T) {
	data := testBasis(5000, 11)

	want, _, err := HashBasis(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("HashBasis: %v", err)
	}

	hasher := NewBasisHasher()
	// Write in uneven pieces; the identity must not depend on
	// chunking.
	for _, chunk := range [][]byte{data[:1], data[1:1700], data[1700:]} {
		if _, err := hasher.Write(chunk); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if got := hasher.Sum(); got != want {
		t.Fatalf("incremental identity = %s, want %s", got, want)
	}
	if hasher.Size() != int64(len(data)) {
		t.Fatalf("Size = %d, want %d", hasher.Size(), len(data))
	}
}

func TestList(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	basis := testBasis(3000, 4)
	id, size, err := HashBasis(bytes.NewReader(basis))
	if err != nil {
		t.Fatalf("HashBasis: %v", err)
	}
	opts := signature.Options{Magic: signature.MagicBLAKE3, BlockLen: 256, StrongLen: 32}
	sig := mustSignature(t, basis, opts)
	if err := cache.Put(id, size, sig); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, err := cache.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List returned %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.BasisID != id {
		t.Errorf("entry identity = %s, want %s", entry.BasisID, id)
	}
	if entry.BasisSize != size {
		t.Errorf("entry basis size = %d, want %d", entry.BasisSize, size)
	}
	if entry.BlockLen != 256 || entry.StrongLen != 32 {
		t.Errorf("entry options = %d/%d, want 256/32", entry.BlockLen, entry.StrongLen)
	}
	if entry.SigSize != sig.WireSize() {
		t.Errorf("entry sig size = %d, want %d", entry.SigSize, sig.WireSize())
	}
	if entry.StoredSize <= 0 {
		t.Errorf("entry stored size = %d, want > 0", entry.StoredSize)
	}
}

func TestGC(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	base := time.Now()
	cache.now = func() time.Time { return base }

	put := func(seed byte) (BasisID, signature.Options) {
		t.Helper()
		basis := testBasis(2000, seed)
		id, size, err := HashBasis(bytes.NewReader(basis))
		if err != nil {
			t.Fatalf("HashBasis: %v", err)
		}
		opts := signature.Options{Magic: signature.MagicMD4, BlockLen: 128, StrongLen: 16}
		if err := cache.Put(id, size, mustSignature(t, basis, opts)); err != nil {
			t.Fatalf("Put: %v", err)
		}
		return id, opts
	}

	oldID, oldOpts := put(10)
	freshID, freshOpts := put(20)

	// Age the first entry past the cutoff.
	oldSig := cache.sigPath(cache.entryKey(oldID, oldOpts))
	stale := base.Add(-2 * time.Hour)
	if err := os.Chtimes(oldSig, stale, stale); err != nil {
		t.Fatalf("aging entry: %v", err)
	}

	stats, err := cache.GC(time.Hour)
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if stats.Removed != 1 || stats.Entries != 1 {
		t.Fatalf("GC stats = %+v, want 1 removed and 1 left", stats)
	}
	if stats.FreedBytes <= 0 {
		t.Fatalf("GC freed %d bytes, want > 0", stats.FreedBytes)
	}

	if _, ok, _ := cache.Get(oldID, oldOpts); ok {
		t.Fatal("stale entry survived GC")
	}
	if _, ok, _ := cache.Get(freshID, freshOpts); !ok {
		t.Fatal("fresh entry did not survive GC")
	}

	// Get touches entries, so move time forward and purge everything.
	cache.now = func() time.Time { return base.Add(time.Minute) }
	stats, err = cache.GC(0)
	if err != nil {
		t.Fatalf("GC purge: %v", err)
	}
	if stats.Removed != 1 || stats.Entries != 0 {
		t.Fatalf("purge stats = %+v, want 1 removed and 0 left", stats)
	}
}

func TestGCOrphans(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	basis := testBasis(2000, 30)
	id, size, err := HashBasis(bytes.NewReader(basis))
	if err != nil {
		t.Fatalf("HashBasis: %v", err)
	}
	opts := signature.Options{Magic: signature.MagicMD4, BlockLen: 128, StrongLen: 16}
	if err := cache.Put(id, size, mustSignature(t, basis, opts)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Simulate a Put that wrote its record but crashed before the
	// signature landed.
	key := cache.entryKey(id, opts)
	if err := os.Remove(cache.sigPath(key)); err != nil {
		t.Fatalf("removing signature: %v", err)
	}

	// A stale temp file from another crashed writer.
	tmpPath := filepath.Join(cache.Root(), tmpDir, "entry-crashed")
	if err := os.WriteFile(tmpPath, []byte("partial"), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	stale := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(tmpPath, stale, stale); err != nil {
		t.Fatalf("aging temp file: %v", err)
	}

	stats, err := cache.GC(time.Hour)
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if stats.Orphans != 2 {
		t.Fatalf("GC removed %d orphans, want 2", stats.Orphans)
	}
	if _, err := os.Stat(cache.recordPath(key)); !os.IsNotExist(err) {
		t.Fatal("orphan record survived GC")
	}
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Fatal("stale temp file survived GC")
	}
}
