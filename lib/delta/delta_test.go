// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package delta

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand"
	"testing"

	"github.com/rollsync/rollsync/lib/command"
	"github.com/rollsync/rollsync/lib/signature"
)

// goldenBasis/goldenNew/goldenDelta pin the generator against rdiff
// output (block length 10, strong-hash length 5, MD4): one literal for
// the changed prefix, one merged copy for the rest, END.
var (
	goldenBasis = []byte("this is a string to be tested")
	goldenNew   = []byte("this is another string to be tested")

	goldenDelta = []byte{
		0x72, 0x73, 0x02, 0x36, // delta magic
		0x41, 0x10, // LITERAL_N1, length 16
		't', 'h', 'i', 's', ' ', 'i', 's', ' ',
		'a', 'n', 'o', 't', 'h', 'e', 'r', ' ',
		0x45, 0x0a, 0x13, // COPY_N1_N1, start 10, length 19
		0x00, // END
	}
)

func goldenIndex(t *testing.T) *signature.Index {
	t.Helper()
	sig, err := signature.Generate(bytes.NewReader(goldenBasis), signature.Options{
		Magic:     signature.MagicMD4,
		BlockLen:  10,
		StrongLen: 5,
	})
	if err != nil {
		t.Fatalf("Generate signature: %v", err)
	}
	return signature.NewIndex(sig)
}

// applyDelta is the test oracle: a minimal command interpreter that
// reconstructs the new file from basis plus delta.
func applyDelta(t *testing.T, basis, delta []byte) []byte {
	t.Helper()

	r := bytes.NewReader(delta)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		t.Fatalf("reading delta magic: %v", err)
	}
	if got := binary.BigEndian.Uint32(magic[:]); got != command.DeltaMagic {
		t.Fatalf("delta magic = %#08x, want %#08x", got, command.DeltaMagic)
	}

	var out bytes.Buffer
	for {
		hdr, err := command.ReadHeader(r)
		if err != nil {
			t.Fatalf("reading command: %v", err)
		}
		switch hdr.Kind {
		case command.End:
			if r.Len() != 0 {
				t.Fatalf("%d bytes after END command", r.Len())
			}
			return out.Bytes()
		case command.Literal:
			if _, err := io.CopyN(&out, r, int64(hdr.Length)); err != nil {
				t.Fatalf("reading literal payload: %v", err)
			}
		case command.Copy:
			end := hdr.Start + hdr.Length
			if end > uint64(len(basis)) {
				t.Fatalf("copy [%d, %d) outside basis of %d bytes", hdr.Start, end, len(basis))
			}
			out.Write(basis[hdr.Start:end])
		}
	}
}

func TestGenerateGolden(t *testing.T) {
	var buf bytes.Buffer
	stats, err := Generate(&buf, bytes.NewReader(goldenNew), goldenIndex(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), goldenDelta) {
		t.Errorf("delta bytes:\n got %x\nwant %x", buf.Bytes(), goldenDelta)
	}

	want := Stats{
		LiteralBytes:    16,
		CopyBytes:       19,
		LiteralCommands: 1,
		CopyCommands:    1,
		WireBytes:       int64(len(goldenDelta)),
	}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestGenerateIdenticalFiles(t *testing.T) {
	// All three blocks match and their copies merge into one command
	// covering the whole basis.
	var buf bytes.Buffer
	stats, err := Generate(&buf, bytes.NewReader(goldenBasis), goldenIndex(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := []byte{
		0x72, 0x73, 0x02, 0x36,
		0x45, 0x00, 0x1d, // COPY start 0, length 29
		0x00,
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("delta bytes = %x, want %x", buf.Bytes(), want)
	}
	if stats.CopyCommands != 1 || stats.LiteralCommands != 0 {
		t.Errorf("stats = %+v, want exactly one copy command", stats)
	}
}

func TestGenerateEmptyInput(t *testing.T) {
	var buf bytes.Buffer
	stats, err := Generate(&buf, bytes.NewReader(nil), goldenIndex(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := []byte{0x72, 0x73, 0x02, 0x36, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("delta bytes = %x, want %x (magic + END)", buf.Bytes(), want)
	}
	if stats.LiteralBytes != 0 || stats.CopyBytes != 0 {
		t.Errorf("stats = %+v, want all zero", stats)
	}
}

func TestGenerateEmptyBasis(t *testing.T) {
	sig, err := signature.Generate(bytes.NewReader(nil), signature.Options{BlockLen: 10})
	if err != nil {
		t.Fatalf("Generate signature: %v", err)
	}

	var buf bytes.Buffer
	stats, err := Generate(&buf, bytes.NewReader(goldenNew), signature.NewIndex(sig))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if stats.CopyBytes != 0 {
		t.Errorf("CopyBytes = %d against empty basis, want 0", stats.CopyBytes)
	}
	if got := applyDelta(t, nil, buf.Bytes()); !bytes.Equal(got, goldenNew) {
		t.Errorf("applied delta = %q, want %q", got, goldenNew)
	}
}

func TestGenerateMutations(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	basis := make([]byte, 10240)
	rng.Read(basis)

	tests := []struct {
		name string
		new  func() []byte
	}{
		{"insert at front", func() []byte {
			return append([]byte("wedge"), basis...)
		}},
		{"insert in middle", func() []byte {
			out := append([]byte{}, basis[:5000]...)
			out = append(out, []byte("inserted run of bytes")...)
			return append(out, basis[5000:]...)
		}},
		{"delete a range", func() []byte {
			return append(append([]byte{}, basis[:3000]...), basis[4000:]...)
		}},
		{"replace a range", func() []byte {
			out := append([]byte{}, basis[:7000]...)
			out = append(out, bytes.Repeat([]byte{0xEE}, 512)...)
			return append(out, basis[7512:]...)
		}},
		{"swap halves", func() []byte {
			return append(append([]byte{}, basis[5120:]...), basis[:5120]...)
		}},
		{"truncate to prefix", func() []byte {
			return append([]byte{}, basis[:2500]...)
		}},
		{"append suffix", func() []byte {
			return append(append([]byte{}, basis...), []byte("trailing addition")...)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := signature.Generate(bytes.NewReader(basis), signature.Options{
				Magic:    signature.MagicBLAKE2,
				BlockLen: 128,
			})
			if err != nil {
				t.Fatalf("Generate signature: %v", err)
			}

			newFile := tt.new()
			var buf bytes.Buffer
			stats, err := Generate(&buf, bytes.NewReader(newFile), signature.NewIndex(sig))
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}

			if got := applyDelta(t, basis, buf.Bytes()); !bytes.Equal(got, newFile) {
				t.Fatalf("applied delta does not reproduce the new file (got %d bytes, want %d)",
					len(got), len(newFile))
			}
			if stats.CopyBytes == 0 {
				t.Error("CopyBytes = 0, want basis matches for a light mutation")
			}
			if got := stats.LiteralBytes + stats.CopyBytes; got != int64(len(newFile)) {
				t.Errorf("LiteralBytes+CopyBytes = %d, want %d", got, len(newFile))
			}
		})
	}
}

func TestGenerateLiteralSplit(t *testing.T) {
	// Unmatched input longer than the literal buffer must split across
	// several literal commands, the first exactly at the cap.
	rng := rand.New(rand.NewSource(12))
	basis := make([]byte, 4096)
	rng.Read(basis)
	newFile := make([]byte, maxLiteral+4464)
	rng.Read(newFile)

	sig, err := signature.Generate(bytes.NewReader(basis), signature.Options{BlockLen: 512})
	if err != nil {
		t.Fatalf("Generate signature: %v", err)
	}

	var buf bytes.Buffer
	stats, err := Generate(&buf, bytes.NewReader(newFile), signature.NewIndex(sig))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if stats.LiteralCommands < 2 {
		t.Errorf("LiteralCommands = %d, want at least 2", stats.LiteralCommands)
	}

	r := bytes.NewReader(buf.Bytes()[4:])
	hdr, err := command.ReadHeader(r)
	if err != nil {
		t.Fatalf("reading first command: %v", err)
	}
	if hdr.Kind != command.Literal || hdr.Length != maxLiteral {
		t.Errorf("first command = %v len %d, want LITERAL len %d", hdr.Kind, hdr.Length, maxLiteral)
	}

	if got := applyDelta(t, basis, buf.Bytes()); !bytes.Equal(got, newFile) {
		t.Error("applied delta does not reproduce the new file")
	}
}

func TestGenerateInputSmallerThanBlock(t *testing.T) {
	var buf bytes.Buffer
	_, err := Generate(&buf, bytes.NewReader([]byte("tiny")), goldenIndex(t))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := applyDelta(t, goldenBasis, buf.Bytes()); !bytes.Equal(got, []byte("tiny")) {
		t.Errorf("applied delta = %q, want %q", got, "tiny")
	}
}

func BenchmarkGenerate(b *testing.B) {
	rng := rand.New(rand.NewSource(13))
	basis := make([]byte, 1<<20)
	rng.Read(basis)

	// A mid-file edit leaves long matched runs on both sides.
	newFile := append([]byte{}, basis[:512<<10]...)
	newFile = append(newFile, []byte("edited")...)
	newFile = append(newFile, basis[512<<10:]...)

	sig, err := signature.Generate(bytes.NewReader(basis), signature.Options{})
	if err != nil {
		b.Fatal(err)
	}
	idx := signature.NewIndex(sig)

	b.SetBytes(int64(len(newFile)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Generate(io.Discard, bytes.NewReader(newFile), idx); err != nil {
			b.Fatal(err)
		}
	}
}
