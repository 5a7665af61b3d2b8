// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package sync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rollsync/rollsync/lib/compress"
	"github.com/rollsync/rollsync/lib/delta"
	"github.com/rollsync/rollsync/lib/patch"
	"github.com/rollsync/rollsync/lib/signature"
)

// CompressMode is how file outputs choose their compression envelope:
// a fixed tag, or automatic selection by probing the payload.
type CompressMode struct {
	auto bool
	tag  compress.Tag
}

// CompressFixed returns a mode that always uses the given tag.
// [compress.TagNone] produces bare output with no envelope.
func CompressFixed(tag compress.Tag) CompressMode {
	return CompressMode{tag: tag}
}

// CompressAuto returns a mode that probes the payload and picks an
// algorithm per file.
func CompressAuto() CompressMode {
	return CompressMode{auto: true}
}

// ParseCompressMode parses "none", "lz4", "zstd", or "auto".
func ParseCompressMode(name string) (CompressMode, error) {
	if name == "auto" {
		return CompressAuto(), nil
	}
	tag, err := compress.ParseTag(name)
	if err != nil {
		return CompressMode{}, err
	}
	return CompressFixed(tag), nil
}

// String returns the flag spelling of the mode.
func (m CompressMode) String() string {
	if m.auto {
		return "auto"
	}
	return m.tag.String()
}

// NewWriter wraps w according to the mode. The returned writer must
// be closed to flush the envelope; with [compress.TagNone] it is a
// passthrough.
func (m CompressMode) NewWriter(w io.Writer) (io.WriteCloser, error) {
	if m.auto {
		return compress.NewAutoWriter(w), nil
	}
	return compress.NewWriter(w, m.tag)
}

// SignatureFile generates the signature of the basis file and writes
// it to sigPath atomically. Unless force is set, an existing output
// file is an error.
func SignatureFile(basisPath, sigPath string, opts signature.Options, mode CompressMode, force bool) (*signature.Signature, error) {
	basis, err := os.Open(basisPath)
	if err != nil {
		return nil, fmt.Errorf("opening basis file: %w", err)
	}
	defer basis.Close()

	var sig *signature.Signature
	err = WriteFileAtomic(sigPath, force, func(w io.Writer) error {
		out, err := mode.NewWriter(w)
		if err != nil {
			return err
		}
		if sig, err = Signature(out, basis, opts); err != nil {
			return err
		}
		return out.Close()
	})
	if err != nil {
		return nil, err
	}
	return sig, nil
}

// LoadSignatureFile reads and parses a signature file, unwrapping a
// compression envelope if present.
func LoadSignatureFile(sigPath string) (*signature.Signature, error) {
	f, err := os.Open(sigPath)
	if err != nil {
		return nil, fmt.Errorf("opening signature file: %w", err)
	}
	defer f.Close()
	return LoadSignature(f)
}

// DeltaFile generates the delta from the signature's basis to the new
// file and writes it to deltaPath atomically.
func DeltaFile(sigPath, newPath, deltaPath string, mode CompressMode, force bool) (delta.Stats, error) {
	sig, err := LoadSignatureFile(sigPath)
	if err != nil {
		return delta.Stats{}, err
	}

	newFile, err := os.Open(newPath)
	if err != nil {
		return delta.Stats{}, fmt.Errorf("opening new file: %w", err)
	}
	defer newFile.Close()

	var stats delta.Stats
	err = WriteFileAtomic(deltaPath, force, func(w io.Writer) error {
		out, err := mode.NewWriter(w)
		if err != nil {
			return err
		}
		if stats, err = Delta(out, newFile, sig); err != nil {
			return err
		}
		return out.Close()
	})
	return stats, err
}

// PatchFile applies a delta file to the basis file and writes the
// reconstructed file to outPath atomically. outPath may equal
// basisPath: the basis stays readable through its open handle while
// the temp file is written, so in-place patching is safe.
func PatchFile(basisPath, deltaPath, outPath string, force bool) (patch.Stats, error) {
	basis, err := os.Open(basisPath)
	if err != nil {
		return patch.Stats{}, fmt.Errorf("opening basis file: %w", err)
	}
	defer basis.Close()

	deltaFile, err := os.Open(deltaPath)
	if err != nil {
		return patch.Stats{}, fmt.Errorf("opening delta file: %w", err)
	}
	defer deltaFile.Close()

	// In-place patching replaces the output; the pre-check would
	// always fail against the basis itself.
	if outPath == basisPath {
		force = true
	}

	var stats patch.Stats
	err = WriteFileAtomic(outPath, force, func(w io.Writer) error {
		var err error
		stats, err = Patch(w, deltaFile, basis)
		return err
	})
	return stats, err
}

// WriteFileAtomic streams output into a temp file next to path and
// renames it into place, so readers never observe a partial file and
// failures leave any existing file untouched.
func WriteFileAtomic(path string, force bool, write func(io.Writer) error) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("output %s already exists (use force to overwrite)", path)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("checking output %s: %w", path, err)
		}
	}

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".rollsync-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmpFile.Name()

	// Clean up the temp file on any error path.
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

	// CreateTemp creates mode 0600; outputs are ordinary files.
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting output permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming output to %s: %w", path, err)
	}

	success = true
	return nil
}
