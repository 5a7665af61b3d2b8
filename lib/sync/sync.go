// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package sync composes the signature, delta, and patch primitives
// into whole-file operations.
//
// Three layers are provided. Stream operations ([Signature], [Delta],
// [Patch]) work on readers and writers and are what the CLI uses for
// stdin/stdout plumbing. File operations ([SignatureFile], [DeltaFile],
// [PatchFile]) add atomic output (temp file plus rename), overwrite
// protection, and optional compression envelopes. Byte one-shots
// ([SignatureBytes], [DeltaBytes], [PatchBytes]) serve callers with
// whole files already in memory.
//
// Readers of delta and signature inputs are envelope-aware throughout:
// a compressed file produced with a [CompressMode] is transparently
// unwrapped on the way back in.
package sync

import (
	"bytes"
	"fmt"
	"io"

	"github.com/rollsync/rollsync/lib/compress"
	"github.com/rollsync/rollsync/lib/delta"
	"github.com/rollsync/rollsync/lib/patch"
	"github.com/rollsync/rollsync/lib/signature"
)

// Signature generates the signature of basis and writes it to dst in
// wire format. The parsed signature is returned for callers that want
// block counts or sizes without reloading.
func Signature(dst io.Writer, basis io.Reader, opts signature.Options) (*signature.Signature, error) {
	sig, err := signature.Generate(basis, opts)
	if err != nil {
		return nil, err
	}
	if _, err := sig.WriteTo(dst); err != nil {
		return nil, err
	}
	return sig, nil
}

// Delta generates a delta transforming the signature's basis into the
// content read from src, writing it to dst.
func Delta(dst io.Writer, src io.Reader, sig *signature.Signature) (delta.Stats, error) {
	return delta.Generate(dst, src, signature.NewIndex(sig))
}

// Patch applies a delta stream against basis and writes the
// reconstructed file to dst. Compressed deltas are unwrapped
// transparently.
func Patch(dst io.Writer, deltaStream io.Reader, basis io.ReaderAt) (patch.Stats, error) {
	unwrapped, _, err := compress.NewReader(deltaStream)
	if err != nil {
		return patch.Stats{}, fmt.Errorf("opening delta stream: %w", err)
	}
	defer unwrapped.Close()
	return patch.Apply(dst, unwrapped, basis)
}

// LoadSignature parses a signature from r, unwrapping a compression
// envelope if present.
func LoadSignature(r io.Reader) (*signature.Signature, error) {
	unwrapped, _, err := compress.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening signature stream: %w", err)
	}
	defer unwrapped.Close()
	return signature.Load(unwrapped)
}

// SignatureBytes computes the serialized signature of an in-memory
// basis.
func SignatureBytes(basis []byte, opts signature.Options) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := Signature(&buf, bytes.NewReader(basis), opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeltaBytes computes the delta from the signature's basis to an
// in-memory new file.
func DeltaBytes(sig *signature.Signature, newFile []byte) ([]byte, delta.Stats, error) {
	var buf bytes.Buffer
	stats, err := Delta(&buf, bytes.NewReader(newFile), sig)
	if err != nil {
		return nil, stats, err
	}
	return buf.Bytes(), stats, nil
}

// PatchBytes applies an in-memory delta to an in-memory basis.
func PatchBytes(basis, deltaBytes []byte) ([]byte, patch.Stats, error) {
	var buf bytes.Buffer
	stats, err := Patch(&buf, bytes.NewReader(deltaBytes), bytes.NewReader(basis))
	if err != nil {
		return nil, stats, err
	}
	return buf.Bytes(), stats, nil
}
