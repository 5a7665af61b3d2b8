// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package sync

import (
	"io"

	"github.com/rollsync/rollsync/lib/signature"
)

// The pipe adapters present the three operations as readers for
// callers that pull rather than push: HTTP response bodies, pipelines
// feeding another encoder, anywhere an io.Reader is the contract. Each
// adapter drives the push-style operation in a goroutine through an
// [io.Pipe]; closing the returned reader tears the goroutine down, and
// an operation error surfaces on the next Read.

// NewSignatureReader returns a reader producing the serialized
// signature of basis.
func NewSignatureReader(basis io.Reader, opts signature.Options) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		sig, err := signature.Generate(basis, opts)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		_, err = sig.WriteTo(pw)
		pw.CloseWithError(err)
	}()
	return pr
}

// NewDeltaReader returns a reader producing the delta from the
// signature's basis to the content of src.
func NewDeltaReader(src io.Reader, sig *signature.Signature) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := Delta(pw, src, sig)
		pw.CloseWithError(err)
	}()
	return pr
}

// NewPatchReader returns a reader producing the file reconstructed by
// applying deltaStream to basis.
func NewPatchReader(deltaStream io.Reader, basis io.ReaderAt) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := Patch(pw, deltaStream, basis)
		pw.CloseWithError(err)
	}()
	return pr
}
