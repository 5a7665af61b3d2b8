// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration.
//
// Rollsync uses two serialization formats with a clear boundary:
//
//   - CBOR for durable binary state: signature cache records, patchset
//     manifests, and any other on-disk metadata that sits next to the
//     raw signature/delta wire formats.
//   - JSON for human-facing surfaces: CLI --json output.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which keeps cache records and manifests byte-comparable.
//
// For buffer-oriented operations (records, small manifests):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (manifest entry sequences):
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// Types that only ever serialize as CBOR use `cbor` struct tags. Types
// that also appear in CLI --json output use `json` tags alone;
// fxamacker/cbor reads them as a fallback, so one tag controls field
// naming for both formats. Never put both tags on one field.
package codec
