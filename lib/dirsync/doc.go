// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package dirsync mirrors directory trees using delta encoding.
//
// Synchronization is a two-step affair. [BuildPlan] walks the source
// and destination trees and classifies every entry: files to create,
// files to update, directories and symlinks to make, and, when
// deletion is enabled, destination entries with no source counterpart.
// The plan is a plain value; building it writes nothing, which is all
// a dry run is.
//
// A plan can then be executed two ways:
//
//   - [Plan.Apply] mirrors the source onto the destination in place.
//     Changed files are not copied wholesale: the destination file
//     serves as the delta basis (its signature coming from a
//     [sigcache.Cache] when one is configured), the source is delta
//     encoded against it, and the delta is patched onto a temp file
//     that is renamed into place.
//   - [Plan.WritePatchset] writes the changes to a portable directory
//     instead: one delta file per changed or new file plus a CBOR
//     manifest of paths, sizes, and BLAKE3 content identities.
//     [ApplyPatchset] replays such a directory onto a tree elsewhere,
//     refusing to patch any file whose content no longer matches the
//     identity the patchset was built against and verifying every
//     patched result.
//
// Change detection is the classic quick check: a file is considered
// unchanged when size and modification time both match. With
// Options.PreserveTimes disabled, times never match and every file is
// re-encoded on every run.
//
// Include and exclude patterns are matched with filepath.Match
// against the slash-separated path relative to the tree root, and
// against the entry's base name. Include patterns filter files and
// symlinks only; directories are always traversed. Excluded entries
// are invisible: they are never synced and never deleted.
//
// Symlinks are recreated with their literal targets, never followed.
// Device nodes, sockets, and other special files are skipped.
package dirsync
