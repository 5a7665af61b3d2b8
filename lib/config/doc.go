// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for rollsync.
//
// Configuration comes from a single file named by either the
// ROLLSYNC_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no ~/.config discovery and no automatic
// file search; when no file is named, built-in defaults apply. This
// keeps sync behavior deterministic and auditable, with no hidden
// overrides.
//
// The configuration file supports named profiles that override base
// values, selected at the command line with --profile. A backup job
// and an interactive sync can share one file and differ only where
// their profiles say so.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${ROLLSYNC_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Defaults, Cache, Sync
//   - [Default] -- returns a Config with built-in defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other rollsync packages. Fields that
// name hashes or compression are plain strings here; callers parse
// them with the owning package.
package config
