// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for rollsync.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Defaults configures signature and delta generation.
	Defaults DefaultsConfig `yaml:"defaults"`

	// Cache configures the signature cache.
	Cache CacheConfig `yaml:"cache"`

	// Sync configures directory synchronization.
	Sync SyncConfig `yaml:"sync"`

	// Profiles contains named override sections, selected with the
	// --profile flag. A profile overrides base values; anything it
	// leaves out keeps the base setting.
	Profiles map[string]*Profile `yaml:"profiles,omitempty"`
}

// Profile contains fields that can be overridden per profile.
type Profile struct {
	Defaults *DefaultsConfig `yaml:"defaults,omitempty"`
	Cache    *CacheConfig    `yaml:"cache,omitempty"`
	Sync     *SyncConfig     `yaml:"sync,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for rollsync state.
	Root string `yaml:"root"`
}

// DefaultsConfig configures signature and delta generation.
type DefaultsConfig struct {
	// Hash is the strong hash used in signatures.
	// Values: "md4", "blake2", "blake3"
	// Default: blake2
	Hash string `yaml:"hash"`

	// BlockLen is the signature block length in bytes.
	// Default: 2048
	BlockLen uint32 `yaml:"block_len"`

	// StrongLen truncates stored strong hashes to this many bytes.
	// Zero keeps the full hash width.
	StrongLen uint32 `yaml:"strong_len"`

	// Compress selects the compression applied to signature and delta
	// files. Values: "none", "lz4", "zstd", "auto"
	// Default: none
	Compress string `yaml:"compress"`
}

// CacheConfig configures the signature cache.
type CacheConfig struct {
	// Enabled turns the signature cache on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Dir is the cache directory.
	// Default: ${ROLLSYNC_ROOT}/sigcache
	Dir string `yaml:"dir"`

	// MaxAge is how long unused cache entries are kept, as a Go
	// duration string.
	// Default: 720h
	MaxAge string `yaml:"max_age"`
}

// SyncConfig configures directory synchronization.
type SyncConfig struct {
	// Include lists glob patterns matched against slash-separated
	// paths relative to the tree root. When non-empty, only matching
	// files are synced.
	Include []string `yaml:"include,omitempty"`

	// Exclude lists glob patterns matched the same way. Matching
	// entries are skipped; exclude wins over include.
	Exclude []string `yaml:"exclude,omitempty"`

	// Delete removes destination entries that no longer exist in the
	// source tree.
	// Default: false
	Delete bool `yaml:"delete"`

	// PreserveTimes copies source modification times to synced files.
	// Default: true
	PreserveTimes bool `yaml:"preserve_times"`
}

// Default returns the default configuration.
// These defaults make rollsync usable with no config file at all;
// a file refines them rather than being required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "rollsync")

	return &Config{
		Paths: PathsConfig{
			Root: defaultRoot,
		},
		Defaults: DefaultsConfig{
			Hash:     "blake2",
			BlockLen: 2048,
			Compress: "none",
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     filepath.Join(defaultRoot, "sigcache"),
			MaxAge:  "720h",
		},
		Sync: SyncConfig{
			Delete:        false,
			PreserveTimes: true,
		},
	}
}

// Load loads configuration from the ROLLSYNC_CONFIG environment
// variable, falling back to defaults when it is not set.
//
// Unlike most tools there is no ~/.config discovery: configuration
// comes from exactly one file, named explicitly, or from built-in
// defaults. This keeps sync behavior deterministic and auditable.
func Load() (*Config, error) {
	configPath := os.Getenv("ROLLSYNC_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values. The only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Strict decoding: a misspelled key should fail loudly, not
	// silently fall back to a default.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// Profile returns a copy of the configuration with the named profile's
// overrides applied. An empty name returns the configuration as is.
func (c *Config) Profile(name string) (*Config, error) {
	if name == "" {
		return c, nil
	}
	p, ok := c.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile %q not defined in configuration", name)
	}

	out := *c

	if p.Defaults != nil {
		if p.Defaults.Hash != "" {
			out.Defaults.Hash = p.Defaults.Hash
		}
		if p.Defaults.BlockLen != 0 {
			out.Defaults.BlockLen = p.Defaults.BlockLen
		}
		if p.Defaults.StrongLen != 0 {
			out.Defaults.StrongLen = p.Defaults.StrongLen
		}
		if p.Defaults.Compress != "" {
			out.Defaults.Compress = p.Defaults.Compress
		}
	}

	if p.Cache != nil {
		// Enabled is a bool, so we always apply it from the profile.
		out.Cache.Enabled = p.Cache.Enabled
		if p.Cache.Dir != "" {
			out.Cache.Dir = p.Cache.Dir
		}
		if p.Cache.MaxAge != "" {
			out.Cache.MaxAge = p.Cache.MaxAge
		}
	}

	if p.Sync != nil {
		// Bools are always applied from the profile.
		out.Sync.Delete = p.Sync.Delete
		out.Sync.PreserveTimes = p.Sync.PreserveTimes
		if len(p.Sync.Include) != 0 {
			out.Sync.Include = p.Sync.Include
		}
		if len(p.Sync.Exclude) != 0 {
			out.Sync.Exclude = p.Sync.Exclude
		}
	}

	out.expandVariables()
	return &out, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"ROLLSYNC_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["ROLLSYNC_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Cache.Dir = expandVars(c.Cache.Dir, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	hashValues := []string{"md4", "blake2", "blake3"}
	if !contains(hashValues, c.Defaults.Hash) {
		errs = append(errs, fmt.Errorf("defaults.hash must be one of: %v", hashValues))
	}

	if c.Defaults.BlockLen == 0 {
		errs = append(errs, fmt.Errorf("defaults.block_len must be positive"))
	}

	maxStrong := uint32(32)
	if c.Defaults.Hash == "md4" {
		maxStrong = 16
	}
	if c.Defaults.StrongLen > maxStrong {
		errs = append(errs, fmt.Errorf("defaults.strong_len %d exceeds %s hash width %d",
			c.Defaults.StrongLen, c.Defaults.Hash, maxStrong))
	}

	compressValues := []string{"none", "lz4", "zstd", "auto"}
	if !contains(compressValues, c.Defaults.Compress) {
		errs = append(errs, fmt.Errorf("defaults.compress must be one of: %v", compressValues))
	}

	if c.Cache.Enabled && c.Cache.Dir == "" {
		errs = append(errs, fmt.Errorf("cache.dir is required when the cache is enabled"))
	}
	if c.Cache.MaxAge != "" {
		if _, err := time.ParseDuration(c.Cache.MaxAge); err != nil {
			errs = append(errs, fmt.Errorf("cache.max_age: %w", err))
		}
	}

	for _, pattern := range c.Sync.Include {
		if _, err := filepath.Match(pattern, ""); err != nil {
			errs = append(errs, fmt.Errorf("sync.include pattern %q: %w", pattern, err))
		}
	}
	for _, pattern := range c.Sync.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			errs = append(errs, fmt.Errorf("sync.exclude pattern %q: %w", pattern, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// CacheMaxAge returns the parsed cache retention duration.
func (c *Config) CacheMaxAge() (time.Duration, error) {
	if c.Cache.MaxAge == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Cache.MaxAge)
	if err != nil {
		return 0, fmt.Errorf("cache.max_age: %w", err)
	}
	return d, nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Cache.Dir,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
