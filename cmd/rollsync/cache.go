// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/rollsync/rollsync/cmd/rollsync/cli"
	"github.com/rollsync/rollsync/lib/sigcache"
)

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:    "cache",
		Summary: "Inspect and prune the signature cache",
		Description: `The signature cache keeps generated basis signatures keyed by
content, so repeated syncs skip re-hashing unchanged files. Entries
expire by age; gc removes expired entries and any debris from
interrupted writes.`,
		Subcommands: []*cli.Command{
			cacheStatusCommand(),
			cacheGCCommand(),
		},
	}
}

func cacheStatusCommand() *cli.Command {
	var (
		configPath  string
		profileName string
	)

	return &cli.Command{
		Name:    "status",
		Summary: "Show cache location, entry count, and sizes",
		Usage:   "rollsync cache status [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "",
				"config file (default: ROLLSYNC_CONFIG, else built-in defaults)")
			flagSet.StringVar(&profileName, "profile", "",
				"named profile from the config file")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Usagef("cache status takes no arguments")
			}

			cfg, err := loadConfig(configPath, profileName)
			if err != nil {
				return err
			}

			cache, err := sigcache.Open(cfg.Cache.Dir)
			if err != nil {
				return err
			}
			entries, err := cache.List()
			if err != nil {
				return err
			}

			var stored, covered int64
			var oldest time.Time
			for _, entry := range entries {
				stored += entry.StoredSize
				covered += entry.BasisSize
				if oldest.IsZero() || entry.LastUsed.Before(oldest) {
					oldest = entry.LastUsed
				}
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(tw, "Location:\t%s\n", cache.Root())
			fmt.Fprintf(tw, "Entries:\t%d\n", len(entries))
			fmt.Fprintf(tw, "Stored signatures:\t%s\n", formatSize(stored))
			fmt.Fprintf(tw, "Basis bytes covered:\t%s\n", formatSize(covered))
			if !oldest.IsZero() {
				fmt.Fprintf(tw, "Least recently used:\t%s\n", oldest.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func cacheGCCommand() *cli.Command {
	var (
		configPath  string
		profileName string
		maxAge      time.Duration
		flagSet     *pflag.FlagSet
	)

	return &cli.Command{
		Name:    "gc",
		Summary: "Remove expired cache entries",
		Usage:   "rollsync cache gc [flags]",
		Description: `Remove cache entries whose last use is older than the retention
period, along with orphaned files from interrupted writes. The period
comes from cache.max_age in the config, overridable with --max-age;
zero purges everything.`,
		Examples: []cli.Example{
			{
				Description: "Prune with the configured retention",
				Command:     "rollsync cache gc",
			},
			{
				Description: "Purge the cache completely",
				Command:     "rollsync cache gc --max-age 0s",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet = pflag.NewFlagSet("gc", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "",
				"config file (default: ROLLSYNC_CONFIG, else built-in defaults)")
			flagSet.StringVar(&profileName, "profile", "",
				"named profile from the config file")
			flagSet.DurationVar(&maxAge, "max-age", 0,
				"retention period override (0s purges everything)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return cli.Usagef("cache gc takes no arguments")
			}

			cfg, err := loadConfig(configPath, profileName)
			if err != nil {
				return err
			}

			age := maxAge
			if !flagSet.Changed("max-age") {
				if age, err = cfg.CacheMaxAge(); err != nil {
					return err
				}
			}

			cache, err := sigcache.Open(cfg.Cache.Dir)
			if err != nil {
				return err
			}
			stats, err := cache.GC(age)
			if err != nil {
				return err
			}

			fmt.Printf("removed %d expired entries and %d orphans, freed %s; %d entries remain\n",
				stats.Removed, stats.Orphans, formatSize(stats.FreedBytes), stats.Entries)
			return nil
		},
	}
}
