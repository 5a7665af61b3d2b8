// Copyright 2026 The Rollsync Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/rollsync/rollsync/cmd/rollsync/cli"
	"github.com/rollsync/rollsync/lib/config"
	"github.com/rollsync/rollsync/lib/dirsync"
	"github.com/rollsync/rollsync/lib/sigcache"
)

func syncCommand() *cli.Command {
	var (
		configPath  string
		profileName string
		sig         sigParams
		comp        compressParam
		include     []string
		exclude     []string
		deleteExtra bool
		noTimes     bool
		noCache     bool
		dryRun      bool
		emitDir     string
		applyDir    string
		showStats   bool
		verbose     int
		flagSet     *pflag.FlagSet
	)

	return &cli.Command{
		Name:    "sync",
		Summary: "Mirror a directory tree using delta encoding",
		Usage:   "rollsync sync [flags] SOURCE DEST",
		Description: `Make DEST mirror SOURCE. Changed files are delta-encoded against
their destination version, so only changed regions are rewritten; new
files are copied whole; symlinks are recreated. Extraneous destination
entries are removed only with --delete.

With --emit-patchset, nothing is applied: the deltas and a manifest
are written to a directory that 'sync --apply-patchset' can later
replay onto another copy of the destination tree, verifying that each
file matches the basis the delta was computed against.

Settings come from the config file (--config, or ROLLSYNC_CONFIG),
refined by any flag set explicitly on the command line. --dry-run
prints the plan to stdout and writes nothing.`,
		Examples: []cli.Example{
			{
				Description: "Mirror a build tree, removing stale outputs",
				Command:     "rollsync sync --delete ./build /srv/deploy/build",
			},
			{
				Description: "Preview what a sync would do",
				Command:     "rollsync sync --dry-run ./build /srv/deploy/build",
			},
			{
				Description: "Ship compressed deltas instead of applying",
				Command:     "rollsync sync -z zstd --emit-patchset /tmp/patchset ./build /srv/deploy/build",
			},
			{
				Description: "Replay the patchset on the far side",
				Command:     "rollsync sync --apply-patchset /tmp/patchset /srv/deploy/build",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet = pflag.NewFlagSet("sync", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "",
				"config file (default: ROLLSYNC_CONFIG, else built-in defaults)")
			flagSet.StringVar(&profileName, "profile", "",
				"named profile from the config file")
			sig.addFlags(flagSet)
			comp.addFlags(flagSet)
			flagSet.StringArrayVar(&include, "include", nil,
				"glob of paths to sync (repeatable; default everything)")
			flagSet.StringArrayVar(&exclude, "exclude", nil,
				"glob of paths to skip (repeatable; wins over include)")
			flagSet.BoolVar(&deleteExtra, "delete", false,
				"remove destination entries absent from the source")
			flagSet.BoolVar(&noTimes, "no-preserve-times", false,
				"do not copy source modification times")
			flagSet.BoolVar(&noCache, "no-cache", false,
				"skip the signature cache")
			flagSet.BoolVarP(&dryRun, "dry-run", "n", false,
				"print the plan without writing")
			flagSet.StringVar(&emitDir, "emit-patchset", "",
				"write deltas and a manifest to this directory instead of applying")
			flagSet.StringVar(&applyDir, "apply-patchset", "",
				"replay a previously emitted patchset onto the destination")
			flagSet.BoolVar(&showStats, "stats", false,
				"print transfer totals to stderr")
			flagSet.CountVarP(&verbose, "verbose", "v",
				"log per-operation detail (repeat for per-file decisions)")
			return flagSet
		},
		Run: func(args []string) error {
			logger := cli.NewLogger(verbose)

			if emitDir != "" && applyDir != "" {
				return cli.Usagef("--emit-patchset and --apply-patchset are mutually exclusive")
			}

			cfg, err := loadConfig(configPath, profileName)
			if err != nil {
				return err
			}

			opts, err := resolveSyncOptions(cfg, flagSet, &sig, &comp,
				include, exclude, deleteExtra, noTimes, noCache)
			if err != nil {
				return err
			}
			opts.Logger = logger

			if applyDir != "" {
				if dryRun {
					return cli.Usagef("--dry-run is not supported with --apply-patchset")
				}
				if len(args) != 1 {
					return cli.Usagef("sync --apply-patchset takes the destination tree as its only argument, got %d", len(args))
				}
				stats, err := dirsync.ApplyPatchset(applyDir, args[0], opts)
				if err != nil {
					return err
				}
				if showStats || cli.Interactive() {
					printSyncStats(stats)
				}
				return nil
			}

			if len(args) != 2 {
				return cli.Usagef("sync takes SOURCE and DEST arguments, got %d", len(args))
			}
			source, dest := args[0], args[1]

			plan, err := dirsync.BuildPlan(source, dest, opts)
			if err != nil {
				return err
			}
			logger.Info("plan built",
				"source", source, "dest", dest,
				"entries", len(plan.Entries), "pending", plan.Pending())

			if dryRun {
				printPlan(plan)
				return nil
			}

			var stats dirsync.Stats
			if emitDir != "" {
				stats, err = plan.WritePatchset(emitDir)
			} else {
				stats, err = plan.Apply()
			}
			if err != nil {
				return err
			}

			if showStats || cli.Interactive() {
				printSyncStats(stats)
			}
			return nil
		},
	}
}

// resolveSyncOptions merges the configuration file into the sync
// flags: a flag the user set explicitly wins, anything else takes the
// config value. The merged result is validated once, here.
func resolveSyncOptions(cfg *config.Config, flagSet *pflag.FlagSet, sig *sigParams, comp *compressParam,
	include, exclude []string, deleteExtra, noTimes, noCache bool) (dirsync.Options, error) {

	if !flagSet.Changed("hash") && cfg.Defaults.Hash != "" {
		sig.hash = cfg.Defaults.Hash
	}
	if !flagSet.Changed("block-size") && cfg.Defaults.BlockLen != 0 {
		sig.blockSize = cfg.Defaults.BlockLen
	}
	if !flagSet.Changed("strong-size") && cfg.Defaults.StrongLen != 0 {
		sig.strongSize = cfg.Defaults.StrongLen
	}
	if !flagSet.Changed("compress") && cfg.Defaults.Compress != "" {
		comp.name = cfg.Defaults.Compress
	}
	if !flagSet.Changed("include") {
		include = cfg.Sync.Include
	}
	if !flagSet.Changed("exclude") {
		exclude = cfg.Sync.Exclude
	}
	if !flagSet.Changed("delete") {
		deleteExtra = cfg.Sync.Delete
	}

	sigOpts, err := sig.options()
	if err != nil {
		return dirsync.Options{}, err
	}
	mode, err := comp.mode()
	if err != nil {
		return dirsync.Options{}, err
	}

	opts := dirsync.Options{
		Signature:     sigOpts,
		Compress:      mode,
		Include:       include,
		Exclude:       exclude,
		Delete:        deleteExtra,
		PreserveTimes: cfg.Sync.PreserveTimes && !noTimes,
	}

	if cfg.Cache.Enabled && !noCache {
		cache, err := sigcache.Open(cfg.Cache.Dir)
		if err != nil {
			return dirsync.Options{}, err
		}
		opts.Cache = cache
	}
	return opts, nil
}

// printPlan writes the dry-run plan to stdout, one line per pending
// operation, followed by a totals line on stderr so stdout stays
// parseable.
func printPlan(plan *dirsync.Plan) {
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
	for _, entry := range plan.Entries {
		if entry.Action == dirsync.ActionUnchanged {
			continue
		}
		switch entry.Action {
		case dirsync.ActionSymlink:
			fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.Action, entry.Path, entry.LinkTarget)
		case dirsync.ActionCreate, dirsync.ActionUpdate:
			fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.Action, entry.Path, formatSize(entry.Size))
		default:
			fmt.Fprintf(tw, "%s\t%s\t\n", entry.Action, entry.Path)
		}
	}
	tw.Flush()
	fmt.Fprintf(os.Stderr, "plan: %d of %d entries need work\n",
		plan.Pending(), len(plan.Entries))
}
