package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpack/pkg/index"
	"github.com/jingkaihe/promptpack/pkg/lint"
	"github.com/jingkaihe/promptpack/pkg/presenter"
	"github.com/jingkaihe/promptpack/pkg/watcher"
	"github.com/jingkaihe/promptpack/pkg/workspace"
)

// WatchConfig holds configuration for the watch command
type WatchConfig struct {
	DebounceTime int // milliseconds
	Sync         bool
	Quiet        bool
}

// NewWatchConfig creates a new WatchConfig with default values
func NewWatchConfig() *WatchConfig {
	return &WatchConfig{
		DebounceTime: 500,
	}
}

// Validate validates the WatchConfig and returns an error if invalid
func (c *WatchConfig) Validate() error {
	if c.DebounceTime < 0 {
		return errors.Errorf("debounce time cannot be negative: %d", c.DebounceTime)
	}
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the workspace roots and re-lint on change",
	Long: `Continuously monitor the workspace roots and re-run the linter on every
debounced batch of file changes. With --sync, the search index is
refreshed after each batch as well.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getWatchConfigFromFlags(cmd)

		presenter.SetQuiet(config.Quiet)

		if err := config.Validate(); err != nil {
			presenter.Error(err, "Invalid configuration")
			os.Exit(1)
		}

		runWatchMode(ctx, config)
	},
}

func init() {
	defaults := NewWatchConfig()
	watchCmd.Flags().Int("debounce", defaults.DebounceTime, "Batch window for file changes in milliseconds")
	watchCmd.Flags().Bool("sync", defaults.Sync, "Also refresh the search index after each batch")
	watchCmd.Flags().Bool("quiet", defaults.Quiet, "Only report lint findings")
	rootCmd.AddCommand(withTracing(watchCmd))
}

// getWatchConfigFromFlags extracts watch configuration from command flags
func getWatchConfigFromFlags(cmd *cobra.Command) *WatchConfig {
	config := NewWatchConfig()

	if debounce, err := cmd.Flags().GetInt("debounce"); err == nil {
		config.DebounceTime = debounce
	}
	if doSync, err := cmd.Flags().GetBool("sync"); err == nil {
		config.Sync = doSync
	}
	if quiet, err := cmd.Flags().GetBool("quiet"); err == nil {
		config.Quiet = quiet
	}

	return config
}

func runWatchMode(ctx context.Context, config *WatchConfig) {
	registry, err := newRegistry()
	if err != nil {
		presenter.Error(err, "failed to set up workspace")
		os.Exit(1)
	}
	roots := registry.Roots()

	var store *index.Store
	if config.Sync {
		dbPath, err := index.DefaultDBPath()
		if err != nil {
			presenter.Error(err, "failed to resolve index path")
			os.Exit(1)
		}
		store, err = index.Open(ctx, dbPath)
		if err != nil {
			presenter.Error(err, "failed to open search index")
			os.Exit(1)
		}
		defer store.Close()
	}

	w := watcher.New(
		[]string{roots.Project, roots.User},
		watcher.WithDebounce(time.Duration(config.DebounceTime)*time.Millisecond),
	)

	presenter.Info(fmt.Sprintf("Watching %s and %s", roots.Project, roots.User))
	presenter.Info("Press Ctrl+C to stop")

	// Lint once at startup so the first report doesn't wait for a change.
	checkCorpus(ctx, registry, store)

	err = w.Run(ctx, func(paths []string) {
		for _, p := range paths {
			presenter.Info("changed: " + p)
		}
		checkCorpus(ctx, registry, store)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		presenter.Error(err, "watcher failed")
		os.Exit(1)
	}

	presenter.Info("Watcher stopped")
}

// checkCorpus re-snapshots the workspace, reports lint findings, and
// refreshes the index when one is attached.
func checkCorpus(ctx context.Context, registry *workspace.Registry, store *index.Store) {
	snap, err := registry.Snapshot(ctx)
	if err != nil {
		presenter.Error(err, "failed to scan workspace")
		return
	}

	findings, err := lint.NewLinter().Run(ctx, snap)
	if err != nil {
		presenter.Error(err, "lint failed")
		return
	}

	if len(findings) == 0 {
		presenter.Success(fmt.Sprintf("clean: %d commands, %d skills, %d agents",
			len(snap.Commands), len(snap.Skills), len(snap.Agents)))
	}
	for _, f := range findings {
		location := f.Path
		if f.Line > 0 {
			location = fmt.Sprintf("%s:%d", f.Path, f.Line)
		}
		msg := fmt.Sprintf("[%s] %s: %s (%s)", f.Severity, f.Rule, f.Message, location)
		if f.Severity == lint.SeverityError {
			presenter.Error(errors.New(f.Message), fmt.Sprintf("[%s] %s", f.Rule, location))
		} else {
			presenter.Warning(msg)
		}
	}

	if store != nil {
		result, err := store.Sync(ctx, snap)
		if err != nil {
			presenter.Error(err, "index sync failed")
			return
		}
		if len(result.Added)+len(result.Updated)+len(result.Removed) > 0 {
			presenter.Info(fmt.Sprintf("index: %d added, %d updated, %d removed",
				len(result.Added), len(result.Updated), len(result.Removed)))
		}
	}
}
