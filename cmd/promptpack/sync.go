package main

import (
	"fmt"

	"github.com/aymanbagabas/go-udiff"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpack/pkg/index"
	"github.com/jingkaihe/promptpack/pkg/presenter"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync the corpus into the search index",
	Long: `Walk the workspace roots and reconcile the SQLite index with what is
on disk: new entries are added, changed entries are re-indexed, and
entries whose files vanished are removed. --diff prints a unified diff
of every changed entry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		showDiff, _ := cmd.Flags().GetBool("diff")

		registry, err := newRegistry()
		if err != nil {
			return err
		}
		snap, err := registry.Snapshot(cmd.Context())
		if err != nil {
			return err
		}

		dbPath, err := index.DefaultDBPath()
		if err != nil {
			return err
		}
		store, err := index.Open(cmd.Context(), dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := store.Sync(cmd.Context(), snap)
		if err != nil {
			return err
		}

		for _, ref := range result.Added {
			presenter.Info(fmt.Sprintf("  added   %s %s (%s)", ref.Kind, ref.Name, ref.Source))
		}
		for _, upd := range result.Updated {
			presenter.Info(fmt.Sprintf("  updated %s %s (%s)", upd.Kind, upd.Name, upd.Source))
			if showDiff {
				fmt.Print(udiff.Unified("indexed", upd.Path, upd.Previous, upd.Current))
			}
		}
		for _, ref := range result.Removed {
			presenter.Info(fmt.Sprintf("  removed %s %s (%s)", ref.Kind, ref.Name, ref.Source))
		}

		presenter.Success(fmt.Sprintf("Synced %d entries to %s (%d added, %d updated, %d removed, %d unchanged)",
			result.Total(), dbPath, len(result.Added), len(result.Updated), len(result.Removed), len(result.Unchanged)))

		presenter.Stats(&presenter.CorpusStats{
			Commands: len(snap.Commands),
			Skills:   len(snap.Skills),
			Agents:   len(snap.Agents),
			Plugins:  len(snap.Plugins),
			Shadowed: len(snap.Shadowed),
		})
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("diff", false, "Print a unified diff for each updated entry")
	rootCmd.AddCommand(syncCmd)
}
