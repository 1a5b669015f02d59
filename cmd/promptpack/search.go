package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpack/pkg/index"
	"github.com/jingkaihe/promptpack/pkg/presenter"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the indexed corpus",
	Long: `Search entry names, descriptions, and bodies in the SQLite index.
Name matches rank before body matches. Run 'promptpack sync' first to
build or refresh the index.

Examples:
  promptpack search review
  promptpack search "git rebase" --kind command
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		format, _ := cmd.Flags().GetString("format")

		dbPath, err := index.DefaultDBPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return errors.Errorf("no index at %s; run 'promptpack sync' first", dbPath)
		}

		store, err := index.Open(cmd.Context(), dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		var kinds []string
		if kind != "" {
			kinds = []string{kind}
		}
		entries, err := store.Search(cmd.Context(), args[0], kinds)
		if err != nil {
			return err
		}

		if format == "json" {
			return printJSON(entries)
		}

		if len(entries) == 0 {
			presenter.Info("No matches")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tNAME\tSOURCE\tDESCRIPTION")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Kind, e.Name, e.Source, e.Description)
		}
		return w.Flush()
	},
}

func init() {
	searchCmd.Flags().String("kind", "", "Restrict results to a kind (command, skill, agent)")
	searchCmd.Flags().String("format", "table", "Output format (table, json)")
	rootCmd.AddCommand(searchCmd)
}
