package main

import (
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpack/pkg/browse"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the corpus in an interactive terminal UI",
	Long: `Open a full-screen terminal browser over the discovered commands,
skills, and agents. Type to filter, enter to preview an entry's rendered
Markdown, esc to go back, q to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		return browse.Run(cmd.Context(), snap)
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
}
