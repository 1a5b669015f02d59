package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpack/pkg/builtin"
	"github.com/jingkaihe/promptpack/pkg/presenter"
	"github.com/jingkaihe/promptpack/pkg/workspace"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a workspace with a starter corpus",
	Long: `Create a workspace root populated with an example command, skill, and
agent. By default the repo-local .promptpack/ directory is created; use
--global to scaffold ~/.promptpack/ instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		global, _ := cmd.Flags().GetBool("global")
		force, _ := cmd.Flags().GetBool("force")

		roots, err := workspace.DefaultRoots()
		if err != nil {
			return err
		}
		root := roots.Project
		if global {
			root = roots.User
		}

		written, err := builtin.Scaffold(root, force)
		if err != nil {
			return err
		}

		for _, path := range written {
			if rel, relErr := filepath.Rel(".", path); relErr == nil && !global {
				path = rel
			}
			presenter.Info("  created " + path)
		}
		presenter.Success(fmt.Sprintf("Initialized workspace at %s (%d files)", root, len(written)))
		presenter.Info("Run 'promptpack command list' to see what you got.")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolP("global", "g", false, "Scaffold the user-global ~/.promptpack/ root")
	initCmd.Flags().Bool("force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}
