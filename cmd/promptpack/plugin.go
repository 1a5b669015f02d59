package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpack/pkg/plugin"
	"github.com/jingkaihe/promptpack/pkg/presenter"
	"github.com/jingkaihe/promptpack/pkg/workspace"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Manage installed plugins",
	Long:  `Install, list, and remove plugins from GitHub repositories.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var pluginInstallCmd = &cobra.Command{
	Use:   "install <org/repo>[@ref]...",
	Short: "Install plugins from GitHub repositories",
	Long: `Install plugins from one or more GitHub repositories. A plugin
repository contributes commands/, skills/, and agents/ subtrees, which
are copied under plugins/<org@repo>/ in the workspace root.

Examples:
  promptpack plugin install myorg/prompts
  promptpack plugin install myorg/prompts@v1.0.0
  promptpack plugin install myorg/prompts -g
  promptpack plugin install myorg/prompts --force
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		global, _ := cmd.Flags().GetBool("global")
		force, _ := cmd.Flags().GetBool("force")

		installer, err := plugin.NewInstaller(
			plugin.WithGlobal(global),
			plugin.WithForce(force),
		)
		if err != nil {
			return err
		}

		for _, arg := range args {
			presenter.Info(fmt.Sprintf("Installing %s...", arg))

			result, err := installer.Install(cmd.Context(), arg)
			if err != nil {
				return errors.Wrapf(err, "failed to install %s", arg)
			}

			if len(result.Commands) > 0 {
				presenter.Success(fmt.Sprintf("Installed commands: %s", strings.Join(result.Commands, ", ")))
			}
			if len(result.Skills) > 0 {
				presenter.Success(fmt.Sprintf("Installed skills: %s", strings.Join(result.Skills, ", ")))
			}
			if len(result.Agents) > 0 {
				presenter.Success(fmt.Sprintf("Installed agents: %s", strings.Join(result.Agents, ", ")))
			}

			location := "local (.promptpack/plugins/)"
			if global {
				location = "global (~/.promptpack/plugins/)"
			}
			presenter.Info(fmt.Sprintf("Plugin '%s' installed to %s", result.PluginName, location))
		}

		return nil
	},
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed plugins",
	Long:  `List plugins installed under the repo-local and user-global roots.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		roots, err := workspace.DefaultRoots()
		if err != nil {
			return err
		}

		type located struct {
			plugin.InstalledPlugin
			location string
		}
		var all []located
		for _, r := range []struct {
			root     string
			location string
		}{
			{roots.Project, "local"},
			{roots.User, "global"},
		} {
			installed, err := plugin.Discover(r.root)
			if err != nil {
				return errors.Wrapf(err, "failed to list %s plugins", r.location)
			}
			for _, p := range installed {
				all = append(all, located{InstalledPlugin: p, location: r.location})
			}
		}

		if len(all) == 0 {
			presenter.Info("No plugins installed")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PLUGIN\tSCOPE\tCOMMANDS\tSKILLS\tAGENTS")
		for _, p := range all {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
				p.Name, p.location, len(p.Commands), len(p.Skills), len(p.Agents))
		}
		return w.Flush()
	},
}

var pluginRemoveCmd = &cobra.Command{
	Use:   "remove <org/repo>",
	Short: "Remove an installed plugin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		global, _ := cmd.Flags().GetBool("global")

		remover, err := plugin.NewRemover(plugin.WithGlobal(global))
		if err != nil {
			return err
		}

		if err := remover.Remove(args[0]); err != nil {
			return err
		}

		presenter.Success(fmt.Sprintf("Removed plugin '%s'", args[0]))
		return nil
	},
}

func init() {
	pluginInstallCmd.Flags().BoolP("global", "g", false, "Install into the user-global ~/.promptpack/ root")
	pluginInstallCmd.Flags().Bool("force", false, "Overwrite an already-installed plugin")
	pluginRemoveCmd.Flags().BoolP("global", "g", false, "Remove from the user-global ~/.promptpack/ root")

	pluginCmd.AddCommand(pluginInstallCmd)
	pluginCmd.AddCommand(pluginListCmd)
	pluginCmd.AddCommand(pluginRemoveCmd)
	rootCmd.AddCommand(pluginCmd)
}
