package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpack/pkg/presenter"
	"github.com/jingkaihe/promptpack/pkg/skill"
)

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Inspect and install skills",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var skillListCmd = &cobra.Command{
	Use:   "list",
	Short: "List skills from every workspace root",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}

		if len(snap.Skills) == 0 {
			presenter.Info("No skills found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSOURCE\tRESOURCES\tDESCRIPTION")
		for _, s := range snap.Skills {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Name, s.Source, len(s.Resources.All()), s.Description)
		}
		return w.Flush()
	},
}

var skillShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a skill's metadata, body, and bundled resources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pretty, _ := cmd.Flags().GetBool("pretty")

		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		s, ok := snap.Skill(args[0])
		if !ok {
			return errors.Errorf("skill '%s' not found", args[0])
		}

		presenter.Section(s.Name)
		presenter.Info("source: " + s.Source)
		presenter.Info("dir:    " + s.Directory)
		if s.Description != "" {
			presenter.Info("desc:   " + s.Description)
		}
		if s.Version != "" {
			presenter.Info("version: " + s.Version)
		}
		if resources := s.Resources.All(); len(resources) > 0 {
			presenter.Info("resources:")
			for _, r := range resources {
				presenter.Info("  " + r)
			}
		}
		presenter.Separator()

		if pretty {
			if rendered, err := renderMarkdown(s.Body); err == nil {
				fmt.Print(rendered)
				return nil
			}
		}
		fmt.Println(s.Body)
		return nil
	},
}

var skillAddCmd = &cobra.Command{
	Use:   "add <org/repo>[@ref]",
	Short: "Install skills from a GitHub repository",
	Long: `Clone a GitHub repository and copy the skills under its skills/
directory into the workspace. --skill installs a single skill by name
instead of everything the repository carries.

Examples:
  promptpack skill add myorg/skills
  promptpack skill add myorg/skills@v1.2.0 --skill code-review
  promptpack skill add myorg/skills --global
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		global, _ := cmd.Flags().GetBool("global")
		force, _ := cmd.Flags().GetBool("force")
		only, _ := cmd.Flags().GetString("skill")

		importer := skill.NewImporter(
			skill.WithGlobal(global),
			skill.WithForce(force),
		)

		installed, err := importer.AddFromRepo(cmd.Context(), args[0], only)
		if err != nil {
			return errors.Wrapf(err, "failed to add skills from %s", args[0])
		}

		presenter.Success(fmt.Sprintf("Installed skills: %s", strings.Join(installed, ", ")))
		return nil
	},
}

var skillImportCmd = &cobra.Command{
	Use:   "import <url>",
	Short: "Import a web page as a skill",
	Long: `Fetch a web page, convert it to Markdown, and write it as a new skill's
SKILL.md. The skill name is required and becomes the skill directory.

Examples:
  promptpack skill import https://example.com/code-review-guide --name code-review
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		global, _ := cmd.Flags().GetBool("global")
		force, _ := cmd.Flags().GetBool("force")

		importer := skill.NewImporter(
			skill.WithGlobal(global),
			skill.WithForce(force),
		)

		imported, err := importer.ImportURL(cmd.Context(), args[0], name)
		if err != nil {
			return errors.Wrapf(err, "failed to import %s", args[0])
		}

		presenter.Success(fmt.Sprintf("Imported skill '%s' to %s", imported.Name, imported.Directory))
		return nil
	},
}

func init() {
	skillShowCmd.Flags().Bool("pretty", false, "Render the body as styled terminal Markdown")
	skillAddCmd.Flags().BoolP("global", "g", false, "Install into the user-global ~/.promptpack/ root")
	skillAddCmd.Flags().Bool("force", false, "Overwrite an existing skill")
	skillAddCmd.Flags().String("skill", "", "Only install the named skill")
	skillImportCmd.Flags().String("name", "", "Name for the imported skill (required)")
	skillImportCmd.Flags().BoolP("global", "g", false, "Import into the user-global ~/.promptpack/ root")
	skillImportCmd.Flags().Bool("force", false, "Overwrite an existing skill")
	skillImportCmd.MarkFlagRequired("name")

	skillCmd.AddCommand(skillListCmd)
	skillCmd.AddCommand(skillShowCmd)
	skillCmd.AddCommand(skillAddCmd)
	skillCmd.AddCommand(skillImportCmd)
	rootCmd.AddCommand(skillCmd)
}
