package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpack/pkg/command"
	"github.com/jingkaihe/promptpack/pkg/presenter"
)

var commandCmd = &cobra.Command{
	Use:   "command",
	Short: "Inspect and render prompt commands",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var commandListCmd = &cobra.Command{
	Use:   "list",
	Short: "List commands from every workspace root",
	Long: `List the commands discovered across the project root, the user root,
and installed plugins, after shadowing resolution.

Examples:
  promptpack command list
  promptpack command list --source project
  promptpack command list --filter 'git:*'
  promptpack command list --format json
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		filter, _ := cmd.Flags().GetString("filter")
		format, _ := cmd.Flags().GetString("format")

		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}

		var matcher glob.Glob
		if filter != "" {
			matcher, err = glob.Compile(filter)
			if err != nil {
				return errors.Wrapf(err, "invalid filter pattern '%s'", filter)
			}
		}

		var commands []*command.Command
		for _, c := range snap.Commands {
			if source != "" && c.Source != source {
				continue
			}
			if matcher != nil && !matcher.Match(c.Name) {
				continue
			}
			commands = append(commands, c)
		}

		if format == "json" {
			return printJSON(commandRows(commands))
		}

		if len(commands) == 0 {
			presenter.Info("No commands found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSOURCE\tARGUMENTS\tDESCRIPTION")
		for _, c := range commands {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.Source, c.ArgumentHint, c.Description)
		}
		return w.Flush()
	},
}

var commandShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a command's metadata and template body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pretty, _ := cmd.Flags().GetBool("pretty")

		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		c, ok := snap.Command(args[0])
		if !ok {
			return errors.Errorf("command '%s' not found", args[0])
		}

		presenter.Section(c.Name)
		presenter.Info("source: " + c.Source)
		presenter.Info("path:   " + c.Path)
		if c.Description != "" {
			presenter.Info("desc:   " + c.Description)
		}
		if c.ArgumentHint != "" {
			presenter.Info("args:   " + c.ArgumentHint)
		}
		if len(c.AllowedTools) > 0 {
			presenter.Info(fmt.Sprintf("tools:  %v", c.AllowedTools))
		}
		presenter.Separator()

		if pretty {
			rendered, err := renderMarkdown(c.Body)
			if err == nil {
				fmt.Print(rendered)
				return nil
			}
		}
		fmt.Println(c.Body)
		return nil
	},
}

var commandRenderCmd = &cobra.Command{
	Use:   "render <name> [args...]",
	Short: "Render a command with positional arguments",
	Long: `Render a command template: substitute $1..$9 and $ARGUMENTS with the
given arguments and execute its inline shell markers, gated by the
command's allowed-tools declaration. --no-exec replaces every shell
marker with a placeholder instead of running it.

Examples:
  promptpack command render commit "fix the login bug"
  promptpack command render git:fixup HEAD~3 --no-exec
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noExec, _ := cmd.Flags().GetBool("no-exec")

		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		c, ok := snap.Command(args[0])
		if !ok {
			return errors.Errorf("command '%s' not found", args[0])
		}

		renderer := command.NewRenderer(command.WithNoExec(noExec))
		rendered, err := renderer.Render(cmd.Context(), c, args[1:])
		if err != nil {
			return errors.Wrapf(err, "failed to render '%s'", c.Name)
		}

		fmt.Println(rendered)
		return nil
	},
}

type commandRow struct {
	Name         string `json:"name"`
	Source       string `json:"source"`
	Description  string `json:"description,omitempty"`
	ArgumentHint string `json:"argumentHint,omitempty"`
	Path         string `json:"path"`
}

func commandRows(commands []*command.Command) []commandRow {
	rows := make([]commandRow, 0, len(commands))
	for _, c := range commands {
		rows = append(rows, commandRow{
			Name:         c.Name,
			Source:       c.Source,
			Description:  c.Description,
			ArgumentHint: c.ArgumentHint,
			Path:         c.Path,
		})
	}
	return rows
}

func printJSON(data any) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal output")
	}
	fmt.Println(string(out))
	return nil
}

func renderMarkdown(body string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(body)
}

func init() {
	commandListCmd.Flags().String("source", "", "Only show commands from this source (project, user, or org/repo)")
	commandListCmd.Flags().String("filter", "", "Glob pattern matched against command names")
	commandListCmd.Flags().String("format", "table", "Output format (table, json)")
	commandShowCmd.Flags().Bool("pretty", false, "Render the body as styled terminal Markdown")
	commandRenderCmd.Flags().Bool("no-exec", false, "Skip shell markers instead of executing them")

	commandCmd.AddCommand(commandListCmd)
	commandCmd.AddCommand(commandShowCmd)
	commandCmd.AddCommand(commandRenderCmd)
	rootCmd.AddCommand(commandCmd)
}
