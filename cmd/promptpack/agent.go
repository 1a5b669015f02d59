package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpack/pkg/agent"
	"github.com/jingkaihe/promptpack/pkg/presenter"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Inspect agent personas",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents from every workspace root",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}

		if len(snap.Agents) == 0 {
			presenter.Info("No agents found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSOURCE\tTOOLS\tDESCRIPTION")
		for _, a := range snap.Agents {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", a.Name, a.Source, len(a.AllowedTools), a.Description)
		}
		return w.Flush()
	},
}

var agentShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show an agent's metadata and persona prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		a, ok := snap.Agent(args[0])
		if !ok {
			return errors.Errorf("agent '%s' not found", args[0])
		}

		presenter.Section(a.Name)
		presenter.Info("source: " + a.Source)
		presenter.Info("path:   " + a.Path)
		if a.Description != "" {
			presenter.Info("desc:   " + a.Description)
		}
		if a.Model != "" {
			presenter.Info("model:  " + a.Model)
		}
		if len(a.AllowedTools) > 0 {
			presenter.Info(fmt.Sprintf("tools:  %v", a.AllowedTools))
		}
		presenter.Separator()
		fmt.Println(a.Persona)
		return nil
	},
}

var agentValidateCmd = &cobra.Command{
	Use:   "validate [name]",
	Short: "Validate agent definitions",
	Long: `Check that each agent has a name, a description, a persona, and a
parseable tool allow-list. With a name argument only that agent is
checked; otherwise every discovered agent is.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}

		agents := snap.Agents
		if len(args) == 1 {
			a, ok := snap.Agent(args[0])
			if !ok {
				return errors.Errorf("agent '%s' not found", args[0])
			}
			agents = []*agent.Agent{a}
		}

		failed := 0
		for _, a := range agents {
			if err := agent.Validate(a); err != nil {
				presenter.Error(err, fmt.Sprintf("agent '%s' (%s)", a.Name, a.Path))
				failed++
				continue
			}
			presenter.Success(fmt.Sprintf("agent '%s' is valid", a.Name))
		}

		if failed > 0 {
			return errors.Errorf("%d of %d agents failed validation", failed, len(agents))
		}
		return nil
	},
}

func init() {
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentShowCmd)
	agentCmd.AddCommand(agentValidateCmd)
	rootCmd.AddCommand(agentCmd)
}
