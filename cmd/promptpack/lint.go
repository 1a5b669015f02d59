package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpack/pkg/lint"
	"github.com/jingkaihe/promptpack/pkg/presenter"
)

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Check the corpus for structural and semantic problems",
	Long: `Run every lint rule over the discovered corpus: frontmatter shape,
naming, allowed-tools syntax, placeholder arity, resource and cross
reference resolution, and shadowing.

The exit code is 1 when any error-severity finding exists; warnings and
info findings do not fail the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}

		findings, err := lint.NewLinter().Run(cmd.Context(), snap)
		if err != nil {
			return err
		}

		if format == "json" {
			if err := printJSON(findings); err != nil {
				return err
			}
		} else {
			if len(findings) == 0 {
				presenter.Success(fmt.Sprintf("No problems found (%d commands, %d skills, %d agents)",
					len(snap.Commands), len(snap.Skills), len(snap.Agents)))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SEVERITY\tRULE\tLOCATION\tMESSAGE")
			for _, f := range findings {
				location := f.Path
				if f.Line > 0 {
					location = fmt.Sprintf("%s:%d", f.Path, f.Line)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Severity, f.Rule, location, f.Message)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			presenter.Warning(fmt.Sprintf("%d finding(s)", len(findings)))
		}

		if lint.HasErrors(findings) {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	lintCmd.Flags().String("format", "table", "Output format (table, json)")
	rootCmd.AddCommand(lintCmd)
}
