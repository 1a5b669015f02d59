package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpack/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		info := version.Get()

		switch format {
		case "json":
			out, err := info.JSON()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error formatting version info: %s\n", err)
				os.Exit(1)
			}
			fmt.Println(out)
		case "short":
			fmt.Println(info.Short())
		default:
			fmt.Println(info.String())
		}
	},
}

func init() {
	versionCmd.Flags().String("format", "text", "Output format (text, json, short)")
	rootCmd.AddCommand(withTracing(versionCmd))
}
