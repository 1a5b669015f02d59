package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpack/pkg/mcpserver"
	"github.com/jingkaihe/promptpack/pkg/presenter"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol integration",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the corpus over MCP on stdio",
	Long: `Expose the corpus to MCP clients over stdin/stdout: every command
becomes a prompt, and tools cover listing, rendering (with shell
execution disabled), skill reading, and search.

Point an MCP client at:
  promptpack mcp serve`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		registry, err := newRegistry()
		if err != nil {
			presenter.Error(err, "failed to set up workspace")
			os.Exit(1)
		}

		store := openStoreIfPresent(ctx)
		if store != nil {
			defer store.Close()
		}

		server, err := mcpserver.NewServer(ctx, registry, store)
		if err != nil {
			presenter.Error(err, "failed to create MCP server")
			os.Exit(1)
		}

		if err := server.Serve(ctx); err != nil {
			presenter.Error(err, "MCP server failed")
			os.Exit(1)
		}
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
