package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/promptpack/pkg/logger"
	"github.com/jingkaihe/promptpack/pkg/presenter"
	"github.com/jingkaihe/promptpack/pkg/workspace"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("PROMPTPACK")
	viper.AutomaticEnv()

	// Config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.promptpack")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "promptpack",
	Short: "Manage a workspace of prompt commands, skills, and agents",
	Long: `Promptpack manages Markdown prompt corpora: slash-command templates,
skills with bundled resources, and agent personas, discovered from the
repo-local .promptpack/ and the user-global ~/.promptpack/ roots.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configFile, err := cmd.Flags().GetString("config"); err == nil && configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				presenter.Warning("failed to read config file " + configFile)
			}
		}
		if level := viper.GetString("log_level"); level != "" {
			if err := logger.SetLogLevel(level); err != nil {
				presenter.Warning("invalid log level '" + level + "', using default")
			}
		}
		logger.SetLogFormat(viper.GetString("log_format"))
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

// newRegistry builds a workspace registry over the default roots.
func newRegistry() (*workspace.Registry, error) {
	return workspace.NewRegistry()
}

// loadSnapshot is the common read path for commands that only inspect the
// corpus.
func loadSnapshot(ctx context.Context) (*workspace.Snapshot, error) {
	registry, err := newRegistry()
	if err != nil {
		return nil, err
	}
	return registry.Snapshot(ctx)
}

func main() {
	// Add global flags
	rootCmd.PersistentFlags().String("config", "", "Config file (default $HOME/.promptpack/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error, panic, fatal)")
	rootCmd.PersistentFlags().String("log-format", "auto", "Log format (auto, json, text, fmt)")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := initTracing(ctx)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("Failed to initialize tracing")
	}
	defer func() {
		if shutdownTracer != nil {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.G(context.Background()).WithError(err).Debug("Failed to shut down tracer")
			}
		}
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		presenter.Error(err, "command failed")
		os.Exit(1)
	}
}
