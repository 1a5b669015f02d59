package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/promptpack/pkg/index"
	"github.com/jingkaihe/promptpack/pkg/logger"
	"github.com/jingkaihe/promptpack/pkg/presenter"
	"github.com/jingkaihe/promptpack/pkg/webapi"
)

// ServeConfig holds configuration for the serve command
type ServeConfig struct {
	Host string
	Port int
}

// NewServeConfig creates a new ServeConfig with default values
func NewServeConfig() *ServeConfig {
	return &ServeConfig{
		Host: "127.0.0.1",
		Port: 8723,
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server over the corpus",
	Long: `Start a local HTTP server exposing the corpus as a JSON API: listing,
rendering (with shell execution disabled), search, and lint endpoints.

The server is available at http://127.0.0.1:8723 by default.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getServeConfigFromFlags(cmd)
		runServeCommand(ctx, config)
	},
}

func init() {
	defaults := NewServeConfig()
	serveCmd.Flags().String("host", defaults.Host, "Host to bind the server to")
	serveCmd.Flags().Int("port", defaults.Port, "Port to bind the server to")
	rootCmd.AddCommand(withTracing(serveCmd))
}

// getServeConfigFromFlags extracts serve configuration from command flags
func getServeConfigFromFlags(cmd *cobra.Command) *ServeConfig {
	config := NewServeConfig()

	if host, err := cmd.Flags().GetString("host"); err == nil {
		config.Host = host
	}
	if port, err := cmd.Flags().GetInt("port"); err == nil {
		config.Port = port
	}

	return config
}

// validateServeConfig validates the serve configuration
func validateServeConfig(config *ServeConfig) error {
	if config.Host == "" {
		return errors.New("host cannot be empty")
	}

	if config.Host != "localhost" && config.Host != "0.0.0.0" {
		if ip := net.ParseIP(config.Host); ip == nil {
			if strings.Contains(config.Host, " ") || strings.Contains(config.Host, ":") {
				return errors.Errorf("invalid host: %s", config.Host)
			}
		}
	}

	if config.Port < 1 || config.Port > 65535 {
		return errors.Errorf("port must be between 1 and 65535, got %d", config.Port)
	}

	if config.Port < 1024 {
		logger.G(context.Background()).WithField("port", config.Port).Warn("using privileged port (< 1024) may require elevated permissions")
	}

	return nil
}

// openStoreIfPresent opens the search index when one has been built; the
// server falls back to scanning snapshots without it.
func openStoreIfPresent(ctx context.Context) *index.Store {
	dbPath, err := index.DefaultDBPath()
	if err != nil {
		return nil
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil
	}
	store, err := index.Open(ctx, dbPath)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("path", dbPath).Warn("Failed to open search index, search falls back to scanning")
		return nil
	}
	return store
}

// runServeCommand starts the HTTP API server
func runServeCommand(ctx context.Context, config *ServeConfig) {
	if err := validateServeConfig(config); err != nil {
		presenter.Error(err, "invalid server configuration")
		os.Exit(1)
	}

	registry, err := newRegistry()
	if err != nil {
		presenter.Error(err, "failed to set up workspace")
		os.Exit(1)
	}

	store := openStoreIfPresent(ctx)
	if store != nil {
		defer store.Close()
	}

	logger.G(ctx).WithFields(map[string]interface{}{
		"host": config.Host,
		"port": config.Port,
	}).Info("Starting API server")

	server, err := webapi.NewServer(&webapi.ServerConfig{
		Host: config.Host,
		Port: config.Port,
	}, registry, store)
	if err != nil {
		presenter.Error(err, "failed to create server")
		os.Exit(1)
	}

	presenter.Success(fmt.Sprintf("API server starting on http://%s:%d", config.Host, config.Port))
	presenter.Info("Press Ctrl+C to stop the server")

	if err := server.Start(ctx); err != nil {
		logger.G(ctx).WithError(err).Error("server error")
		presenter.Error(err, "server failed")
		os.Exit(1)
	}

	presenter.Info("Server stopped")
}
