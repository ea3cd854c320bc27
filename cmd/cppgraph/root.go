package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/cppgraph-mcp/internal/config"
	"github.com/dshills/cppgraph-mcp/internal/logging"
	"github.com/dshills/cppgraph-mcp/internal/mcp"
)

var (
	flagConfig string
	flagDB     string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:           "cppgraph",
	Short:         "C++ code knowledge graph with an MCP tool surface",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.cppgraph/config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

// configPath returns the explicit --config path, or the default location
// when a file exists there
func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	if p := config.DefaultPath(); fileExists(p) {
		return p
	}
	return ""
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.Storage.DatabasePath = flagDB
	}
	if flagDebug {
		cfg.Debug = true
	}
	return cfg, nil
}

// openServer loads the configuration and opens the full stack behind it
func openServer() (*mcp.Server, *config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, nil, nil, err
	}
	s, err := mcp.Open(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}
	return s, cfg, logger, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
