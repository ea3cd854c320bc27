package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/cppgraph-mcp/internal/config"
)

var pathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Manage the monitored source directories",
}

var pathsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		for _, p := range cfg.Index.Paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var pathsAddCmd = &cobra.Command{
	Use:   "add <dir>...",
	Short: "Add monitored directories and save the config",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updatePaths(cmd, args, (*config.Config).AddPath, "added", "already monitored")
	},
}

var pathsRemoveCmd = &cobra.Command{
	Use:   "remove <dir>...",
	Short: "Remove monitored directories and save the config",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updatePaths(cmd, args, (*config.Config).RemovePath, "removed", "not monitored")
	},
}

func updatePaths(cmd *cobra.Command, dirs []string, apply func(*config.Config, string) (bool, error), done, noop string) error {
	path := flagConfig
	if path == "" {
		path = config.DefaultPath()
	}

	cfg := config.Default()
	if fileExists(path) {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	out := cmd.OutOrStdout()
	for _, dir := range dirs {
		changed, err := apply(cfg, dir)
		if err != nil {
			return err
		}
		if changed {
			fmt.Fprintf(out, "%s %s\n", done, dir)
		} else {
			fmt.Fprintf(out, "%s %s\n", noop, dir)
		}
	}
	return config.Save(path, cfg)
}

func init() {
	pathsCmd.AddCommand(pathsListCmd, pathsAddCmd, pathsRemoveCmd)
	rootCmd.AddCommand(pathsCmd)
}
