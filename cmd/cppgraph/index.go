package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/cppgraph-mcp/internal/indexer"
)

var flagIndexJSON bool

var indexCmd = &cobra.Command{
	Use:   "index [paths...]",
	Short: "Index C++ source trees (defaults to the monitored paths)",
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagIndexJSON, "json", false, "print statistics as JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	s, cfg, logger, err := openServer()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = s.Close() }()

	roots := args
	if len(roots) == 0 {
		roots = cfg.Index.Paths
	}
	if len(roots) == 0 {
		return fmt.Errorf("no paths given and no monitored paths configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stats, err := s.Indexer().IndexDirectory(ctx, roots)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if flagIndexJSON {
		return printJSON(out, stats)
	}
	printStatistics(cmd, stats)
	return nil
}

func printStatistics(cmd *cobra.Command, stats *indexer.Statistics) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s finished in %s\n", stats.RunID, stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  files:         %d indexed, %d skipped, %d fallback, %d failed, %d removed\n",
		stats.FilesIndexed, stats.FilesSkipped, stats.FilesFallback, stats.FilesFailed, stats.FilesRemoved)
	fmt.Fprintf(out, "  entities:      %d\n", stats.EntitiesExtracted)
	fmt.Fprintf(out, "  relationships: %d stored, %d unresolved\n", stats.RelationshipsStored, stats.RelationshipsDropped)
	fmt.Fprintf(out, "  chunks:        %d\n", stats.ChunksCreated)
	for _, msg := range stats.ErrorMessages {
		fmt.Fprintf(out, "  error: %s\n", msg)
	}
}
