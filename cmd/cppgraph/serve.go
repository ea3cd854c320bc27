package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/cppgraph-mcp/internal/indexer"
	"github.com/dshills/cppgraph-mcp/internal/storage"
)

var (
	flagMetricsAddr string
	flagWatch       bool
	flagNoMonitor   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Start the MCP server on stdio. The configured monitored paths are
re-indexed on the configured interval, and with --watch changed files are
re-indexed as soon as they are written.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	serveCmd.Flags().BoolVar(&flagWatch, "watch", false, "re-index files as they change")
	serveCmd.Flags().BoolVar(&flagNoMonitor, "no-monitor", false, "disable the periodic re-index loop")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	s, cfg, logger, err := openServer()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = s.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("cppgraph server starting",
		zap.String("version", version),
		zap.String("build_mode", storage.BuildMode),
		zap.String("driver", storage.DriverName),
		zap.String("database", cfg.Storage.DatabasePath),
		zap.Strings("paths", cfg.Index.Paths))

	addr := flagMetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		srv := startMetrics(addr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if len(cfg.Index.Paths) > 0 {
		if !flagNoMonitor {
			monitor := indexer.NewMonitor(s.Indexer(), cfg.Index.Paths,
				indexer.WithInterval(cfg.Index.Interval),
				indexer.WithRunHook(func(*indexer.Statistics) { s.Engine().InvalidateCache() }))
			go func() { _ = monitor.Run(ctx) }()
		}

		if flagWatch || cfg.Index.Watch {
			w, err := s.Indexer().Watch(ctx, cfg.Index.Paths,
				indexer.WithChangeHook(func(string) { s.Engine().InvalidateCache() }))
			if err != nil {
				logger.Warn("file watcher unavailable", zap.Error(err))
			} else {
				defer w.Stop()
			}
		}
	}

	logger.Info("MCP server ready, listening on stdio")
	err = s.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func startMetrics(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
