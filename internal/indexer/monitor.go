package indexer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the time between monitor passes
const DefaultInterval = 30 * time.Second

// Monitor re-runs change detection over a fixed set of roots on a timer
type Monitor struct {
	indexer  *Indexer
	roots    []string
	interval time.Duration
	logger   *zap.Logger

	// onRun is called after every completed pass
	onRun func(*Statistics)
}

// MonitorOption configures a Monitor
type MonitorOption func(*Monitor)

// WithInterval sets the time between passes
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMonitorLogger sets the monitor's logger
func WithMonitorLogger(l *zap.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRunHook registers a function called with each pass's statistics
func WithRunHook(fn func(*Statistics)) MonitorOption {
	return func(m *Monitor) { m.onRun = fn }
}

// NewMonitor creates a monitor for roots
func NewMonitor(idx *Indexer, roots []string, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		indexer:  idx,
		roots:    append([]string(nil), roots...),
		interval: DefaultInterval,
		logger:   idx.logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run performs one pass immediately and then one per interval until ctx is
// done. A pass that finds another directory run active is skipped.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.pass(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) pass(ctx context.Context) {
	stats, err := m.indexer.IndexDirectory(ctx, m.roots)
	switch {
	case errors.Is(err, ErrIndexingInProgress):
		m.logger.Debug("monitor pass skipped, indexing in progress")
		return
	case err != nil:
		if ctx.Err() == nil {
			m.logger.Warn("monitor pass failed", zap.Error(err))
		}
		return
	}

	if stats.FilesIndexed+stats.FilesFallback+stats.FilesFailed+stats.FilesRemoved > 0 {
		m.logger.Info("monitor pass",
			zap.String("run_id", stats.RunID),
			zap.Int("indexed", stats.FilesIndexed),
			zap.Int("fallback", stats.FilesFallback),
			zap.Int("failed", stats.FilesFailed),
			zap.Int("removed", stats.FilesRemoved))
	}
	if m.onRun != nil {
		m.onRun(stats)
	}
}
