package config

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/dshills/cppgraph-mcp/internal/indexer"
	"github.com/dshills/cppgraph-mcp/internal/query"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Index.Extensions == nil {
		cfg.Index.Extensions = slices.Clone(indexer.DefaultExtensions)
	}
	if cfg.Index.Exclude == nil {
		cfg.Index.Exclude = append(slices.Clone(indexer.DefaultExcludes), "out", "bin", "obj", "*.generated.*")
	}
	if cfg.Index.MaxFileSizeMB == 0 {
		cfg.Index.MaxFileSizeMB = 10
	}
	if cfg.Index.Interval == 0 {
		cfg.Index.Interval = indexer.DefaultInterval
	}
	if cfg.Index.BatchSize == 0 {
		cfg.Index.BatchSize = indexer.DefaultBatchSize
	}
	if cfg.Index.Workers == 0 {
		cfg.Index.Workers = runtime.NumCPU()
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = defaultDatabasePath()
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Query.Timeout == 0 {
		cfg.Query.Timeout = 30 * time.Second
	}
	if cfg.Query.CacheSize == 0 {
		cfg.Query.CacheSize = query.DefaultCacheSize
	}
	if cfg.Query.CacheTTL == 0 {
		cfg.Query.CacheTTL = query.DefaultCacheTTL
	}
}

func defaultDatabasePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cppgraph", "index.db")
	}
	return "cppgraph.db"
}
