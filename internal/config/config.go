// Package config loads the cppgraph configuration file and environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings
const (
	EnvDBPath            = "CPPGRAPH_DB_PATH"
	EnvPaths             = "CPPGRAPH_PATHS"
	EnvEmbeddingProvider = "CPPGRAPH_EMBEDDING_PROVIDER"
	EnvEmbeddingModel    = "CPPGRAPH_EMBEDDING_MODEL"
	EnvJinaAPIKey        = "JINA_API_KEY"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Index     IndexConfig     `yaml:"index"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Query     QueryConfig     `yaml:"query"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// IndexConfig holds source discovery and indexing settings.
type IndexConfig struct {
	Paths         []string      `yaml:"paths"`
	Extensions    []string      `yaml:"extensions"`
	Exclude       []string      `yaml:"exclude"`
	MaxFileSizeMB int           `yaml:"max_file_size_mb"`
	Interval      time.Duration `yaml:"interval"`
	BatchSize     int           `yaml:"batch_size"`
	Workers       int           `yaml:"workers"`
	Watch         bool          `yaml:"watch"`
}

// MaxFileSize returns the size limit in bytes
func (c IndexConfig) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// StorageConfig holds the database location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	Endpoint  string        `yaml:"endpoint"`
	APIKey    string        `yaml:"api_key,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
}

// QueryConfig tunes the query engine.
type QueryConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// MetricsConfig holds the Prometheus listener address; empty disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration with defaults and environment overrides applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg
}

// Load reads and parses the config file at path, expands paths, applies
// defaults and then environment overrides. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	for i := range cfg.Index.Paths {
		cfg.Index.Paths[i] = expandPath(cfg.Index.Paths[i], configDir)
	}

	ApplyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path. API keys are never written.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.Embedding.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv(EnvPaths); v != "" {
		cfg.Index.Paths = splitList(v)
	}
	if v := os.Getenv(EnvEmbeddingProvider); v != "" {
		cfg.Embedding.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(EnvEmbeddingModel); v != "" {
		cfg.Embedding.Model = v
	}
	if cfg.Embedding.APIKey == "" {
		switch cfg.Embedding.Provider {
		case "jina":
			cfg.Embedding.APIKey = os.Getenv(EnvJinaAPIKey)
		case "openai":
			cfg.Embedding.APIKey = os.Getenv(EnvOpenAIAPIKey)
		}
	}
}

// Validate checks values defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "", "jina", "openai", "local":
	default:
		return fmt.Errorf("invalid embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("invalid embedding dimension %d", c.Embedding.Dimension)
	}
	if c.Index.BatchSize < 0 || c.Index.Workers < 0 {
		return fmt.Errorf("batch size and workers must not be negative")
	}
	return nil
}

// AddPath adds a monitored root. It reports false if the root was already present.
func (c *Config) AddPath(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	if slices.Contains(c.Index.Paths, abs) {
		return false, nil
	}
	c.Index.Paths = append(c.Index.Paths, abs)
	return true, nil
}

// RemovePath removes a monitored root. It reports false if the root was not present.
func (c *Config) RemovePath(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	i := slices.Index(c.Index.Paths, abs)
	if i < 0 {
		return false, nil
	}
	c.Index.Paths = slices.Delete(c.Index.Paths, i, i+1)
	return true, nil
}

// DefaultPath returns the config file location under the user's home.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cppgraph", "config.yaml")
	}
	return "cppgraph.yaml"
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" is the home directory; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
