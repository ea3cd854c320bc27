package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	Dimension int
	Endpoint  string
	Timeout   time.Duration
	CacheSize int
	Logger    *zap.Logger
}

func (c Config) options() []ProviderOption {
	opts := []ProviderOption{
		WithModel(c.Model),
		WithDimension(c.Dimension),
		WithTimeout(c.Timeout),
		WithLogger(c.Logger),
	}
	if c.Endpoint != "" {
		opts = append(opts, WithEndpoint(c.Endpoint))
	}
	return opts
}

// New creates an embedder with explicit configuration. An empty provider
// is detected from the environment.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = DetectProvider()
	}

	switch provider {
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, cache, cfg.options()...)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cache, cfg.options()...)
	case ProviderLocal:
		return NewLocalProvider(cache, cfg.options()...)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. CPPGRAPH_EMBEDDING_PROVIDER (jina, openai, local)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	return New(Config{CacheSize: 10000})
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
