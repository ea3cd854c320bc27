package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/cppgraph-mcp/internal/embedder"
	"github.com/dshills/cppgraph-mcp/internal/storage"
	"github.com/dshills/cppgraph-mcp/pkg/types"
)

// ErrInvalidArgument is returned for malformed query parameters. A query
// that matches nothing is not an error.
var ErrInvalidArgument = errors.New("invalid argument")

const (
	// MaxSymbolCandidates bounds the ranked matches considered for a name
	MaxSymbolCandidates = 10

	// DefaultMaxUsages is the usage count returned by FindSymbol when unset
	DefaultMaxUsages = 20

	// MaxEdgesPerDirection bounds the edges read per node and direction
	MaxEdgesPerDirection = 50

	// MaxRelatedEntities bounds callers and callees in ExplainEntity
	MaxRelatedEntities = 20

	// MaxContextEntities bounds the entities returned by GetContext
	MaxContextEntities = 20

	// RelatedChunks is the number of similar chunks attached by GetContext
	RelatedChunks = 5

	// SnippetChars caps related chunk snippets
	SnippetChars = 500

	// DefaultCacheSize and DefaultCacheTTL configure the search cache
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 10 * time.Minute
)

// Engine answers read-only questions about the code graph
type Engine struct {
	storage  storage.Storage
	embedder embedder.Embedder
	logger   *zap.Logger
	timeout  time.Duration

	cache    *lru.Cache[string, *cacheEntry]
	cacheTTL time.Duration
	group    singleflight.Group
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTimeout bounds every operation; zero leaves only the caller's deadline
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithCacheTTL sets how long a semantic search response is reused
func WithCacheTTL(d time.Duration) Option {
	return func(e *Engine) { e.cacheTTL = d }
}

// WithCacheSize sets the number of cached search responses; 0 disables the cache
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		if n <= 0 {
			e.cache = nil
			return
		}
		cache, err := lru.New[string, *cacheEntry](n)
		if err == nil {
			e.cache = cache
		}
	}
}

// New creates a query engine
func New(store storage.Storage, emb embedder.Embedder, opts ...Option) *Engine {
	cache, err := lru.New[string, *cacheEntry](DefaultCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	e := &Engine{
		storage:  store,
		embedder: emb,
		logger:   zap.NewNop(),
		cache:    cache,
		cacheTTL: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// bound applies the engine timeout to ctx
func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// observe records the outcome of an operation
func (e *Engine) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		e.logger.Debug("query failed", zap.String("op", op), zap.Error(err))
	}
	queriesTotal.WithLabelValues(op, result).Inc()
	queryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// candidates returns the ranked matches for name
func (e *Engine) candidates(ctx context.Context, name string, limit int) ([]*storage.Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	matches, err := e.storage.FindEntities(ctx, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find entities: %w", err)
	}
	return matches, nil
}

// code returns the first stored chunk of an entity, or "" when it has none
func (e *Engine) code(ctx context.Context, entityID int64) (string, error) {
	chunk, err := e.storage.FirstChunkForEntity(ctx, entityID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load code: %w", err)
	}
	return chunk.Content, nil
}

// StatusResult summarises the store
type StatusResult struct {
	Files         int            `json:"files"`
	FilesByStatus map[string]int `json:"files_by_status"`
	Entities      int            `json:"entities"`
	Relationships int            `json:"relationships"`
	Chunks        int            `json:"chunks"`
	Dimension     int            `json:"embedding_dimension"`
	Provider      string         `json:"embedding_provider,omitempty"`
	Model         string         `json:"embedding_model,omitempty"`
	IndexSizeMB   float64        `json:"index_size_mb"`
	LastIndexedAt *time.Time     `json:"last_indexed_at,omitempty"`
}

// Status reports counts of files by status, entities, relationships and chunks
func (e *Engine) Status(ctx context.Context) (result *StatusResult, err error) {
	defer func(start time.Time) { e.observe("status", start, err) }(time.Now())

	ctx, cancel := e.bound(ctx)
	defer cancel()

	stats, err := e.storage.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	byStatus := make(map[string]int, len(stats.FilesByStatus))
	for status, n := range stats.FilesByStatus {
		byStatus[string(status)] = n
	}

	return &StatusResult{
		Files:         stats.Files,
		FilesByStatus: byStatus,
		Entities:      stats.Entities,
		Relationships: stats.Relationships,
		Chunks:        stats.Chunks,
		Dimension:     stats.Dimension,
		Provider:      stats.Provider,
		Model:         stats.Model,
		IndexSizeMB:   stats.IndexSizeMB,
		LastIndexedAt: stats.LastIndexedAt,
	}, nil
}

// parseKinds validates relationship kind names; none means all kinds
func parseKinds(names []string) ([]types.RelationKind, error) {
	if len(names) == 0 {
		return nil, nil
	}
	kinds := make([]types.RelationKind, 0, len(names))
	seen := make(map[types.RelationKind]bool, len(names))
	for _, name := range names {
		k, err := types.ParseRelationKind(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
