package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/cppgraph-mcp/internal/embedder"
	"github.com/dshills/cppgraph-mcp/internal/storage"
	"github.com/dshills/cppgraph-mcp/pkg/types"
)

// Search scopes
const (
	ScopeAll       = "all"
	ScopeFunctions = "functions"
	ScopeClasses   = "classes"
	ScopeFiles     = "files"
)

const (
	// DefaultSearchLimit is k when the caller passes zero
	DefaultSearchLimit = 10
	// MaxSearchLimit bounds k
	MaxSearchLimit = 100
)

// SearchResponse is the answer to SemanticSearch
type SearchResponse struct {
	Query        string               `json:"query"`
	Scope        string               `json:"scope"`
	Results      []types.SearchResult `json:"results"`
	TotalResults int                  `json:"total_results"`
	CacheHit     bool                 `json:"cache_hit"`
	Duration     time.Duration        `json:"duration_ns"`
}

// cacheEntry is a cached search response with its expiry
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// SemanticSearch embeds query and returns the k chunks closest to it,
// restricted by scope. Similarity is 1 minus the cosine distance.
func (e *Engine) SemanticSearch(ctx context.Context, query, scope string, k int) (resp *SearchResponse, err error) {
	start := time.Now()
	defer func() { e.observe("search", start, err) }()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidArgument)
	}
	if scope == "" {
		scope = ScopeAll
	}
	switch scope {
	case ScopeAll, ScopeFunctions, ScopeClasses, ScopeFiles:
	default:
		return nil, fmt.Errorf("%w: scope %q", ErrInvalidArgument, scope)
	}
	if k <= 0 {
		k = DefaultSearchLimit
	}
	k = min(k, MaxSearchLimit)

	key := cacheKey(query, scope, k)
	if cached := e.cached(key); cached != nil {
		cached.Duration = time.Since(start)
		return cached, nil
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	results, err := e.search(ctx, query, storage.ScopeFilter(scope), k)
	if err != nil {
		return nil, err
	}

	resp = &SearchResponse{
		Query:        query,
		Scope:        scope,
		Results:      results,
		TotalResults: len(results),
		Duration:     time.Since(start),
	}
	if len(results) > 0 {
		e.store(key, resp)
	}
	return resp, nil
}

// search runs one vector query and loads the matching chunks
func (e *Engine) search(ctx context.Context, query string, filter *storage.SearchFilter, k int) ([]types.SearchResult, error) {
	vector, err := e.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := e.storage.SearchVector(ctx, vector, k, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	results := make([]types.SearchResult, 0, len(hits))
	for _, hit := range hits {
		chunk, err := e.storage.GetChunk(ctx, hit.ChunkID)
		if errors.Is(err, storage.ErrNotFound) {
			continue // replaced by a concurrent re-index
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load chunk: %w", err)
		}

		result := types.SearchResult{
			ChunkID:    chunk.ID,
			Rank:       len(results) + 1,
			Similarity: hit.Similarity,
			Kind:       chunk.Kind,
			FilePath:   chunk.FilePath,
			StartLine:  chunk.StartLine,
			EndLine:    chunk.EndLine,
			Content:    chunk.Content,
		}
		if chunk.EntityID != nil {
			entity, err := e.storage.GetEntity(ctx, *chunk.EntityID)
			if err == nil {
				ref := entity.Ref()
				result.Entity = &ref
			} else if !errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("failed to load entity: %w", err)
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// embed encodes query text. Concurrent identical queries share one call,
// which runs detached from any single caller; each caller still honors its
// own ctx.
func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	ch := e.group.DoChan(text, func() (interface{}, error) {
		shared, cancel := e.bound(context.WithoutCancel(ctx))
		defer cancel()

		emb, err := e.embedder.GenerateEmbedding(shared, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		if err := embedder.CheckDimension(emb, e.storage.Dimension()); err != nil {
			return nil, err
		}
		return emb.Vector, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to embed query: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", res.Err)
		}
		return res.Val.([]float32), nil
	}
}

func cacheKey(query, scope string, k int) string {
	return query + "\x00" + scope + "\x00" + strconv.Itoa(k)
}

// cached returns a copy of a live cache entry, or nil
func (e *Engine) cached(key string) *SearchResponse {
	if e.cache == nil {
		return nil
	}
	entry, ok := e.cache.Get(key)
	if !ok {
		searchCacheTotal.WithLabelValues("miss").Inc()
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		e.cache.Remove(key)
		searchCacheTotal.WithLabelValues("expired").Inc()
		return nil
	}
	searchCacheTotal.WithLabelValues("hit").Inc()

	resp := copyResponse(entry.response)
	resp.CacheHit = true
	return resp
}

func (e *Engine) store(key string, resp *SearchResponse) {
	if e.cache == nil || e.cacheTTL <= 0 {
		return
	}
	e.cache.Add(key, &cacheEntry{
		response:  copyResponse(resp),
		expiresAt: time.Now().Add(e.cacheTTL),
	})
}

// InvalidateCache drops every cached search response. Callers invoke it
// after the index changes.
func (e *Engine) InvalidateCache() {
	if e.cache != nil {
		e.cache.Purge()
	}
}

// copyResponse deep copies a response so cached entries are never shared
func copyResponse(src *SearchResponse) *SearchResponse {
	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, r := range src.Results {
		dst.Results[i] = r
		if r.Entity != nil {
			ref := *r.Entity
			dst.Results[i].Entity = &ref
		}
	}
	return &dst
}
