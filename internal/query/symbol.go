package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/cppgraph-mcp/internal/storage"
	"github.com/dshills/cppgraph-mcp/pkg/types"
)

// SymbolResult is the answer to FindSymbol
type SymbolResult struct {
	Query        string            `json:"query"`
	Found        bool              `json:"found"`
	Symbol       *types.EntityRef  `json:"symbol,omitempty"`
	Code         string            `json:"code,omitempty"`
	Usages       []types.Edge      `json:"usages,omitempty"`
	TotalUsages  int               `json:"total_usages"`
	OtherMatches []types.EntityRef `json:"other_matches,omitempty"`
}

// FindSymbol resolves name to its best match and returns its code and up
// to maxUsages incoming edges ordered by file path then line. The remaining
// candidates are listed as other matches.
func (e *Engine) FindSymbol(ctx context.Context, name string, includeUsages bool, maxUsages int) (result *SymbolResult, err error) {
	defer func(start time.Time) { e.observe("find_symbol", start, err) }(time.Now())

	ctx, cancel := e.bound(ctx)
	defer cancel()

	matches, err := e.candidates(ctx, name, MaxSymbolCandidates)
	if err != nil {
		return nil, err
	}

	result = &SymbolResult{Query: name}
	if len(matches) == 0 {
		return result, nil
	}

	top := matches[0]
	ref := top.Ref()
	result.Found = true
	result.Symbol = &ref

	if result.Code, err = e.code(ctx, top.ID); err != nil {
		return nil, err
	}

	if includeUsages {
		if maxUsages <= 0 {
			maxUsages = DefaultMaxUsages
		}
		edges, err := e.storage.ListRelationships(ctx, top.ID, storage.Incoming, nil, maxUsages)
		if err != nil {
			return nil, fmt.Errorf("failed to list usages: %w", err)
		}
		result.Usages = make([]types.Edge, 0, len(edges))
		for _, edge := range edges {
			result.Usages = append(result.Usages, types.Edge{
				Kind:    edge.Kind,
				From:    edge.Other.Ref(),
				To:      ref,
				Context: edge.Context,
				Line:    edge.Line,
			})
		}
		result.TotalUsages = len(result.Usages)
	}

	for _, m := range matches[1:] {
		result.OtherMatches = append(result.OtherMatches, m.Ref())
	}
	return result, nil
}

// ExplainResult is the answer to ExplainEntity
type ExplainResult struct {
	Query   string            `json:"query"`
	Found   bool              `json:"found"`
	Entity  *types.EntityRef  `json:"entity,omitempty"`
	Code    string            `json:"code,omitempty"`
	Callers []types.EntityRef `json:"callers,omitempty"`
	Callees []types.EntityRef `json:"callees,omitempty"`
}

// ExplainEntity summarises the best match for name with its code and the
// distinct entities that call it and that it calls
func (e *Engine) ExplainEntity(ctx context.Context, name string, includeCallers, includeCallees bool) (result *ExplainResult, err error) {
	defer func(start time.Time) { e.observe("explain", start, err) }(time.Now())

	ctx, cancel := e.bound(ctx)
	defer cancel()

	matches, err := e.candidates(ctx, name, 1)
	if err != nil {
		return nil, err
	}

	result = &ExplainResult{Query: name}
	if len(matches) == 0 {
		return result, nil
	}

	top := matches[0]
	ref := top.Ref()
	result.Found = true
	result.Entity = &ref

	if result.Code, err = e.code(ctx, top.ID); err != nil {
		return nil, err
	}

	calls := []types.RelationKind{types.RelCalls}
	if includeCallers {
		if result.Callers, err = e.related(ctx, top.ID, storage.Incoming, calls); err != nil {
			return nil, err
		}
	}
	if includeCallees {
		if result.Callees, err = e.related(ctx, top.ID, storage.Outgoing, calls); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// related returns the distinct far-end entities of an entity's edges
func (e *Engine) related(ctx context.Context, entityID int64, dir storage.Direction, kinds []types.RelationKind) ([]types.EntityRef, error) {
	edges, err := e.storage.ListRelatedEntities(ctx, entityID, dir, kinds, MaxRelatedEntities)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s edges: %w", dir, err)
	}

	seen := make(map[int64]bool, len(edges))
	refs := make([]types.EntityRef, 0, len(edges))
	for _, edge := range edges {
		if seen[edge.Other.ID] {
			continue
		}
		seen[edge.Other.ID] = true
		refs = append(refs, edge.Other.Ref())
	}
	return refs, nil
}

// LocationResult is the answer to FindCodeAtLocation
type LocationResult struct {
	Path   string           `json:"path"`
	Line   int              `json:"line"`
	Found  bool             `json:"found"`
	Entity *types.EntityRef `json:"entity,omitempty"`
	Code   string           `json:"code,omitempty"`
}

// FindCodeAtLocation returns the smallest entity enclosing line in a file
// whose stored path contains the base name of path. Either separator is
// accepted in path.
func (e *Engine) FindCodeAtLocation(ctx context.Context, path string, line int) (result *LocationResult, err error) {
	defer func(start time.Time) { e.observe("find_location", start, err) }(time.Now())

	base := baseName(path)
	if base == "" {
		return nil, fmt.Errorf("%w: path %q has no file name", ErrInvalidArgument, path)
	}
	if line <= 0 {
		return nil, fmt.Errorf("%w: line must be positive, got %d", ErrInvalidArgument, line)
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	result = &LocationResult{Path: path, Line: line}

	entity, err := e.storage.EntityAtLocation(ctx, base, line)
	if errors.Is(err, storage.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entity at location: %w", err)
	}

	ref := entity.Ref()
	result.Found = true
	result.Entity = &ref
	if result.Code, err = e.code(ctx, entity.ID); err != nil {
		return nil, err
	}
	return result, nil
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
