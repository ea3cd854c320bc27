package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/cppgraph-mcp/pkg/types"
)

// Detail levels for GetContext
const (
	DetailBrief         = "brief"
	DetailDetailed      = "detailed"
	DetailComprehensive = "comprehensive"
)

// ContextEntity is one entity in a context answer
type ContextEntity struct {
	types.EntityRef
	Code string `json:"code,omitempty"`
}

// RelatedChunk is a semantically similar chunk attached to a context answer
type RelatedChunk struct {
	Entity     string  `json:"entity,omitempty"`
	FilePath   string  `json:"file"`
	StartLine  int     `json:"start_line"`
	EndLine    int     `json:"end_line"`
	Similarity float64 `json:"similarity"`
	Snippet    string  `json:"snippet"`
}

// ContextResult is the answer to GetContext
type ContextResult struct {
	Component   string          `json:"component"`
	Detail      string          `json:"detail"`
	Found       bool            `json:"found"`
	Entities    []ContextEntity `json:"entities"`
	RelatedCode []RelatedChunk  `json:"related_code,omitempty"`
}

// GetContext gathers the entities whose qualified name contains component,
// ordered by kind then name. Detailed and comprehensive answers carry each
// entity's code. With includeRelated the most similar chunks system-wide
// are attached as snippets.
func (e *Engine) GetContext(ctx context.Context, component, detail string, includeRelated bool) (result *ContextResult, err error) {
	defer func(start time.Time) { e.observe("context", start, err) }(time.Now())

	component = strings.TrimSpace(component)
	if component == "" {
		return nil, fmt.Errorf("%w: component cannot be empty", ErrInvalidArgument)
	}
	if detail == "" {
		detail = DetailDetailed
	}
	switch detail {
	case DetailBrief, DetailDetailed, DetailComprehensive:
	default:
		return nil, fmt.Errorf("%w: detail level %q", ErrInvalidArgument, detail)
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	entities, err := e.storage.SearchEntities(ctx, component, MaxContextEntities)
	if err != nil {
		return nil, fmt.Errorf("failed to search entities: %w", err)
	}

	result = &ContextResult{
		Component: component,
		Detail:    detail,
		Entities:  make([]ContextEntity, 0, len(entities)),
	}
	if len(entities) == 0 {
		return result, nil
	}
	result.Found = true

	withCode := detail != DetailBrief
	for _, entity := range entities {
		ce := ContextEntity{EntityRef: entity.Ref()}
		if withCode {
			if ce.Code, err = e.code(ctx, entity.ID); err != nil {
				return nil, err
			}
		}
		result.Entities = append(result.Entities, ce)
	}

	if includeRelated {
		hits, err := e.search(ctx, component, nil, RelatedChunks)
		if err != nil {
			return nil, err
		}
		result.RelatedCode = make([]RelatedChunk, 0, len(hits))
		for _, hit := range hits {
			rc := RelatedChunk{
				FilePath:   hit.FilePath,
				StartLine:  hit.StartLine,
				EndLine:    hit.EndLine,
				Similarity: hit.Similarity,
				Snippet:    truncateRunes(hit.Content, SnippetChars),
			}
			if hit.Entity != nil {
				rc.Entity = hit.Entity.QualifiedName
			}
			result.RelatedCode = append(result.RelatedCode, rc)
		}
	}
	return result, nil
}
