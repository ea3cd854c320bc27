package query

import (
	"context"
	"fmt"
	"time"

	"github.com/dshills/cppgraph-mcp/internal/storage"
	"github.com/dshills/cppgraph-mcp/pkg/types"
)

// Trace directions
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
	DirectionBoth     = "both"
)

const (
	// DefaultTraceDepth follows direct edges only
	DefaultTraceDepth = 1
	// MaxTraceDepth bounds multi-hop traces
	MaxTraceDepth = 5
	// maxTraceEdges caps the edges collected per direction over all hops
	maxTraceEdges = 500
)

// TraceResult is the answer to TraceDependencies
type TraceResult struct {
	Query     string           `json:"query"`
	Found     bool             `json:"found"`
	Target    *types.EntityRef `json:"target,omitempty"`
	Direction string           `json:"direction"`
	Depth     int              `json:"depth"`
	Incoming  []types.Edge     `json:"incoming"`
	Outgoing  []types.Edge     `json:"outgoing"`
	Truncated bool             `json:"truncated,omitempty"`
}

// TraceDependencies resolves target to its best match and walks its
// relationships breadth first. Depth 1 returns direct edges; each further
// hop expands the entities reached by the previous one. Kinds restrict the
// relationship kinds followed; none means all.
func (e *Engine) TraceDependencies(ctx context.Context, target, direction string, kinds []string, depth int) (result *TraceResult, err error) {
	defer func(start time.Time) { e.observe("trace", start, err) }(time.Now())

	if direction == "" {
		direction = DirectionBoth
	}
	if direction != DirectionIncoming && direction != DirectionOutgoing && direction != DirectionBoth {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidArgument, direction)
	}
	if depth == 0 {
		depth = DefaultTraceDepth
	}
	if depth < 1 || depth > MaxTraceDepth {
		return nil, fmt.Errorf("%w: depth must be between 1 and %d, got %d", ErrInvalidArgument, MaxTraceDepth, depth)
	}
	relKinds, err := parseKinds(kinds)
	if err != nil {
		return nil, err
	}

	ctx, cancel := e.bound(ctx)
	defer cancel()

	matches, err := e.candidates(ctx, target, 1)
	if err != nil {
		return nil, err
	}

	result = &TraceResult{
		Query:     target,
		Direction: direction,
		Depth:     depth,
		Incoming:  []types.Edge{},
		Outgoing:  []types.Edge{},
	}
	if len(matches) == 0 {
		return result, nil
	}

	root := matches[0]
	ref := root.Ref()
	result.Found = true
	result.Target = &ref

	if direction != DirectionOutgoing {
		edges, truncated, err := e.walk(ctx, root, storage.Incoming, relKinds, depth)
		if err != nil {
			return nil, err
		}
		result.Incoming = edges
		result.Truncated = result.Truncated || truncated
	}
	if direction != DirectionIncoming {
		edges, truncated, err := e.walk(ctx, root, storage.Outgoing, relKinds, depth)
		if err != nil {
			return nil, err
		}
		result.Outgoing = edges
		result.Truncated = result.Truncated || truncated
	}
	return result, nil
}

// walk collects edges in one direction up to depth hops from root. Each
// entity is expanded at most once.
func (e *Engine) walk(ctx context.Context, root *storage.Entity, dir storage.Direction, kinds []types.RelationKind, depth int) ([]types.Edge, bool, error) {
	refs := map[int64]types.EntityRef{root.ID: root.Ref()}
	visited := map[int64]bool{root.ID: true}
	frontier := []int64{root.ID}
	edges := make([]types.Edge, 0)

	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		var next []int64
		for _, id := range frontier {
			related, err := e.storage.ListRelatedEntities(ctx, id, dir, kinds, MaxEdgesPerDirection)
			if err != nil {
				return nil, false, fmt.Errorf("failed to list %s edges: %w", dir, err)
			}

			for _, edge := range related {
				other := edge.Other.Ref()
				edges = append(edges, orient(dir, refs[id], other, edge, hop))
				if len(edges) >= maxTraceEdges {
					return edges, true, nil
				}

				if !visited[other.ID] {
					visited[other.ID] = true
					refs[other.ID] = other
					next = append(next, other.ID)
				}
			}
		}
		frontier = next
	}
	return edges, false, nil
}

// orient builds an edge with From and To in graph order
func orient(dir storage.Direction, node, other types.EntityRef, edge *storage.Edge, hop int) types.Edge {
	out := types.Edge{
		Kind:    edge.Kind,
		Context: edge.Context,
		Line:    edge.Line,
		Depth:   hop,
	}
	if dir == storage.Incoming {
		out.From, out.To = other, node
	} else {
		out.From, out.To = node, other
	}
	return out
}
