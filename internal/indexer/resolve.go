package indexer

import (
	"context"
	"errors"
	"sync"

	"github.com/dshills/cppgraph-mcp/internal/storage"
	"github.com/dshills/cppgraph-mcp/pkg/types"
)

// Lookup is the part of the store the resolver reads from. During a file
// write it is the open transaction.
type Lookup interface {
	LookupEntityByQualifiedName(ctx context.Context, qualifiedName string) (int64, error)
	LookupEntityBySimpleName(ctx context.Context, simpleName string) (int64, error)
}

// FileMap holds the entities written for one file in the current pass
type FileMap struct {
	qualified map[string]int64
	simple    map[string]int64
}

// NewFileMap creates an empty file map
func NewFileMap() *FileMap {
	return &FileMap{
		qualified: make(map[string]int64),
		simple:    make(map[string]int64),
	}
}

// Add records an entity. The first entity with a name wins unless a later
// one is a definition.
func (m *FileMap) Add(e *types.Entity, id int64) {
	if _, ok := m.qualified[e.QualifiedName]; !ok || e.IsDefinition() {
		m.qualified[e.QualifiedName] = id
	}
	if _, ok := m.simple[e.SimpleName]; !ok || e.IsDefinition() {
		m.simple[e.SimpleName] = id
	}
}

// Qualified returns the id stored for a qualified name
func (m *FileMap) Qualified(name string) (int64, bool) {
	id, ok := m.qualified[name]
	return id, ok
}

// Len returns the number of distinct qualified names
func (m *FileMap) Len() int {
	return len(m.qualified)
}

// Resolver maps symbolic relationship endpoints to entity ids. One
// Resolver serves one indexing run and is shared by its workers.
type Resolver struct {
	mu        sync.RWMutex
	qualified map[string]int64
	simple    map[string]int64
}

// NewResolver creates a resolver with an empty run cache
func NewResolver() *Resolver {
	return &Resolver{
		qualified: make(map[string]int64),
		simple:    make(map[string]int64),
	}
}

// Remember adds a committed file's entities to the run cache, replacing ids
// from an earlier pass over the same names
func (r *Resolver) Remember(m *FileMap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, id := range m.qualified {
		r.qualified[name] = id
	}
	for name, id := range m.simple {
		r.simple[name] = id
	}
}

func (r *Resolver) cached(table map[string]int64, name string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := table[name]
	return id, ok
}

func (r *Resolver) memo(table map[string]int64, name string, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := table[name]; !ok {
		table[name] = id
	}
}

// qualifiedID tries the file map, the run cache and finally the store
func (r *Resolver) qualifiedID(ctx context.Context, q Lookup, m *FileMap, name string) (int64, bool, error) {
	if name == "" {
		return 0, false, nil
	}
	if id, ok := m.Qualified(name); ok {
		return id, true, nil
	}
	if id, ok := r.cached(r.qualified, name); ok {
		return id, true, nil
	}

	id, err := q.LookupEntityByQualifiedName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	r.memo(r.qualified, name, id)
	return id, true, nil
}

func (r *Resolver) simpleID(ctx context.Context, q Lookup, m *FileMap, name string) (int64, bool, error) {
	if name == "" {
		return 0, false, nil
	}
	if id, ok := m.simple[name]; ok {
		return id, true, nil
	}
	if id, ok := r.cached(r.simple, name); ok {
		return id, true, nil
	}

	id, err := q.LookupEntityBySimpleName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	r.memo(r.simple, name, id)
	return id, true, nil
}

// ResolveFrom resolves the source of an edge by exact qualified name
func (r *Resolver) ResolveFrom(ctx context.Context, q Lookup, m *FileMap, from string) (int64, bool, error) {
	return r.qualifiedID(ctx, q, m, from)
}

// ResolveTo resolves the target of an edge. The target text is tried as
// written, then qualified by each scope enclosing from (innermost first),
// then by its bare trailing identifier against simple names.
func (r *Resolver) ResolveTo(ctx context.Context, q Lookup, m *FileMap, from, to string) (int64, bool, error) {
	if id, ok, err := r.qualifiedID(ctx, q, m, to); ok || err != nil {
		return id, ok, err
	}

	for scope := types.ParentQualifiedName(from); scope != ""; scope = types.ParentQualifiedName(scope) {
		if id, ok, err := r.qualifiedID(ctx, q, m, types.JoinScope(scope, to)); ok || err != nil {
			return id, ok, err
		}
	}

	return r.simpleID(ctx, q, m, types.TrailingIdentifier(to))
}
