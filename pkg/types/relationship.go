package types

import (
	"fmt"
	"strings"
)

// RelationKind represents the type of a directed edge between entities
type RelationKind string

const (
	RelCalls     RelationKind = "calls"
	RelInherits  RelationKind = "inherits"
	RelIncludes  RelationKind = "includes"
	RelUses      RelationKind = "uses"
	RelOverrides RelationKind = "overrides"
)

// RelationKinds lists every valid relationship kind
var RelationKinds = []RelationKind{RelCalls, RelInherits, RelIncludes, RelUses, RelOverrides}

// Valid reports whether k is one of the known relationship kinds
func (k RelationKind) Valid() bool {
	switch k {
	case RelCalls, RelInherits, RelIncludes, RelUses, RelOverrides:
		return true
	}
	return false
}

// ParseRelationKind converts a string into a RelationKind
func ParseRelationKind(s string) (RelationKind, error) {
	k := RelationKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: relationship kind %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Relationship is a symbolic edge produced by the parser. Endpoints are
// names, not ids; the indexer resolves them against the graph.
type Relationship struct {
	Kind    RelationKind
	From    string // Qualified name of the source entity; empty when file-level or outside any entity
	To      string // Target text as written in source
	Context string
	Line    int
}

// FileLevel reports whether the edge has no source entity
func (r *Relationship) FileLevel() bool {
	return r.From == ""
}

// TrailingIdentifier returns the bare identifier at the end of a symbolic
// target: template arguments are dropped and the text after the last
// "::", "." or "->" is kept.
func TrailingIdentifier(target string) string {
	s := strings.TrimSpace(target)
	if idx := strings.Index(s, "<"); idx > 0 {
		s = s[:idx]
	}
	for _, sep := range []string{ScopeSeparator, "->", "."} {
		if idx := strings.LastIndex(s, sep); idx >= 0 {
			s = s[idx+len(sep):]
		}
	}
	return strings.TrimSpace(s)
}
