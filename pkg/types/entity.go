package types

import (
	"fmt"
	"strings"
)

// EntityKind represents the kind of C++ construct an entity describes
type EntityKind string

const (
	KindNamespace EntityKind = "namespace"
	KindClass     EntityKind = "class"
	KindStruct    EntityKind = "struct"
	KindFunction  EntityKind = "function"
	KindEnum      EntityKind = "enum"
)

// EntityKinds lists every valid entity kind
var EntityKinds = []EntityKind{KindNamespace, KindClass, KindStruct, KindFunction, KindEnum}

// Valid reports whether k is one of the known entity kinds
func (k EntityKind) Valid() bool {
	switch k {
	case KindNamespace, KindClass, KindStruct, KindFunction, KindEnum:
		return true
	}
	return false
}

// ParseEntityKind converts a string into an EntityKind
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: entity kind %q", ErrInvalidKind, s)
	}
	return k, nil
}

// ScopeSeparator joins the segments of a qualified name
const ScopeSeparator = "::"

// Entity represents a named code construct extracted from one source file
type Entity struct {
	// Identification
	Kind          EntityKind
	QualifiedName string // Lexical nesting path, e.g. A::B::c
	SimpleName    string

	// Content
	Signature string

	// Location (1-based, inclusive)
	StartLine int
	EndLine   int

	// Analysis
	Complexity int
	IsPublic   bool
	Metadata   map[string]any
}

// ParentName returns the qualified name with its last scope segment removed,
// or "" when the entity is at global scope
func (e *Entity) ParentName() string {
	return ParentQualifiedName(e.QualifiedName)
}

// IsDefinition reports whether a function entity carries a body
func (e *Entity) IsDefinition() bool {
	v, _ := e.Metadata[MetaIsDefinition].(bool)
	return v
}

// Validate checks the entity invariants
func (e *Entity) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: entity kind %q", ErrInvalidKind, e.Kind)
	}
	if e.QualifiedName == "" || e.SimpleName == "" {
		return ErrEmptyName
	}
	if e.StartLine <= 0 || e.EndLine < e.StartLine {
		return ErrInvalidRange
	}
	if e.Complexity < 1 {
		return ErrInvalidComplexity
	}
	return nil
}

// ParentQualifiedName strips the last "::" segment from a qualified name
func ParentQualifiedName(qualified string) string {
	idx := strings.LastIndex(qualified, ScopeSeparator)
	if idx <= 0 {
		return ""
	}
	return qualified[:idx]
}

// JoinScope builds a qualified name from scope segments
func JoinScope(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ScopeSeparator)
}

// Metadata keys shared by the parser, the store and the query layer
const (
	MetaHasTemplates = "has_templates"
	MetaIsDefinition = "is_definition"
	MetaTruncated    = "truncated"
	MetaOriginalEnd  = "original_end"
	MetaCommentFor   = "comment_for"
	MetaFallback     = "fallback"
)
