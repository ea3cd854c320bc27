package types

import (
	"errors"
	"fmt"
	"strings"
)

// ChunkKind represents the kind of text a chunk holds
type ChunkKind string

const (
	ChunkImplementation ChunkKind = "implementation"
	ChunkDeclaration    ChunkKind = "declaration"
	ChunkCommentBlock   ChunkKind = "comment_block"
	ChunkMixed          ChunkKind = "mixed"
)

// Valid reports whether k is one of the known chunk kinds
func (k ChunkKind) Valid() bool {
	switch k {
	case ChunkImplementation, ChunkDeclaration, ChunkCommentBlock, ChunkMixed:
		return true
	}
	return false
}

// ParseChunkKind converts a string into a ChunkKind
func ParseChunkKind(s string) (ChunkKind, error) {
	k := ChunkKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: chunk kind %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Chunk represents a span of source text that will be embedded for similarity search
type Chunk struct {
	// Linkage
	EntityName string // Qualified name of the owning entity; empty for file-level chunks

	// Content
	Kind    ChunkKind
	Content string

	// Location (1-based, inclusive)
	StartLine int
	EndLine   int

	Metadata map[string]any
}

// ValidateContent checks if the chunk content is valid
func (c *Chunk) ValidateContent() error {
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}

	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}

	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}

	return nil
}

// Validate performs comprehensive validation of the chunk
func (c *Chunk) Validate() error {
	if err := c.ValidateContent(); err != nil {
		return err
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: chunk kind %q", ErrInvalidKind, c.Kind)
	}
	return nil
}

// Truncated reports whether the chunk holds only the head of a longer entity
func (c *Chunk) Truncated() bool {
	v, _ := c.Metadata[MetaTruncated].(bool)
	return v
}
