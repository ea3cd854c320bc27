package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidKind       = errors.New("invalid kind")
	ErrEmptyName         = errors.New("name cannot be empty")
	ErrInvalidRange      = errors.New("invalid line range")
	ErrInvalidComplexity = errors.New("complexity must be >= 1")

	// Query result errors
	ErrInvalidChunkID         = errors.New("invalid chunk ID")
	ErrInvalidSimilarityScore = errors.New("similarity score must be between -1 and 1")
	ErrEmptyContent           = errors.New("content cannot be empty")
)
