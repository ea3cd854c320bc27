package types

// EntityRef is a stored entity together with the file it was found in
type EntityRef struct {
	ID            int64      `json:"id"`
	Kind          EntityKind `json:"kind"`
	QualifiedName string     `json:"qualified_name"`
	SimpleName    string     `json:"simple_name"`
	Signature     string     `json:"signature,omitempty"`
	FilePath      string     `json:"file"`
	StartLine     int        `json:"start_line"`
	EndLine       int        `json:"end_line"`
	Complexity    int        `json:"complexity"`
	IsPublic      bool       `json:"is_public"`
}

// Edge is a resolved relationship between two stored entities
type Edge struct {
	Kind    RelationKind `json:"kind"`
	From    EntityRef    `json:"from"`
	To      EntityRef    `json:"to"`
	Context string       `json:"context,omitempty"`
	Line    int          `json:"line"`
	Depth   int          `json:"depth,omitempty"` // Hop distance from the traced entity
}

// SearchResult represents a single semantic search hit
type SearchResult struct {
	// Identification
	ChunkID int64 `json:"chunk_id"`
	Rank    int   `json:"rank"` // Position in result set (1-based)

	// Scoring
	Similarity float64 `json:"similarity"` // 1 - cosine distance

	// Location
	Kind      ChunkKind `json:"kind"`
	FilePath  string    `json:"file"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`

	// Owning entity, nil for file-level chunks
	Entity *EntityRef `json:"entity,omitempty"`

	Content string `json:"content"`
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.ChunkID == 0 {
		return ErrInvalidChunkID
	}

	if sr.Similarity < -1 || sr.Similarity > 1 {
		return ErrInvalidSimilarityScore
	}

	if sr.Content == "" {
		return ErrEmptyContent
	}

	return nil
}
