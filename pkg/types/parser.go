package types

// ParseResult represents the output of parsing one C++ source file
type ParseResult struct {
	Path string

	// Extracted data
	Entities      []Entity
	Relationships []Relationship
	Chunks        []Chunk

	// Fallback is set when the file could not be parsed structurally and
	// only windowed chunks were produced
	Fallback bool

	// Errors are non-fatal problems (e.g. syntax errors tree-sitter recovered from)
	Errors []ParseError
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	return pe.Message
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// AddError adds a parsing error to the result
func (pr *ParseResult) AddError(file string, line, col int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{
		File:    file,
		Line:    line,
		Column:  col,
		Message: msg,
	})
}

// EntityNames returns the qualified names of all entities in extraction order
func (pr *ParseResult) EntityNames() []string {
	names := make([]string, len(pr.Entities))
	for i := range pr.Entities {
		names[i] = pr.Entities[i].QualifiedName
	}
	return names
}
