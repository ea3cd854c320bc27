package chunker

import (
	"strings"

	"github.com/dshills/cppgraph-mcp/pkg/types"
)

const (
	// MaxEntityLines is the longest entity stored as one chunk; longer
	// entities keep only their head
	MaxEntityLines = 100

	// CommentScanLines bounds the upward scan for a leading comment block
	CommentScanLines = 20

	// MinCommentLines is the number of comment lines a block must exceed
	MinCommentLines = 2

	// CommentSnippetChars is how much entity text follows a comment block
	CommentSnippetChars = 200

	// WindowLines and WindowStep shape the fallback windows (20-line overlap)
	WindowLines = 100
	WindowStep  = 80

	// MinWindowChars drops windows whose trimmed text is shorter
	MinWindowChars = 50
)

// Chunker creates retrieval chunks from C++ source text and the entities found in it
type Chunker struct{}

// New creates a new Chunker instance
func New() *Chunker {
	return &Chunker{}
}

// ChunkEntities creates one chunk per entity, plus a comment_block chunk for
// every entity preceded by a substantial comment
func (c *Chunker) ChunkEntities(content []byte, entities []types.Entity) []types.Chunk {
	lines := splitLines(string(content))
	chunks := make([]types.Chunk, 0, len(entities))

	for i := range entities {
		e := &entities[i]
		if e.StartLine <= 0 || e.StartLine > len(lines) {
			continue
		}

		chunks = append(chunks, c.entityChunk(e, lines))

		if cb, ok := c.commentChunk(e, lines); ok {
			chunks = append(chunks, cb)
		}
	}

	return chunks
}

// entityChunk covers the entity's line range, truncated to MaxEntityLines
func (c *Chunker) entityChunk(e *types.Entity, lines []string) types.Chunk {
	entityLines := sliceLines(lines, e.StartLine, e.EndLine)

	chunk := types.Chunk{
		EntityName: e.QualifiedName,
		Kind:       KindFor(e),
		StartLine:  e.StartLine,
		EndLine:    e.EndLine,
		Metadata:   map[string]any{},
	}

	if len(entityLines) > MaxEntityLines {
		chunk.Content = strings.Join(entityLines[:MaxEntityLines], "\n")
		chunk.EndLine = e.StartLine + MaxEntityLines - 1
		chunk.Metadata[types.MetaTruncated] = true
		chunk.Metadata[types.MetaOriginalEnd] = e.EndLine
	} else {
		chunk.Content = strings.Join(entityLines, "\n")
	}

	return chunk
}

// commentChunk scans upward from the line above the entity for comment lines
func (c *Chunker) commentChunk(e *types.Entity, lines []string) (types.Chunk, bool) {
	if e.StartLine <= 1 {
		return types.Chunk{}, false
	}

	var collected []string
	first := 0
	// idx is 0-based; the entity itself sits at StartLine-1
	for idx := e.StartLine - 2; idx >= 0 && idx >= e.StartLine-1-CommentScanLines; idx-- {
		trimmed := strings.TrimSpace(lines[idx])
		if trimmed == "" {
			continue
		}
		if !isCommentLine(trimmed) {
			break
		}
		collected = append(collected, lines[idx])
		first = idx + 1
	}

	if len(collected) <= MinCommentLines {
		return types.Chunk{}, false
	}

	// collected is in bottom-up order
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}

	entityText := strings.Join(sliceLines(lines, e.StartLine, e.EndLine), "\n")

	return types.Chunk{
		EntityName: e.QualifiedName,
		Kind:       types.ChunkCommentBlock,
		Content:    strings.Join(collected, "\n") + "\n\n" + truncateRunes(entityText, CommentSnippetChars),
		StartLine:  first,
		EndLine:    e.StartLine,
		Metadata:   map[string]any{types.MetaCommentFor: e.QualifiedName},
	}, true
}

// Windows splits content into overlapping fixed-size windows. It is used
// when a file cannot be parsed structurally.
func Windows(content []byte) []types.Chunk {
	lines := splitLines(string(content))
	var chunks []types.Chunk

	for i := 0; i < len(lines); i += WindowStep {
		end := i + WindowLines
		if end > len(lines) {
			end = len(lines)
		}
		text := strings.Join(lines[i:end], "\n")
		if len(strings.TrimSpace(text)) < MinWindowChars {
			continue
		}
		chunks = append(chunks, types.Chunk{
			Kind:      types.ChunkMixed,
			Content:   text,
			StartLine: i + 1,
			EndLine:   end,
			Metadata:  map[string]any{types.MetaFallback: true},
		})
	}

	return chunks
}

// KindFor maps an entity to the kind of chunk that holds its text
func KindFor(e *types.Entity) types.ChunkKind {
	switch e.Kind {
	case types.KindFunction:
		if e.IsDefinition() {
			return types.ChunkImplementation
		}
		return types.ChunkDeclaration
	case types.KindClass, types.KindStruct:
		return types.ChunkDeclaration
	default:
		return types.ChunkMixed
	}
}

func isCommentLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "/*") ||
		strings.HasPrefix(trimmed, "*")
}

// splitLines splits on line breaks without producing a trailing empty line
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

// sliceLines returns lines start..end (1-based, inclusive), clamped to the file
func sliceLines(lines []string, start, end int) []string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return nil
	}
	return lines[start-1 : end]
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
