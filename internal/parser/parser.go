package parser

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
	"go.uber.org/zap"

	"github.com/dshills/cppgraph-mcp/internal/chunker"
	"github.com/dshills/cppgraph-mcp/pkg/types"
)

const (
	// DefaultMaxFileSize is the maximum file size the parser will accept (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// WarnFileSize is the threshold at which a warning is logged (1MB).
	WarnFileSize = 1 * 1024 * 1024

	// maxSyntaxErrors caps the syntax errors recorded per file
	maxSyntaxErrors = 20
)

// Option configures a Parser.
type Option func(*Parser)

// WithMaxFileSize sets the maximum accepted content size in bytes.
func WithMaxFileSize(bytes int64) Option {
	return func(p *Parser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithStrictSyntax makes a tree with syntax errors a structural failure.
func WithStrictSyntax(strict bool) Option {
	return func(p *Parser) {
		p.strict = strict
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// Parser extracts entities, relationships and chunks from C++ source.
//
// Parser holds configuration only; each Parse call creates its own
// tree-sitter parser, so one Parser is safe for concurrent use.
type Parser struct {
	maxFileSize int64
	strict      bool
	logger      *zap.Logger
	chunker     *chunker.Chunker
}

// New creates a new Parser instance
func New(opts ...Option) *Parser {
	p := &Parser{
		maxFileSize: DefaultMaxFileSize,
		logger:      zap.NewNop(),
		chunker:     chunker.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses C++ source content. A returned error is a structural
// failure: the content is too large, not UTF-8, could not be turned into a
// tree, or (in strict mode) contains syntax errors. In non-strict mode
// syntax errors are recorded in the result and extraction proceeds on the
// recovered tree.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) (*types.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		p.logger.Warn("parsing large file",
			zap.String("file", path),
			zap.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(cpp.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := tree.RootNode()
	if root == nil {
		return nil, ErrNoTree
	}

	result := &types.ParseResult{Path: path}

	if root.HasError() {
		if p.strict {
			return nil, fmt.Errorf("%w: %s", ErrSyntax, path)
		}
		collectSyntaxErrors(root, path, result)
	}

	c := &collector{src: content}
	c.walkEntities(root, rootScope())
	c.walkRelations(root, rootScope())

	result.Entities = c.entities
	result.Relationships = c.relationships
	result.Chunks = p.chunker.ChunkEntities(content, c.entities)

	return result, nil
}

// ParseWithFallback parses content and, on a structural failure, returns a
// fallback result holding only windowed chunks. Cancellation is returned as
// an error instead of falling back.
func (p *Parser) ParseWithFallback(ctx context.Context, path string, content []byte) (*types.ParseResult, error) {
	result, err := p.Parse(ctx, path, content)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	p.logger.Debug("structural parse failure, using windowed chunks",
		zap.String("file", path),
		zap.Error(err))

	return Fallback(path, content, err), nil
}

// Fallback builds the result used for a file that could not be parsed
func Fallback(path string, content []byte, cause error) *types.ParseResult {
	result := &types.ParseResult{
		Path:     path,
		Chunks:   chunker.Windows(content),
		Fallback: true,
	}
	if cause != nil {
		result.AddError(path, 0, 0, cause.Error())
	}
	return result
}

// collectSyntaxErrors records ERROR and MISSING nodes, up to maxSyntaxErrors
func collectSyntaxErrors(root *sitter.Node, path string, result *types.ParseResult) {
	stack := []*sitter.Node{root}
	for len(stack) > 0 && len(result.Errors) < maxSyntaxErrors {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.IsError() || n.IsMissing() {
			msg := "syntax error"
			if n.IsMissing() {
				msg = fmt.Sprintf("missing %s", n.Type())
			}
			result.AddError(path, startLine(n), int(n.StartPoint().Column), msg)
			continue
		}

		if !n.HasError() {
			continue
		}
		// push in reverse so errors are reported in source order
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, n.Child(i))
		}
	}

	if len(result.Errors) == 0 {
		result.AddError(path, 0, 0, ErrSyntax.Error())
	}
}
