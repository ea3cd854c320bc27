package parser

import "errors"

var (
	// ErrFileTooLarge is returned when content exceeds the configured size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")

	// ErrInvalidContent is returned when content is not valid UTF-8 text.
	ErrInvalidContent = errors.New("invalid content")

	// ErrSyntax is returned in strict mode when the syntax tree contains errors.
	ErrSyntax = errors.New("source contains syntax errors")

	// ErrNoTree is returned when tree-sitter produces no root node.
	ErrNoTree = errors.New("tree-sitter returned nil root node")
)
