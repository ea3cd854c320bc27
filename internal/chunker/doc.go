// Package chunker divides C++ source text into chunks for embedding and search.
//
// Chunks follow entity boundaries reported by the parser:
//   - Function definitions become implementation chunks
//   - Function declarations, classes and structs become declaration chunks
//   - Namespaces and enums become mixed chunks
//
// An entity longer than MaxEntityLines keeps only its first MaxEntityLines
// lines; the chunk metadata records "truncated" and the entity's real
// "original_end" line.
//
// A comment of more than two lines directly above an entity (blank lines
// allowed in between) yields an extra comment_block chunk holding the
// comment followed by the first 200 characters of the entity.
//
// # Fallback
//
// When a file cannot be parsed, Windows cuts it into 100-line windows that
// overlap by 20 lines:
//
//	chunks := chunker.Windows(content)
//
// Windows with less than 50 characters of non-space text are skipped.
package chunker
