// Package parser extracts entities, relationships and chunks from C++ source
// using tree-sitter.
//
// # Basic Usage
//
//	p := parser.New(parser.WithLogger(logger))
//	result, err := p.Parse(ctx, "src/render.cpp", content)
//	if err != nil {
//	    // structural failure: the caller indexes windowed chunks instead
//	    result = parser.Fallback("src/render.cpp", content, err)
//	}
//
// ParseWithFallback performs both steps.
//
// # Entities
//
// Namespaces, classes, structs, enums and functions become entities. The
// qualified name is the lexical nesting path:
//
//	namespace A { class B { void c() {} }; }   // A, A::B, A::B::c
//	void A::B::d() {}                          // A::B::d
//
// Function bodies are not searched for nested entities. Forward
// declarations of classes are not entities; function declarations are, with
// metadata is_definition=false.
//
// # Relationships
//
// A second pass over the tree emits symbolic edges:
//   - inherits: one per base in a class's base clause
//   - calls: one per call expression, attributed to the enclosing function
//   - includes: one per #include, file-level
//   - overrides: a member declared override, to Base::name for each base
//   - uses: a data member whose type is a named type
//
// Edge endpoints are names. Resolving them to stored entities is the
// indexer's job.
//
// # Error Handling
//
// Oversized content, invalid UTF-8, a failed or cancelled tree-sitter parse
// and (with WithStrictSyntax) syntax errors are structural failures and
// return an error. Otherwise syntax errors are recorded in
// ParseResult.Errors and whatever tree-sitter recovered is extracted.
package parser
