// Package types provides shared type definitions for the cppgraph MCP server.
//
// This package defines the domain vocabulary used across the parser, the
// indexer, the store and the query engine: entities, relationships, chunks,
// parse results and query result values.
//
// # Closed Kinds
//
// Entity, relationship and chunk kinds are closed string enumerations. Values
// coming from outside the process (tool arguments, CLI flags, database rows)
// go through the Parse functions, which reject unknown values:
//
//	kind, err := types.ParseEntityKind("class")
//	if err != nil {
//	    return err // wraps types.ErrInvalidKind
//	}
//
// # Qualified Names
//
// An entity's qualified name is its lexical nesting path joined with "::".
// For
//
//	namespace A { class B { void c() {} }; }
//
// the parser produces A, A::B and A::B::c. ParentQualifiedName strips the
// last segment and is how the indexer links an entity to its parent.
//
// # Symbolic Relationships
//
// Relationships produced by the parser carry names, not ids. The To side is
// the text found in source (a callee expression, a base class name, an
// include path). TrailingIdentifier reduces such text to the bare name used
// as the last-resort lookup key:
//
//	types.TrailingIdentifier("obj->render<int>") // "render"
//	types.TrailingIdentifier("gfx::Canvas")       // "Canvas"
package types
