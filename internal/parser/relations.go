package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/cppgraph-mcp/pkg/types"
)

// MaxContextChars bounds the call text kept as edge context
const MaxContextChars = 200

func (c *collector) addRelationship(r types.Relationship) {
	c.relationships = append(c.relationships, r)
}

// walkRelations is the second pass. It threads the same scope as the
// entity pass plus the enclosing function, and does enter function bodies.
func (c *collector) walkRelations(n *sitter.Node, s scope) {
	switch n.Type() {
	case "preproc_include":
		c.include(n)
		return
	case "namespace_definition":
		body := n.ChildByFieldName("body")
		if body != nil {
			c.walkRelationChildren(body, s.withNamespace(namespaceSegments(nodeText(n.ChildByFieldName("name"), c.src))...))
		}
		return
	case "class_specifier", "struct_specifier":
		if c.inherits(n, s) {
			return
		}
	case "function_definition":
		if c.functionBody(n, s) {
			return
		}
	case "field_declaration":
		if s.inClass() {
			c.member(n, s)
		}
	case "call_expression":
		c.call(n, s)
	}
	c.walkRelationChildren(n, s)
}

func (c *collector) walkRelationChildren(n *sitter.Node, s scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c.walkRelations(n.NamedChild(i), s)
	}
}

func (c *collector) include(n *sitter.Node) {
	path := n.ChildByFieldName("path")
	if path == nil {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "string_literal" || child.Type() == "system_lib_string" {
				path = child
				break
			}
		}
	}
	if path == nil {
		return
	}

	target := strings.Trim(strings.TrimSpace(path.Content(c.src)), `"<>`)
	if target == "" {
		return
	}
	c.addRelationship(types.Relationship{
		Kind:    types.RelIncludes,
		To:      target,
		Context: strings.TrimSpace(n.Content(c.src)),
		Line:    startLine(n),
	})
}

// inherits emits one edge per base class and walks the class body. It
// returns false for bodyless or anonymous specifiers, which are walked
// generically.
func (c *collector) inherits(n *sitter.Node, s scope) bool {
	body := n.ChildByFieldName("body")
	name := n.ChildByFieldName("name")
	if body == nil || name == nil {
		return false
	}

	kind := entityKindFor(n.Type())
	nameText := compact(name.Content(c.src))
	qualified := s.qualify(nameText)
	bases := baseSpecifiers(n, c.src)

	for _, base := range bases {
		c.addRelationship(types.Relationship{
			Kind:    types.RelInherits,
			From:    qualified,
			To:      base,
			Context: string(kind) + " " + nameText + " : " + base,
			Line:    startLine(n),
		})
	}

	c.walkRelationChildren(body, s.withClass(nameText, qualified, bases, kind == types.KindStruct))
	return true
}

// functionBody attributes everything below a function definition to it
func (c *collector) functionBody(n *sitter.Node, s scope) bool {
	fd := unwrapFunctionDeclarator(n.ChildByFieldName("declarator"))
	if fd == nil {
		return false
	}
	full, simple := declaratorName(fd, c.src)
	if simple == "" {
		return false
	}

	qualified := s.qualify(full)
	c.overrides(fd, qualified, simple, s)
	c.walkRelationChildren(n, s.withFunction(qualified))
	return true
}

// member handles a field declaration inside a class body: overriding method
// declarations and data members of a named type
func (c *collector) member(n *sitter.Node, s scope) {
	typeNode := n.ChildByFieldName("type")
	hasData := false

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if sameNode(child, typeNode) {
			continue
		}
		if fd := unwrapFunctionDeclarator(child); fd != nil {
			full, simple := declaratorName(fd, c.src)
			if simple != "" {
				c.overrides(fd, s.qualify(full), simple, s)
			}
			continue
		}
		switch child.Type() {
		case "field_identifier", "pointer_declarator", "reference_declarator", "array_declarator":
			hasData = true
		}
	}

	if !hasData {
		return
	}
	target := typeName(typeNode, c.src)
	if target == "" {
		return
	}
	c.addRelationship(types.Relationship{
		Kind:    types.RelUses,
		From:    s.class,
		To:      target,
		Context: truncate(compact(n.Content(c.src)), MaxContextChars),
		Line:    startLine(n),
	})
}

func (c *collector) overrides(fd *sitter.Node, qualified, simple string, s scope) {
	if !hasOverride(fd, c.src) {
		return
	}
	for _, base := range s.bases {
		c.addRelationship(types.Relationship{
			Kind:    types.RelOverrides,
			From:    qualified,
			To:      types.JoinScope(base, simple),
			Context: compact(fd.Content(c.src)),
			Line:    startLine(fd),
		})
	}
}

func (c *collector) call(n *sitter.Node, s scope) {
	fn := n.ChildByFieldName("function")
	if fn == nil {
		return
	}
	c.addRelationship(types.Relationship{
		Kind:    types.RelCalls,
		From:    s.function,
		To:      compact(fn.Content(c.src)),
		Context: truncate(n.Content(c.src), MaxContextChars),
		Line:    startLine(n),
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
