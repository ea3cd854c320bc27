package parser

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/cppgraph-mcp/pkg/types"
)

// collector accumulates the output of one Parse call
type collector struct {
	src           []byte
	entities      []types.Entity
	relationships []types.Relationship
}

func (c *collector) addEntity(n *sitter.Node, e types.Entity) {
	e.StartLine = startLine(n)
	e.EndLine = endLine(n)
	e.Complexity = complexity(n)
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	c.entities = append(c.entities, e)
}

// walkEntities dispatches on node type. Function bodies are never entered.
func (c *collector) walkEntities(n *sitter.Node, s scope) {
	switch n.Type() {
	case "namespace_definition":
		c.namespace(n, s)
	case "class_specifier", "struct_specifier":
		c.class(n, s)
	case "enum_specifier":
		c.enum(n, s)
	case "function_definition":
		c.functionDefinition(n, s)
	case "declaration", "field_declaration":
		c.declaration(n, s)
	case "function_declarator":
		c.functionDeclaration(n, n, s)
	default:
		c.walkEntityChildren(n, s)
	}
}

// walkEntityChildren visits children in order so access specifiers apply
// to the members that follow them
func (c *collector) walkEntityChildren(n *sitter.Node, s scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "access_specifier" {
			if s.inClass() {
				s = s.withAccess(isPublicAccess(child.Content(c.src)))
			}
			continue
		}
		c.walkEntities(child, s)
	}
}

func (c *collector) namespace(n *sitter.Node, s scope) {
	body := n.ChildByFieldName("body")
	name := n.ChildByFieldName("name")

	segments := namespaceSegments(nodeText(name, c.src))
	if len(segments) == 0 {
		// anonymous namespace: members keep the enclosing scope
		if body != nil {
			c.walkEntityChildren(body, s)
		}
		return
	}

	nameText := compact(nodeText(name, c.src))
	c.addEntity(n, types.Entity{
		Kind:          types.KindNamespace,
		QualifiedName: s.qualify(types.JoinScope(segments...)),
		SimpleName:    segments[len(segments)-1],
		Signature:     "namespace " + nameText,
		IsPublic:      true,
	})

	if body != nil {
		c.walkEntityChildren(body, s.withNamespace(segments...))
	}
}

func (c *collector) class(n *sitter.Node, s scope) {
	body := n.ChildByFieldName("body")
	name := n.ChildByFieldName("name")
	if body == nil || name == nil {
		return
	}

	kind := entityKindFor(n.Type())
	nameText := compact(name.Content(c.src))
	qualified := s.qualify(nameText)

	c.addEntity(n, types.Entity{
		Kind:          kind,
		QualifiedName: qualified,
		SimpleName:    types.TrailingIdentifier(nameText),
		Signature:     string(kind) + " " + nameText,
		IsPublic:      s.public,
		Metadata:      map[string]any{types.MetaHasTemplates: isTemplated(n)},
	})

	inner := s.withClass(nameText, qualified, baseSpecifiers(n, c.src), kind == types.KindStruct)
	c.walkEntityChildren(body, inner)
}

func (c *collector) enum(n *sitter.Node, s scope) {
	body := n.ChildByFieldName("body")
	name := n.ChildByFieldName("name")
	if body == nil || name == nil {
		return
	}

	nameText := compact(name.Content(c.src))
	c.addEntity(n, types.Entity{
		Kind:          types.KindEnum,
		QualifiedName: s.qualify(nameText),
		SimpleName:    types.TrailingIdentifier(nameText),
		Signature:     "enum " + nameText,
		IsPublic:      s.public,
	})
}

func (c *collector) functionDefinition(n *sitter.Node, s scope) {
	fd := unwrapFunctionDeclarator(n.ChildByFieldName("declarator"))
	if fd == nil {
		return
	}
	c.function(n, fd, s, true)
}

// declaration handles declaration and field_declaration nodes: nested type
// specifiers are walked and function declarators become declaration entities
func (c *collector) declaration(n *sitter.Node, s scope) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "class_specifier", "struct_specifier", "enum_specifier", "union_specifier":
			c.walkEntities(child, s)
		default:
			if fd := unwrapFunctionDeclarator(child); fd != nil {
				c.function(n, fd, s, false)
			}
		}
	}
}

func (c *collector) functionDeclaration(owner, fd *sitter.Node, s scope) {
	c.function(owner, fd, s, false)
}

// function records a function entity spanning owner and named by fd
func (c *collector) function(owner, fd *sitter.Node, s scope, definition bool) {
	full, simple := declaratorName(fd, c.src)
	if simple == "" {
		return
	}

	c.addEntity(owner, types.Entity{
		Kind:          types.KindFunction,
		QualifiedName: s.qualify(full),
		SimpleName:    simple,
		Signature:     compact(fd.Content(c.src)),
		IsPublic:      s.public,
		Metadata: map[string]any{
			types.MetaIsDefinition: definition,
			types.MetaHasTemplates: isTemplated(owner),
		},
	})
}
