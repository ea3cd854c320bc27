package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/cppgraph-mcp/pkg/types"
)

// controlFlowTypes are the node kinds that add a branch to an entity's complexity
var controlFlowTypes = map[string]bool{
	"if_statement":     true,
	"for_statement":    true,
	"for_range_loop":   true,
	"while_statement":  true,
	"do_statement":     true,
	"switch_statement": true,
	"case_statement":   true,
	"catch_clause":     true,
}

// typeNameNodes are declared types that can name another entity
var typeNameNodes = map[string]bool{
	"type_identifier":      true,
	"qualified_identifier": true,
	"template_type":        true,
}

func nodeText(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(src)
}

// compact collapses runs of whitespace, so multi-line declarators read as one line
func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func startLine(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func endLine(n *sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}

func sameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return false
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// isTemplated reports whether n is the declaration of a template_declaration
func isTemplated(n *sitter.Node) bool {
	parent := n.Parent()
	return parent != nil && parent.Type() == "template_declaration"
}

// complexity returns 1 plus the number of control-flow nodes below n
func complexity(n *sitter.Node) int {
	score := 1
	stack := []*sitter.Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if controlFlowTypes[cur.Type()] {
			score++
		}
		for i := 0; i < int(cur.NamedChildCount()); i++ {
			stack = append(stack, cur.NamedChild(i))
		}
	}
	return score
}

// unwrapFunctionDeclarator descends through pointer and reference
// declarators to the function_declarator they wrap, if any
func unwrapFunctionDeclarator(n *sitter.Node) *sitter.Node {
	for depth := 0; n != nil && depth < 16; depth++ {
		switch n.Type() {
		case "function_declarator":
			return n
		case "pointer_declarator", "reference_declarator", "attributed_declarator":
			next := n.ChildByFieldName("declarator")
			if next == nil {
				next = firstDeclaratorChild(n)
			}
			n = next
		default:
			return nil
		}
	}
	return nil
}

func firstDeclaratorChild(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if strings.HasSuffix(c.Type(), "declarator") {
			return c
		}
	}
	return nil
}

// declaratorName returns the name written in a function declarator and its
// trailing segment. For "A::Foo::bar" full is the whole path and simple is
// "bar". Declarators without a usable name return empty strings.
func declaratorName(fd *sitter.Node, src []byte) (full, simple string) {
	d := fd.ChildByFieldName("declarator")
	if d == nil {
		return "", ""
	}

	switch d.Type() {
	case "identifier", "field_identifier", "destructor_name", "operator_name":
		name := compact(d.Content(src))
		return name, name
	case "template_function":
		name := compact(nodeText(d.ChildByFieldName("name"), src))
		return name, name
	case "qualified_identifier":
		last := d
		for last.Type() == "qualified_identifier" {
			next := last.ChildByFieldName("name")
			if next == nil {
				break
			}
			last = next
		}
		simple = last.Content(src)
		if last.Type() == "template_function" {
			simple = nodeText(last.ChildByFieldName("name"), src)
		}
		return compact(d.Content(src)), compact(simple)
	}

	return "", ""
}

// hasOverride reports whether a function declarator carries the override specifier
func hasOverride(fd *sitter.Node, src []byte) bool {
	for i := 0; i < int(fd.ChildCount()); i++ {
		c := fd.Child(i)
		if c.Type() == "virtual_specifier" && strings.TrimSpace(c.Content(src)) == "override" {
			return true
		}
	}
	return false
}

// baseSpecifiers lists the base classes named in a class's base_class_clause
func baseSpecifiers(class *sitter.Node, src []byte) []string {
	var bases []string
	for i := 0; i < int(class.NamedChildCount()); i++ {
		clause := class.NamedChild(i)
		if clause.Type() != "base_class_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			b := clause.NamedChild(j)
			switch b.Type() {
			case "type_identifier", "qualified_identifier":
				bases = append(bases, compact(b.Content(src)))
			case "template_type":
				bases = append(bases, compact(nodeText(b.ChildByFieldName("name"), src)))
			}
		}
	}
	return bases
}

// typeName returns the referenced name of a declared type, or "" for
// primitive and placeholder types
func typeName(t *sitter.Node, src []byte) string {
	if t == nil || !typeNameNodes[t.Type()] {
		return ""
	}
	if t.Type() == "template_type" {
		return compact(nodeText(t.ChildByFieldName("name"), src))
	}
	return compact(t.Content(src))
}

// namespaceSegments splits "A::B" (and "inline B") into scope segments
func namespaceSegments(name string) []string {
	var segments []string
	for _, part := range strings.Split(name, types.ScopeSeparator) {
		part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "inline "))
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

func isPublicAccess(specifier string) bool {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(specifier), ":")) == "public"
}

func entityKindFor(nodeType string) types.EntityKind {
	if nodeType == "struct_specifier" {
		return types.KindStruct
	}
	return types.KindClass
}
