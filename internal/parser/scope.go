package parser

import (
	"slices"

	"github.com/dshills/cppgraph-mcp/pkg/types"
)

// scope is the lexical context at a point of the traversal. It is passed by
// value and every with* method returns a modified copy, so a recursive call
// can never leak its context into a sibling.
type scope struct {
	namespaces []string
	classes    []string // class chain below the innermost namespace
	class      string   // qualified name of the enclosing class
	bases      []string // base specifiers of the enclosing class
	function   string   // qualified name of the enclosing function
	public     bool     // current access level for members
}

func rootScope() scope {
	return scope{public: true}
}

// prefix is the qualified name new entities are nested under
func (s scope) prefix() string {
	parts := make([]string, 0, len(s.namespaces)+len(s.classes))
	parts = append(parts, s.namespaces...)
	parts = append(parts, s.classes...)
	return types.JoinScope(parts...)
}

func (s scope) qualify(name string) string {
	return types.JoinScope(s.prefix(), name)
}

func (s scope) inClass() bool {
	return s.class != ""
}

func (s scope) withNamespace(segments ...string) scope {
	s.namespaces = append(slices.Clip(s.namespaces), segments...)
	return s
}

// withClass enters a class body. Members start with the default access of
// the class key: private for class, public for struct.
func (s scope) withClass(name, qualified string, bases []string, defaultPublic bool) scope {
	s.classes = append(slices.Clip(s.classes), name)
	s.class = qualified
	s.bases = bases
	s.public = defaultPublic
	return s
}

func (s scope) withFunction(qualified string) scope {
	s.function = qualified
	return s
}

func (s scope) withAccess(public bool) scope {
	s.public = public
	return s
}
