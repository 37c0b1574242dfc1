package builder

import (
	"github.com/graphql-go/graphql/language/ast"

	"gqlorm/internal/gqlrequest"
	"gqlorm/internal/record"
)

// Kind is the GraphQL operation type of a document.
type Kind string

const (
	KindQuery    Kind = "query"
	KindMutation Kind = "mutation"
)

// TypeMarker stands in for an object-valued argument until its input type
// name is resolved against the schema.
type TypeMarker struct {
	Type string
}

// BuiltDocument is a rendered and parsed GraphQL operation.
type BuiltDocument struct {
	Kind Kind
	// Name is the operation name, e.g. "CreatePost".
	Name          string
	Text          string
	Document      *ast.Document
	Variables     *record.Record
	OperationHash string
	Analysis      *gqlrequest.Analysis
}

// RecursionPath is the chain of entity singular names from the root
// selection to the one being rendered. Append never mutates the receiver.
type RecursionPath struct {
	entries []string
}

// NewRecursionPath returns a path holding names.
func NewRecursionPath(names ...string) RecursionPath {
	return RecursionPath{entries: append([]string(nil), names...)}
}

// Append returns a new path with name added at the end.
func (p RecursionPath) Append(name string) RecursionPath {
	entries := make([]string, len(p.entries), len(p.entries)+1)
	copy(entries, p.entries)
	return RecursionPath{entries: append(entries, name)}
}

// Len returns the number of entries.
func (p RecursionPath) Len() int { return len(p.entries) }

// Entries returns a copy of the entries.
func (p RecursionPath) Entries() []string { return append([]string(nil), p.entries...) }

// Contains reports whether name occurs anywhere in the path.
func (p RecursionPath) Contains(name string) bool {
	for _, e := range p.entries {
		if e == name {
			return true
		}
	}
	return false
}

// TrailingCount counts the consecutive entries equal to name at the end of
// the path.
func (p RecursionPath) TrailingCount(name string) int {
	n := 0
	for i := len(p.entries) - 1; i >= 0 && p.entries[i] == name; i-- {
		n++
	}
	return n
}
