package gqlrequest

import (
	"fmt"
	"sort"

	"github.com/graphql-go/graphql/language/ast"
)

// walker counts fields and nesting of an operation in a single pass and
// records which fragments it reaches. Each fragment is expanded once, which
// also makes cyclic spreads terminate.
type walker struct {
	fragments map[string]*ast.FragmentDefinition
	reached   map[string]bool
	fields    int
}

func newWalker(doc *ast.Document) *walker {
	w := &walker{
		fragments: map[string]*ast.FragmentDefinition{},
		reached:   map[string]bool{},
	}
	if doc == nil {
		return w
	}
	for _, def := range doc.Definitions {
		if fragment, ok := def.(*ast.FragmentDefinition); ok && fragment != nil && fragment.Name != nil && fragment.Name.Value != "" {
			w.fragments[fragment.Name.Value] = fragment
		}
	}
	return w
}

// walk returns the deepest field level under set, where depth is the level
// of the fields directly inside set.
func (w *walker) walk(set *ast.SelectionSet, depth int) int {
	if set == nil {
		return depth - 1
	}
	deepest := depth
	for _, selection := range set.Selections {
		nested := depth
		switch sel := selection.(type) {
		case *ast.Field:
			w.fields++
			if sel.SelectionSet != nil {
				nested = w.walk(sel.SelectionSet, depth+1)
			}
		case *ast.InlineFragment:
			nested = w.walk(sel.SelectionSet, depth)
		case *ast.FragmentSpread:
			if sel.Name == nil || w.reached[sel.Name.Value] {
				continue
			}
			name := sel.Name.Value
			w.reached[name] = true
			if fragment := w.fragments[name]; fragment != nil {
				nested = w.walk(fragment.SelectionSet, depth)
			}
		}
		deepest = max(deepest, nested)
	}
	return deepest
}

func (w *walker) reachedFragments() []string {
	if len(w.reached) == 0 {
		return nil
	}
	names := make([]string, 0, len(w.reached))
	for name := range w.reached {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// canonical prints op followed by the fragments it uses in name order, so
// unused fragments and definition order do not change the hash.
func (w *walker) canonical(op *ast.OperationDefinition, fragmentNames []string) (string, error) {
	definitions := make([]ast.Node, 0, 1+len(fragmentNames))
	definitions = append(definitions, op)
	for _, name := range fragmentNames {
		fragment, ok := w.fragments[name]
		if !ok {
			return "", fmt.Errorf("fragment %q not found", name)
		}
		definitions = append(definitions, fragment)
	}
	return printDefinitions(definitions)
}
