package builder

import (
	"strings"

	"gqlorm/internal/model"
	"gqlorm/internal/record"
	"gqlorm/internal/schema"
)

// buildField renders one selection: the root field of an operation or a
// nested relation.
func (b *DocumentBuilder) buildField(m *model.ModelDescriptor, multiple bool, args *record.Record, path RecursionPath, name string, useFilterWrapper, allowIDFields bool) (string, error) {
	if name == "" {
		name = defaultFieldName(m, multiple)
	}

	params, err := b.buildArguments(m, args, false, useFilterWrapper, allowIDFields, b.index.RootField(name))
	if err != nil {
		return "", err
	}

	if path.Len() == 0 {
		path = path.Append(m.SingularName())
	}

	body := strings.Join(m.GetQueryFields(), " ")
	relations, err := b.buildRelationsQuery(m, path)
	if err != nil {
		return "", err
	}
	if relations != "" {
		if body != "" {
			body += " "
		}
		body += relations
	}

	if multiple {
		switch b.mode {
		case schema.ModeNodes:
			return name + params + " { nodes { " + body + " } }", nil
		case schema.ModeEdges:
			return name + params + " { edges { node { " + body + " } } }", nil
		}
	}
	return name + params + " { " + body + " }", nil
}

// buildRelationsQuery renders the eager-loaded relations of m. A relation to
// an entity already on the path is a cycle and is left out, except for
// self-references which nest up to MaxSelfReferenceDepth levels.
func (b *DocumentBuilder) buildRelationsQuery(m *model.ModelDescriptor, path RecursionPath) (string, error) {
	var rendered []string
	for _, field := range m.GetRelations() {
		related, err := b.registry.RelatedModel(m, field)
		if err != nil {
			return "", err
		}
		singular := related.SingularName()

		selfReferenceDepth := path.TrailingCount(singular)
		ignore := (path.Contains(singular) && selfReferenceDepth == 0) || selfReferenceDepth > MaxSelfReferenceDepth
		if ignore || !m.ShouldEagerLoadRelation(field.Name, field, related) {
			continue
		}

		selection, err := b.buildField(related, field.Kind.IsToMany(), nil, path.Append(singular), field.Name, false, false)
		if err != nil {
			return "", err
		}
		rendered = append(rendered, selection)
	}
	return strings.Join(rendered, "\n"), nil
}
