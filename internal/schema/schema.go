// Package schema indexes an introspected GraphQL schema and answers the type
// questions the document builder and data transformer ask of it.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"gqlorm/internal/introspection"
	"gqlorm/internal/naming"
)

// ConnectionSuffix marks paginated connection types by naming convention.
const ConnectionSuffix = "TypeConnection"

// Index is the read-only view of one introspected schema.
type Index struct {
	types         map[string]*introspection.FullType
	queries       map[string]*introspection.Field
	queryOrder    []string
	mutations     map[string]*introspection.Field
	mutationOrder []string
	fingerprint   string
}

// Load parses an introspection payload and indexes it.
func Load(data []byte) (*Index, error) {
	parsed, err := introspection.Parse(data)
	if err != nil {
		return nil, err
	}
	idx := NewIndex(parsed)
	sum := sha256.Sum256(data)
	idx.fingerprint = hex.EncodeToString(sum[:])
	return idx, nil
}

// NewIndex indexes a parsed schema. Root types default to Query and Mutation
// when the payload doesn't name them.
func NewIndex(s *introspection.Schema) *Index {
	idx := &Index{
		types:     make(map[string]*introspection.FullType, len(s.Types)),
		queries:   make(map[string]*introspection.Field),
		mutations: make(map[string]*introspection.Field),
	}
	for i := range s.Types {
		t := &s.Types[i]
		idx.types[t.Name] = t
	}

	queryType := "Query"
	if s.QueryType != nil && s.QueryType.Name != "" {
		queryType = s.QueryType.Name
	}
	mutationType := "Mutation"
	if s.MutationType != nil && s.MutationType.Name != "" {
		mutationType = s.MutationType.Name
	}

	if t, ok := idx.types[queryType]; ok {
		for i := range t.Fields {
			f := &t.Fields[i]
			idx.queries[f.Name] = f
			idx.queryOrder = append(idx.queryOrder, f.Name)
		}
	}
	if t, ok := idx.types[mutationType]; ok {
		for i := range t.Fields {
			f := &t.Fields[i]
			idx.mutations[f.Name] = f
			idx.mutationOrder = append(idx.mutationOrder, f.Name)
		}
	}
	return idx
}

// Fingerprint identifies the introspection payload the index was loaded from.
func (i *Index) Fingerprint() string { return i.fingerprint }

// QueryNames returns the query field names in schema order.
func (i *Index) QueryNames() []string { return append([]string(nil), i.queryOrder...) }

// MutationNames returns the mutation field names in schema order.
func (i *Index) MutationNames() []string { return append([]string(nil), i.mutationOrder...) }

// GetType looks up a type. The first letter is upper-cased first.
// With allowNull a missing type returns (nil, nil).
func (i *Index) GetType(name string, allowNull bool) (*introspection.FullType, error) {
	name = naming.UpcaseFirst(name)
	if t, ok := i.types[name]; ok {
		return t, nil
	}
	if allowNull {
		return nil, nil
	}
	return nil, &SchemaTypeNotFoundError{Name: name}
}

// GetQuery looks up a query field by exact name.
func (i *Index) GetQuery(name string, allowNull bool) (*introspection.Field, error) {
	if f, ok := i.queries[name]; ok {
		return f, nil
	}
	if allowNull {
		return nil, nil
	}
	return nil, &SchemaQueryNotFoundError{Name: name}
}

// GetMutation looks up a mutation field by exact name.
func (i *Index) GetMutation(name string, allowNull bool) (*introspection.Field, error) {
	if f, ok := i.mutations[name]; ok {
		return f, nil
	}
	if allowNull {
		return nil, nil
	}
	return nil, &SchemaMutationNotFoundError{Name: name}
}

// RootField returns the mutation or, failing that, the query named name.
func (i *Index) RootField(name string) *introspection.Field {
	if f, ok := i.mutations[name]; ok {
		return f
	}
	if f, ok := i.queries[name]; ok {
		return f
	}
	return nil
}

// GetRealType strips NON_NULL wrappers.
func (i *Index) GetRealType(t *introspection.TypeRef) *introspection.TypeRef {
	for t != nil && t.Kind == introspection.KindNonNull && t.OfType != nil {
		t = t.OfType
	}
	return t
}

// GetTypeNameOfField returns the named type of a field; lists render as
// "[Inner]".
func (i *Index) GetTypeNameOfField(field introspection.Typed) (string, error) {
	t := i.GetRealType(field.FieldType())
	if t != nil && t.Kind == introspection.KindList {
		inner := t
		for inner != nil && inner.TypeName() == "" {
			inner = inner.OfType
		}
		if inner == nil {
			return "", &MissingTypeNameError{Field: field.FieldName()}
		}
		return "[" + inner.TypeName() + "]", nil
	}

	if name := t.TypeName(); name != "" {
		return name, nil
	}
	if t != nil && t.OfType != nil {
		if name := t.OfType.TypeName(); name != "" {
			return name, nil
		}
		if name := t.OfType.OfType.TypeName(); name != "" {
			return name, nil
		}
	}
	return "", &MissingTypeNameError{Field: field.FieldName()}
}

// ReturnsConnection reports whether the field's type follows the connection
// naming convention.
func (i *Index) ReturnsConnection(field introspection.Typed) (bool, error) {
	name, err := i.GetTypeNameOfField(field)
	if err != nil {
		return false, err
	}
	return strings.HasSuffix(name, ConnectionSuffix), nil
}

// DetermineQueryMode inspects the first query returning a connection type and
// derives the pagination style from its fields.
func (i *Index) DetermineQueryMode() (ConnectionMode, error) {
	for _, name := range i.queryOrder {
		query := i.queries[name]
		typeName, err := i.GetTypeNameOfField(query)
		if err != nil {
			return "", err
		}
		if !strings.HasSuffix(typeName, ConnectionSuffix) {
			continue
		}
		connection, err := i.GetType(typeName, false)
		if err != nil {
			return "", err
		}
		switch {
		case connection.HasField("nodes"):
			return ModeNodes, nil
		case connection.HasField("edges"):
			return ModeEdges, nil
		default:
			return ModePlain, nil
		}
	}
	return "", &NoConnectionTypeFoundError{}
}
