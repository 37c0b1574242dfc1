// Package introspection holds the wire shape of a GraphQL introspection
// response and the query used to fetch it.
package introspection

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TypeKind is the __TypeKind of an introspected type.
type TypeKind string

const (
	KindScalar      TypeKind = "SCALAR"
	KindObject      TypeKind = "OBJECT"
	KindInterface   TypeKind = "INTERFACE"
	KindUnion       TypeKind = "UNION"
	KindEnum        TypeKind = "ENUM"
	KindInputObject TypeKind = "INPUT_OBJECT"
	KindList        TypeKind = "LIST"
	KindNonNull     TypeKind = "NON_NULL"
)

// IsWrapper reports whether the kind wraps another type reference.
func (k TypeKind) IsWrapper() bool {
	return k == KindList || k == KindNonNull
}

// MaxTypeRefDepth is the number of ofType levels requested by Query.
const MaxTypeRefDepth = 4

// Query is the introspection document sent once per process.
var Query = buildQuery()

func buildQuery() string {
	typeRef := "kind name"
	for i := 0; i < MaxTypeRefDepth; i++ {
		typeRef = "kind name ofType { " + typeRef + " }"
	}
	var b strings.Builder
	b.WriteString("query SchemaIntrospection {\n")
	b.WriteString("  __schema {\n")
	b.WriteString("    queryType { name }\n")
	b.WriteString("    mutationType { name }\n")
	b.WriteString("    types {\n")
	b.WriteString("      kind name description\n")
	fmt.Fprintf(&b, "      fields(includeDeprecated: true) { name description args { name description type { %s } } type { %s } }\n", typeRef, typeRef)
	fmt.Fprintf(&b, "      inputFields { name description type { %s } }\n", typeRef)
	b.WriteString("    }\n")
	b.WriteString("  }\n")
	b.WriteString("}")
	return b.String()
}

// Schema is the __schema object of an introspection response.
type Schema struct {
	QueryType    *TypeName  `json:"queryType"`
	MutationType *TypeName  `json:"mutationType"`
	Types        []FullType `json:"types"`
}

// TypeName names a root operation type.
type TypeName struct {
	Name string `json:"name"`
}

// FullType is one named type of the schema.
type FullType struct {
	Kind        TypeKind     `json:"kind"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Fields      []Field      `json:"fields"`
	InputFields []InputValue `json:"inputFields"`
}

// Field is an output field of an object type.
type Field struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Args        []InputValue `json:"args"`
	Type        TypeRef      `json:"type"`
}

// InputValue is an argument or an input object field.
type InputValue struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Type        TypeRef `json:"type"`
}

// TypeRef references a type, possibly through NON_NULL and LIST wrappers.
type TypeRef struct {
	Kind   TypeKind `json:"kind"`
	Name   *string  `json:"name"`
	OfType *TypeRef `json:"ofType"`
}

// TypeName returns the referenced name or "".
func (t *TypeRef) TypeName() string {
	if t == nil || t.Name == nil {
		return ""
	}
	return *t.Name
}

// Typed is implemented by fields and input values.
type Typed interface {
	FieldName() string
	FieldType() *TypeRef
}

func (f *Field) FieldName() string { return f.Name }
func (f *Field) FieldType() *TypeRef { return &f.Type }
func (v *InputValue) FieldName() string { return v.Name }
func (v *InputValue) FieldType() *TypeRef { return &v.Type }

// Arg returns the argument called name.
func (f *Field) Arg(name string) *InputValue {
	for i := range f.Args {
		if f.Args[i].Name == name {
			return &f.Args[i]
		}
	}
	return nil
}

// InputField returns the input field called name.
func (t *FullType) InputField(name string) *InputValue {
	for i := range t.InputFields {
		if t.InputFields[i].Name == name {
			return &t.InputFields[i]
		}
	}
	return nil
}

// HasField reports whether the type has an output field called name.
func (t *FullType) HasField(name string) bool {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return true
		}
	}
	return false
}

// TypeDepthExceededError reports a wrapped type deeper than MaxTypeRefDepth.
type TypeDepthExceededError struct {
	Type  string
	Field string
}

func (e *TypeDepthExceededError) Error() string {
	return fmt.Sprintf("type reference of %s.%s is nested deeper than %d levels", e.Type, e.Field, MaxTypeRefDepth)
}

// Parse decodes an introspection payload, accepting both the full response
// ({"data": {"__schema": ...}}) and the bare data object.
func Parse(data []byte) (*Schema, error) {
	var payload struct {
		Data *struct {
			Schema *Schema `json:"__schema"`
		} `json:"data"`
		Schema *Schema `json:"__schema"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode introspection result: %w", err)
	}
	schema := payload.Schema
	if schema == nil && payload.Data != nil {
		schema = payload.Data.Schema
	}
	if schema == nil {
		return nil, fmt.Errorf("introspection result has no __schema")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

// Validate fails fast on wrapper types whose inner type was cut off by the
// query depth.
func (s *Schema) Validate() error {
	for _, t := range s.Types {
		for _, f := range t.Fields {
			if !complete(&f.Type) {
				return &TypeDepthExceededError{Type: t.Name, Field: f.Name}
			}
			for _, a := range f.Args {
				if !complete(&a.Type) {
					return &TypeDepthExceededError{Type: t.Name, Field: f.Name + "(" + a.Name + ")"}
				}
			}
		}
		for _, f := range t.InputFields {
			if !complete(&f.Type) {
				return &TypeDepthExceededError{Type: t.Name, Field: f.Name}
			}
		}
	}
	return nil
}

func complete(ref *TypeRef) bool {
	for ref != nil {
		if !ref.Kind.IsWrapper() {
			return true
		}
		ref = ref.OfType
	}
	return false
}
