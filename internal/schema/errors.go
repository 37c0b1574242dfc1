package schema

import "fmt"

// SchemaTypeNotFoundError reports a type missing from the introspected schema.
type SchemaTypeNotFoundError struct {
	Name string
}

func (e *SchemaTypeNotFoundError) Error() string {
	return fmt.Sprintf("couldn't find type %s in the schema", e.Name)
}

// SchemaQueryNotFoundError reports a query field missing from the schema.
type SchemaQueryNotFoundError struct {
	Name string
}

func (e *SchemaQueryNotFoundError) Error() string {
	return fmt.Sprintf("couldn't find query %s in the schema", e.Name)
}

// SchemaMutationNotFoundError reports a mutation field missing from the schema.
type SchemaMutationNotFoundError struct {
	Name string
}

func (e *SchemaMutationNotFoundError) Error() string {
	return fmt.Sprintf("couldn't find mutation %s in the schema", e.Name)
}

// MissingTypeNameError reports a field whose type name can't be resolved
// within the supported wrapper depth.
type MissingTypeNameError struct {
	Field string
}

func (e *MissingTypeNameError) Error() string {
	return fmt.Sprintf("can't find type name for field %s", e.Field)
}

// NoConnectionTypeFoundError is returned by DetermineQueryMode when no query
// returns a connection type. The connection mode must then be configured.
type NoConnectionTypeFoundError struct{}

func (e *NoConnectionTypeFoundError) Error() string {
	return "can't determine the connection mode: no query returns a " + ConnectionSuffix + " type, set the connection mode explicitly"
}
