package builder

import "fmt"

// UnresolvableArgumentTypeError reports an argument whose GraphQL type can't
// be derived from the schema, the filter input or the value itself.
type UnresolvableArgumentTypeError struct {
	Model    string
	Argument string
	Value    any
}

func (e *UnresolvableArgumentTypeError) Error() string {
	return fmt.Sprintf("can't determine the GraphQL type of argument %s (%T) on %s", e.Argument, e.Value, e.Model)
}

// DocumentSyntaxError means the rendered document didn't parse. It points at
// a builder bug rather than bad input.
type DocumentSyntaxError struct {
	Text string
	Err  error
}

func (e *DocumentSyntaxError) Error() string {
	return fmt.Sprintf("built document is not valid GraphQL: %v\n%s", e.Err, e.Text)
}

func (e *DocumentSyntaxError) Unwrap() error { return e.Err }
