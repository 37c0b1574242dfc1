package model

import (
	"errors"
	"fmt"
)

// ErrSchemaNotProcessed is returned when documents are requested before the
// schema processing pass has completed.
var ErrSchemaNotProcessed = errors.New("schema has not been processed yet")

// ModelNotFoundError reports a reference to an entity that was never registered.
type ModelNotFoundError struct {
	Name string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q is not registered", e.Name)
}

// DeclarationError reports an invalid entity declaration.
type DeclarationError struct {
	Entity  string
	Field   string
	Message string
}

func (e *DeclarationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("model %q field %q: %s", e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("model %q: %s", e.Entity, e.Message)
}
