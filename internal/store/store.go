// Package store holds entity records locally. Data arriving from the
// transformer is normalized: nested relations are split into their own
// entities and linked back through foreign keys.
package store

import (
	"context"
	"fmt"
	"strconv"

	"gqlorm/internal/record"
)

// Inserted lists the records written by one InsertOrUpdate call, keyed by
// entity plural name.
type Inserted map[string][]*record.Record

// Count returns the number of records written.
func (i Inserted) Count() int {
	n := 0
	for _, recs := range i {
		n += len(recs)
	}
	return n
}

// Store is the local record store the actions read from and write to.
type Store interface {
	// InsertOrUpdate normalizes transformer output keyed by entity name.
	InsertOrUpdate(ctx context.Context, data *record.Record) (Inserted, error)
	// Create adds a record that does not exist on the server yet.
	Create(entity string, rec *record.Record) (*record.Record, error)
	// Find returns a record with the named relations loaded, or nil.
	// Relation names may be dotted to load nested relations.
	Find(entity string, id any, with ...string) (*record.Record, error)
	All(entity string) ([]*record.Record, error)
	Delete(entity string, id any) (bool, error)
}

// NotFoundError reports a missing record where one is required.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s record %q not found", e.Entity, e.ID)
}

// IDKey normalizes an id value to the string the store indexes by. Numeric
// ids from the transformer and string ids from callers compare equal.
func IDKey(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}
