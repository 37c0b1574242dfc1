// Package transform converts store records into GraphQL variables and
// GraphQL response data into the flat, relation-aware shape the store
// inserts.
package transform

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gqlorm/internal/model"
	"gqlorm/internal/naming"
	"gqlorm/internal/record"
	"gqlorm/internal/schema"
)

// NumericCoercionError reports a numeric field whose incoming value is not a
// number.
type NumericCoercionError struct {
	Model string
	Field string
	Value any
}

func (e *NumericCoercionError) Error() string {
	return fmt.Sprintf("field %s.%s: cannot convert %v (%T) to a number", e.Model, e.Field, e.Value, e.Value)
}

// Transformer holds what both directions need: the registry for relation
// targets and the connection mode for unwrapping collections.
type Transformer struct {
	registry *model.Registry
	namer    *naming.Namer
	mode     schema.ConnectionMode
	logger   *slog.Logger
}

// New creates a transformer for documents rendered in mode.
func New(registry *model.Registry, mode schema.ConnectionMode, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{
		registry: registry,
		namer:    registry.Namer(),
		mode:     mode,
		logger:   logger,
	}
}

// Mode returns the connection mode incoming data is unwrapped for.
func (t *Transformer) Mode() schema.ConnectionMode { return t.mode }

// TransformOutgoingData turns a store record into a GraphQL input object.
// Keys in whitelist are always kept. Otherwise to-many relations, meta keys
// and nil values are dropped while belongs-to records are inlined.
func (t *Transformer) TransformOutgoingData(m *model.ModelDescriptor, rec *record.Record, whitelist []string) (*record.Record, error) {
	out := record.New()
	if rec == nil {
		return out, nil
	}

	var firstErr error
	rec.Range(func(key string, value any) bool {
		field, isField := m.Field(key)
		isRelation := isField && field.IsRelation()

		if !contains(whitelist, key) {
			if isRelation && field.Kind != model.KindBelongsTo {
				return true
			}
			if strings.HasPrefix(key, model.MetaPrefix) || value == nil {
				return true
			}
		}

		converted, err := t.outgoingValue(m, field, isRelation, value)
		if err != nil {
			firstErr = err
			return false
		}
		out.Set(key, converted)
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (t *Transformer) outgoingValue(m *model.ModelDescriptor, field model.FieldDescriptor, isRelation bool, value any) (any, error) {
	if items, ok := value.([]any); ok {
		target := m
		if isRelation {
			if related := t.registry.Find(relatedName(field)); related != nil {
				target = related
			}
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			rec, ok := record.AsRecord(item)
			if !ok {
				out = append(out, record.Clone(item))
				continue
			}
			converted, err := t.TransformOutgoingData(target, rec, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}

	rec, ok := record.AsRecord(value)
	if !ok || !rec.Has(model.MetaID) {
		return record.Clone(value), nil
	}

	var target *model.ModelDescriptor
	if isRelation {
		related, err := t.registry.RelatedModel(m, field)
		if err != nil {
			return nil, err
		}
		target = related
	} else {
		entity, _ := rec.Value(model.MetaEntity).(string)
		related, err := t.registry.Get(entity)
		if err != nil {
			return nil, err
		}
		target = related
	}
	return t.TransformOutgoingData(target, rec, nil)
}

// TransformIncomingData converts response data for m into the store shape.
// Collections are unwrapped from their connection, numeric fields become
// float64 and polymorphic type values become plural entity names. With
// isMutationRoot the top-level payload keys are renamed after their
// entity. The result never aliases data.
func (t *Transformer) TransformIncomingData(data any, m *model.ModelDescriptor, isMutationRoot bool) (any, error) {
	return t.incoming(data, m, isMutationRoot, false)
}

func (t *Transformer) incoming(data any, m *model.ModelDescriptor, isMutationRoot, isRecursiveCall bool) (any, error) {
	if items, ok := data.([]any); ok {
		out := make([]any, 0, len(items))
		for _, item := range items {
			converted, err := t.incoming(item, m, isMutationRoot, true)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}

	rec, ok := record.AsRecord(data)
	if !ok {
		return record.Clone(data), nil
	}

	// An edge wrapper stands for its node.
	if t.mode == schema.ModeEdges {
		if node, ok := record.AsRecord(rec.Value("node")); ok {
			return t.incoming(node, m, isMutationRoot, true)
		}
	}

	result := record.New()
	var firstErr error
	rec.Range(func(key string, value any) bool {
		if value == nil {
			return true
		}
		converted, outKey, err := t.incomingEntry(m, key, value, isMutationRoot, isRecursiveCall)
		if err != nil {
			firstErr = err
			return false
		}
		result.Set(outKey, converted)
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}

	if isRecursiveCall {
		result.Set(model.MetaPersisted, true)
	}
	return result, nil
}

func (t *Transformer) incomingEntry(m *model.ModelDescriptor, key string, value any, isMutationRoot, isRecursiveCall bool) (any, string, error) {
	if nested, ok := record.AsRecord(value); ok {
		local := m
		if found := t.registry.Find(key); found != nil {
			local = found
		}

		if nodes, ok := nested.Get("nodes"); ok && t.mode == schema.ModeNodes {
			converted, err := t.incoming(asList(nodes), local, isMutationRoot, true)
			return converted, t.namer.Pluralize(key), err
		}
		if edges, ok := nested.Get("edges"); ok && t.mode == schema.ModeEdges {
			converted, err := t.incoming(asList(edges), local, isMutationRoot, true)
			return converted, t.namer.Pluralize(key), err
		}

		outKey := key
		if isMutationRoot && !isRecursiveCall {
			if nested.Has("nodes") {
				outKey = naming.DowncaseFirst(local.PluralName())
			} else {
				outKey = naming.DowncaseFirst(local.SingularName())
			}
		}
		converted, err := t.incoming(nested, local, isMutationRoot, true)
		return converted, outKey, err
	}

	// Plain mode returns collections as bare lists.
	if items, ok := value.([]any); ok {
		local := m
		if found := t.registry.Find(key); found != nil {
			local = found
		}
		converted, err := t.incoming(items, local, isMutationRoot, true)
		return converted, key, err
	}

	if field, ok := m.Field(key); ok && field.Kind.IsNumeric() {
		n, err := toFloat(value)
		if err != nil {
			return nil, key, &NumericCoercionError{Model: m.SingularName(), Field: key, Value: value}
		}
		return n, key, nil
	}

	if strings.HasSuffix(key, "Type") && m.IsTypeFieldOfPolymorphicRelation(key) {
		if s, ok := value.(string); ok {
			return t.namer.Pluralize(naming.DowncaseFirst(s)), key, nil
		}
		t.logger.Debug("polymorphic type value is not a string",
			slog.String("model", m.SingularName()),
			slog.String("field", key),
		)
	}

	return record.Clone(value), key, nil
}

// asList treats a single object as a one-element list.
func asList(v any) any {
	switch v.(type) {
	case []any, nil:
		return v
	}
	if _, ok := record.AsRecord(v); ok {
		return []any{v}
	}
	return v
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case fmt.Stringer:
		return strconv.ParseFloat(n.String(), 64)
	}
	return 0, fmt.Errorf("unsupported numeric value %T", v)
}

func relatedName(field model.FieldDescriptor) string {
	if field.Related != "" {
		return field.Related
	}
	return field.Name
}

func contains(list []string, key string) bool {
	for _, s := range list {
		if s == key {
			return true
		}
	}
	return false
}
