package model

import (
	"strings"
)

// MetaPrefix marks store-internal keys that never travel over the wire.
const MetaPrefix = "$"

// Store-internal keys carried by records.
const (
	MetaID        = "$id"
	MetaPersisted = "$isPersisted"
	MetaEntity    = "$entity"
)

// ModelDescriptor wraps one store entity type.
type ModelDescriptor struct {
	entity       string
	singularName string
	pluralName   string
	fields       []FieldDescriptor
	fieldIndex   map[string]int
	skipFields   map[string]struct{}
	eagerLoad    []string
	registry     *Registry
}

// Entity returns the entity name the model was declared with.
func (m *ModelDescriptor) Entity() string { return m.entity }

// SingularName returns the singular entity name, e.g. "post".
func (m *ModelDescriptor) SingularName() string { return m.singularName }

// PluralName returns the plural entity name, e.g. "posts".
func (m *ModelDescriptor) PluralName() string { return m.pluralName }

// EagerLoad returns the configured eager-load list.
func (m *ModelDescriptor) EagerLoad() []string {
	return append([]string(nil), m.eagerLoad...)
}

// Fields returns all fields in declaration order.
func (m *ModelDescriptor) Fields() []FieldDescriptor {
	return append([]FieldDescriptor(nil), m.fields...)
}

// Field returns the descriptor for name.
func (m *ModelDescriptor) Field(name string) (FieldDescriptor, bool) {
	idx, ok := m.fieldIndex[name]
	if !ok {
		return FieldDescriptor{}, false
	}
	return m.fields[idx], true
}

// GetQueryFields returns the attribute names that belong in a selection set.
func (m *ModelDescriptor) GetQueryFields() []string {
	out := make([]string, 0, len(m.fields))
	for _, f := range m.fields {
		if f.IsAttribute() && !m.SkipField(f.Name) {
			out = append(out, f.Name)
		}
	}
	return out
}

// SkipField reports whether name must never be requested directly: meta
// fields, fields missing from the live schema and foreign keys backing a
// to-one relation.
func (m *ModelDescriptor) SkipField(name string) bool {
	if strings.HasPrefix(name, MetaPrefix) {
		return true
	}
	if _, ok := m.skipFields[name]; ok {
		return true
	}
	for _, rel := range m.fields {
		if (rel.Kind == KindBelongsTo || rel.Kind == KindHasOne) && rel.ForeignKey == name {
			return true
		}
	}
	return false
}

// SkippedFields returns the fields dropped during schema processing.
func (m *ModelDescriptor) SkippedFields() []string {
	out := make([]string, 0, len(m.skipFields))
	for _, f := range m.fields {
		if _, ok := m.skipFields[f.Name]; ok {
			out = append(out, f.Name)
		}
	}
	return out
}

// GetRelations returns the relation fields in declaration order.
func (m *ModelDescriptor) GetRelations() []FieldDescriptor {
	out := make([]FieldDescriptor, 0)
	for _, f := range m.fields {
		if f.IsRelation() {
			out = append(out, f)
		}
	}
	return out
}

// ShouldEagerLoadRelation decides whether a relation is part of generated
// selections. To-one relations are always loaded; everything else only
// when named in the eager-load list.
func (m *ModelDescriptor) ShouldEagerLoadRelation(fieldName string, field FieldDescriptor, related *ModelDescriptor) bool {
	switch field.Kind {
	case KindHasOne, KindBelongsTo, KindMorphOne:
		return true
	}
	for _, name := range m.eagerLoad {
		if name == fieldName {
			return true
		}
		if related != nil && (name == related.singularName || name == related.pluralName) {
			return true
		}
	}
	return false
}

// IsTypeFieldOfPolymorphicRelation reports whether name is the type
// discriminator of a polymorphic relation from any registered model to m.
func (m *ModelDescriptor) IsTypeFieldOfPolymorphicRelation(name string) bool {
	if m.registry == nil {
		return false
	}
	for _, other := range m.registry.Models() {
		for _, rel := range other.GetRelations() {
			if !rel.Kind.IsPolymorphic() || rel.MorphType != name {
				continue
			}
			if related := m.registry.Find(rel.Related); related == m {
				return true
			}
		}
	}
	return false
}

func (m *ModelDescriptor) addSkipField(name string) bool {
	if _, ok := m.fieldIndex[name]; !ok {
		return false
	}
	m.skipFields[name] = struct{}{}
	return true
}
