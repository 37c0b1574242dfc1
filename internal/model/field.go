// Package model describes the store's entity types: their attribute and
// relation fields, eager-load configuration and the fields that must be
// left out of generated documents.
package model

import (
	"fmt"
	"strings"
)

// FieldKind discriminates attribute and relation fields.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindBoolean
	KindIncrement
	KindBelongsTo
	KindHasOne
	KindHasMany
	KindBelongsToMany
	KindMorphTo
	KindMorphOne
	KindMorphMany
	KindMorphToMany
	KindMorphedByMany
)

var kindNames = map[FieldKind]string{
	KindString:        "string",
	KindNumber:        "number",
	KindBoolean:       "boolean",
	KindIncrement:     "increment",
	KindBelongsTo:     "belongs_to",
	KindHasOne:        "has_one",
	KindHasMany:       "has_many",
	KindBelongsToMany: "belongs_to_many",
	KindMorphTo:       "morph_to",
	KindMorphOne:      "morph_one",
	KindMorphMany:     "morph_many",
	KindMorphToMany:   "morph_to_many",
	KindMorphedByMany: "morphed_by_many",
}

func (k FieldKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

// ParseFieldKind accepts the snake_case, camelCase or lowercase spelling of a kind.
func ParseFieldKind(s string) (FieldKind, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	for kind, name := range kindNames {
		if strings.ReplaceAll(name, "_", "") == normalized {
			return kind, nil
		}
	}
	if normalized == "attr" || normalized == "text" {
		return KindString, nil
	}
	return 0, fmt.Errorf("unknown field kind %q", s)
}

// IsAttribute reports whether the kind is a scalar attribute.
func (k FieldKind) IsAttribute() bool {
	return k <= KindIncrement
}

// IsRelation reports whether the kind links to another entity.
func (k FieldKind) IsRelation() bool {
	return !k.IsAttribute()
}

// IsNumeric reports whether values of this kind are numbers in the store.
func (k FieldKind) IsNumeric() bool {
	return k == KindNumber || k == KindIncrement
}

// IsToMany reports whether the relation returns a collection.
func (k FieldKind) IsToMany() bool {
	switch k {
	case KindHasMany, KindBelongsToMany, KindMorphMany, KindMorphToMany, KindMorphedByMany:
		return true
	}
	return false
}

// IsPolymorphic reports whether the relation uses a type discriminator field.
func (k FieldKind) IsPolymorphic() bool {
	switch k {
	case KindMorphTo, KindMorphOne, KindMorphMany, KindMorphToMany, KindMorphedByMany:
		return true
	}
	return false
}

// FieldDescriptor describes one field of an entity. Relation-only members
// are empty for attributes.
type FieldDescriptor struct {
	Name string
	Kind FieldKind

	// Related is the entity name on the other side of the relation.
	Related string
	// ForeignKey names the field holding the link (on this entity for
	// BelongsTo, on the related entity otherwise).
	ForeignKey string
	// Through names the pivot entity of many-to-many relations.
	Through string
	// MorphType and MorphID name the discriminator and id fields of a
	// polymorphic relation.
	MorphType string
	MorphID   string
}

// IsAttribute reports whether the field is a scalar attribute.
func (f FieldDescriptor) IsAttribute() bool { return f.Kind.IsAttribute() }

// IsRelation reports whether the field links to another entity.
func (f FieldDescriptor) IsRelation() bool { return f.Kind.IsRelation() }
