package model

// Declaration is the store's declaration of one entity type.
type Declaration struct {
	Entity    string             `mapstructure:"entity"`
	EagerLoad []string           `mapstructure:"eager_load"`
	Fields    []FieldDeclaration `mapstructure:"fields"`
}

// FieldDeclaration declares one field. Type is a FieldKind spelling such as
// "string", "number" or "belongs_to".
type FieldDeclaration struct {
	Name       string `mapstructure:"name"`
	Type       string `mapstructure:"type"`
	Related    string `mapstructure:"related"`
	ForeignKey string `mapstructure:"foreign_key"`
	Through    string `mapstructure:"through"`
	MorphType  string `mapstructure:"morph_type"`
	MorphID    string `mapstructure:"morph_id"`
}

// Descriptor converts the declaration into a FieldDescriptor.
func (d FieldDeclaration) Descriptor() (FieldDescriptor, error) {
	kind, err := ParseFieldKind(d.Type)
	if err != nil {
		return FieldDescriptor{}, err
	}
	return FieldDescriptor{
		Name:       d.Name,
		Kind:       kind,
		Related:    d.Related,
		ForeignKey: d.ForeignKey,
		Through:    d.Through,
		MorphType:  d.MorphType,
		MorphID:    d.MorphID,
	}, nil
}
