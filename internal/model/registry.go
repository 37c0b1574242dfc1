package model

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"gqlorm/internal/naming"
)

// ErrAlreadyProcessed is returned when skip fields are applied twice.
var ErrAlreadyProcessed = errors.New("registry has already been processed")

// Registry holds every registered model. Registration and schema processing
// happen once at startup; afterwards the registry is read-only.
type Registry struct {
	namer     *naming.Namer
	logger    *slog.Logger
	models    []*ModelDescriptor
	byName    map[string]*ModelDescriptor
	processMu sync.Mutex
	processed atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry(namer *naming.Namer, logger *slog.Logger) *Registry {
	if namer == nil {
		namer = naming.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		namer:  namer,
		logger: logger,
		byName: make(map[string]*ModelDescriptor),
	}
}

// Namer returns the namer used for entity names.
func (r *Registry) Namer() *naming.Namer { return r.namer }

// RegisterDeclarations registers every declaration in order.
func (r *Registry) RegisterDeclarations(decls []Declaration) error {
	for _, decl := range decls {
		if _, err := r.Register(decl); err != nil {
			return err
		}
	}
	return nil
}

// Register builds a ModelDescriptor from decl and adds it to the registry.
func (r *Registry) Register(decl Declaration) (*ModelDescriptor, error) {
	if r.processed.Load() {
		return nil, &DeclarationError{Entity: decl.Entity, Message: "cannot register after schema processing"}
	}
	if decl.Entity == "" {
		return nil, &DeclarationError{Message: "entity name is required"}
	}

	base := naming.DowncaseFirst(decl.Entity)
	m := &ModelDescriptor{
		entity:       decl.Entity,
		singularName: r.namer.Singularize(base),
		pluralName:   r.namer.Pluralize(base),
		fieldIndex:   make(map[string]int, len(decl.Fields)),
		skipFields:   make(map[string]struct{}),
		eagerLoad:    append([]string(nil), decl.EagerLoad...),
		registry:     r,
	}
	if _, exists := r.byName[m.singularName]; exists {
		return nil, &DeclarationError{Entity: decl.Entity, Message: "entity is already registered"}
	}

	for _, fd := range decl.Fields {
		if fd.Name == "" {
			return nil, &DeclarationError{Entity: decl.Entity, Message: "field name is required"}
		}
		if _, dup := m.fieldIndex[fd.Name]; dup {
			return nil, &DeclarationError{Entity: decl.Entity, Field: fd.Name, Message: "duplicate field"}
		}
		field, err := fd.Descriptor()
		if err != nil {
			return nil, &DeclarationError{Entity: decl.Entity, Field: fd.Name, Message: err.Error()}
		}
		m.fieldIndex[fd.Name] = len(m.fields)
		m.fields = append(m.fields, field)
	}

	r.models = append(r.models, m)
	r.byName[m.singularName] = m
	return m, nil
}

// Models returns the registered models in registration order.
func (r *Registry) Models() []*ModelDescriptor {
	return append([]*ModelDescriptor(nil), r.models...)
}

// Find looks a model up by singular or plural name, or nil.
func (r *Registry) Find(name string) *ModelDescriptor {
	if name == "" {
		return nil
	}
	return r.byName[r.namer.EntityKey(name)]
}

// Get looks a model up and fails with ModelNotFoundError.
func (r *Registry) Get(name string) (*ModelDescriptor, error) {
	if m := r.Find(name); m != nil {
		return m, nil
	}
	return nil, &ModelNotFoundError{Name: name}
}

// RelatedModel resolves the model on the other side of a relation. A relation
// without a related entity falls back to its own field name.
func (r *Registry) RelatedModel(owner *ModelDescriptor, field FieldDescriptor) (*ModelDescriptor, error) {
	if field.Related != "" {
		return r.Get(field.Related)
	}
	r.logger.Warn("relation has no related entity, using field name",
		slog.String("model", owner.SingularName()),
		slog.String("field", field.Name),
	)
	return r.Get(field.Name)
}

// ApplySkipFields records, per model singular name, the fields missing from
// the live schema and moves the registry to the processed state.
func (r *Registry) ApplySkipFields(skip map[string][]string) error {
	r.processMu.Lock()
	defer r.processMu.Unlock()
	if r.processed.Load() {
		return ErrAlreadyProcessed
	}
	for name, fields := range skip {
		m := r.Find(name)
		if m == nil {
			continue
		}
		for _, field := range fields {
			if !m.addSkipField(field) {
				r.logger.Debug("ignoring skip field not declared on model",
					slog.String("model", m.singularName),
					slog.String("field", field),
				)
			}
		}
	}
	r.processed.Store(true)
	return nil
}

// Processed reports whether schema processing has completed.
func (r *Registry) Processed() bool {
	return r.processed.Load()
}
