package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gqlorm/internal/model"
	"gqlorm/internal/record"
)

type table struct {
	order   []string
	records map[string]*record.Record
}

func (t *table) get(key string) (*record.Record, bool) {
	if t == nil {
		return nil, false
	}
	rec, ok := t.records[key]
	return rec, ok
}

func (t *table) keys() []string {
	if t == nil {
		return nil
	}
	return t.order
}

func (t *table) put(key string, rec *record.Record) {
	if _, ok := t.records[key]; !ok {
		t.order = append(t.order, key)
	}
	t.records[key] = rec
}

func (t *table) remove(key string) bool {
	if _, ok := t.records[key]; !ok {
		return false
	}
	delete(t.records, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Memory is an in-process Store.
type Memory struct {
	registry *model.Registry
	logger   *slog.Logger

	mu     sync.RWMutex
	tables map[string]*table
	// links holds many-to-many membership: owner entity, owner id, field.
	links   map[string]map[string]map[string][]string
	localID int
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty store for the registered models.
func NewMemory(registry *model.Registry, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		registry: registry,
		logger:   logger,
		tables:   make(map[string]*table),
		links:    make(map[string]map[string]map[string][]string),
	}
}

// lookup returns the table of m without creating it, for readers.
func (s *Memory) lookup(m *model.ModelDescriptor) *table {
	return s.tables[m.SingularName()]
}

func (s *Memory) table(m *model.ModelDescriptor) *table {
	t, ok := s.tables[m.SingularName()]
	if !ok {
		t = &table{records: make(map[string]*record.Record)}
		s.tables[m.SingularName()] = t
	}
	return t
}

// InsertOrUpdate implements Store.
func (s *Memory) InsertOrUpdate(_ context.Context, data *record.Record) (Inserted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := Inserted{}
	var firstErr error
	data.Range(func(key string, value any) bool {
		m, err := s.registry.Get(key)
		if err != nil {
			firstErr = err
			return false
		}
		for _, item := range asItems(value) {
			rec, ok := record.AsRecord(item)
			if !ok {
				firstErr = fmt.Errorf("%s: expected an object, got %T", key, item)
				return false
			}
			if _, err := s.insert(m, rec, inserted); err != nil {
				firstErr = err
				return false
			}
		}
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return inserted, nil
}

// insert stores rec and its nested relations and returns the id key.
func (s *Memory) insert(m *model.ModelDescriptor, rec *record.Record, inserted Inserted) (string, error) {
	key := IDKey(rec.Value("id"))
	if key == "" {
		key = IDKey(rec.Value(model.MetaID))
	}
	if key == "" {
		key = s.nextLocalID()
	}

	t := s.table(m)
	stored, ok := t.records[key]
	if !ok {
		stored = record.New()
	}

	type pendingChild struct {
		field model.FieldDescriptor
		value any
	}
	var children []pendingChild

	var firstErr error
	rec.Range(func(k string, v any) bool {
		field, isField := m.Field(k)
		if isField && field.IsRelation() {
			if v != nil {
				children = append(children, pendingChild{field: field, value: v})
			}
			return true
		}
		stored.Set(k, record.Clone(v))
		return true
	})

	stored.Set(model.MetaID, key)
	stored.Set(model.MetaEntity, m.PluralName())
	if !stored.Has(model.MetaPersisted) {
		stored.Set(model.MetaPersisted, false)
	}
	t.put(key, stored)

	ownerID := stored.Value("id")
	if ownerID == nil {
		ownerID = key
	}

	for _, child := range children {
		related, err := s.registry.RelatedModel(m, child.field)
		if err != nil {
			return "", err
		}
		for _, item := range asItems(child.value) {
			nested, ok := record.AsRecord(item)
			if !ok {
				continue
			}
			nested = record.CloneRecord(nested)
			s.linkChild(m, child.field, nested, ownerID)

			childKey, err := s.insert(related, nested, inserted)
			if err != nil {
				firstErr = err
				break
			}
			switch child.field.Kind {
			case model.KindBelongsTo:
				if parent, ok := s.table(related).get(childKey); ok && child.field.ForeignKey != "" {
					stored.Set(child.field.ForeignKey, parent.Value("id"))
				}
			case model.KindBelongsToMany, model.KindMorphToMany, model.KindMorphedByMany, model.KindMorphTo:
				s.addLink(m, key, child.field.Name, childKey)
			}
		}
		if firstErr != nil {
			return "", firstErr
		}
	}

	inserted[m.PluralName()] = append(inserted[m.PluralName()], record.CloneRecord(stored))
	return key, nil
}

// linkChild sets the back reference a child needs to be found from its owner.
func (s *Memory) linkChild(owner *model.ModelDescriptor, field model.FieldDescriptor, child *record.Record, ownerID any) {
	switch field.Kind {
	case model.KindHasOne, model.KindHasMany:
		if field.ForeignKey != "" {
			child.Set(field.ForeignKey, ownerID)
		}
	case model.KindMorphOne, model.KindMorphMany:
		if field.MorphID != "" {
			child.Set(field.MorphID, ownerID)
		}
		if field.MorphType != "" {
			child.Set(field.MorphType, owner.PluralName())
		}
	}
}

func (s *Memory) addLink(owner *model.ModelDescriptor, ownerKey, field, childKey string) {
	byID, ok := s.links[owner.SingularName()]
	if !ok {
		byID = make(map[string]map[string][]string)
		s.links[owner.SingularName()] = byID
	}
	byField, ok := byID[ownerKey]
	if !ok {
		byField = make(map[string][]string)
		byID[ownerKey] = byField
	}
	for _, existing := range byField[field] {
		if existing == childKey {
			return
		}
	}
	byField[field] = append(byField[field], childKey)
}

func (s *Memory) nextLocalID() string {
	s.localID++
	return fmt.Sprintf("$uid%d", s.localID)
}

// Create implements Store. The record keeps its id if it has one and is
// marked as not persisted.
func (s *Memory) Create(entity string, rec *record.Record) (*record.Record, error) {
	m, err := s.registry.Get(entity)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := record.CloneRecord(rec)
	if stored == nil {
		stored = record.New()
	}
	key := IDKey(stored.Value("id"))
	if key == "" {
		key = s.nextLocalID()
	}
	stored.Set(model.MetaID, key)
	stored.Set(model.MetaEntity, m.PluralName())
	stored.Set(model.MetaPersisted, false)
	s.table(m).put(key, stored)
	return record.CloneRecord(stored), nil
}

// Find implements Store.
func (s *Memory) Find(entity string, id any, with ...string) (*record.Record, error) {
	m, err := s.registry.Get(entity)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(m, IDKey(id), with)
}

func (s *Memory) find(m *model.ModelDescriptor, key string, with []string) (*record.Record, error) {
	stored, ok := s.lookup(m).get(key)
	if !ok {
		return nil, nil
	}
	out := record.CloneRecord(stored)

	for name, nested := range groupWith(with) {
		field, ok := m.Field(name)
		if !ok || !field.IsRelation() {
			s.logger.Debug("ignoring unknown relation", slog.String("model", m.SingularName()), slog.String("relation", name))
			continue
		}
		related, err := s.registry.RelatedModel(m, field)
		if err != nil {
			return nil, err
		}
		value, err := s.loadRelation(m, key, out, field, related, nested)
		if err != nil {
			return nil, err
		}
		out.Set(name, value)
	}
	return out, nil
}

func (s *Memory) loadRelation(m *model.ModelDescriptor, key string, owner *record.Record, field model.FieldDescriptor, related *model.ModelDescriptor, with []string) (any, error) {
	ownerID := IDKey(owner.Value("id"))
	if ownerID == "" {
		ownerID = key
	}

	switch field.Kind {
	case model.KindBelongsTo:
		parent, err := s.find(related, IDKey(owner.Value(field.ForeignKey)), with)
		if err != nil || parent == nil {
			return nil, err
		}
		return parent, nil
	case model.KindHasOne, model.KindHasMany:
		matches, err := s.where(related, with, func(r *record.Record) bool {
			return IDKey(r.Value(field.ForeignKey)) == ownerID
		})
		if err != nil || field.Kind == model.KindHasMany {
			return toAny(matches), err
		}
		return first(matches), nil
	case model.KindMorphOne, model.KindMorphMany:
		matches, err := s.where(related, with, func(r *record.Record) bool {
			return IDKey(r.Value(field.MorphID)) == ownerID && r.Value(field.MorphType) == m.PluralName()
		})
		if err != nil || field.Kind == model.KindMorphMany {
			return toAny(matches), err
		}
		return first(matches), nil
	default:
		var out []*record.Record
		for _, childKey := range s.links[m.SingularName()][key][field.Name] {
			child, err := s.find(related, childKey, with)
			if err != nil {
				return nil, err
			}
			if child != nil {
				out = append(out, child)
			}
		}
		if !field.Kind.IsToMany() {
			return first(out), nil
		}
		return toAny(out), nil
	}
}

func (s *Memory) where(m *model.ModelDescriptor, with []string, match func(*record.Record) bool) ([]*record.Record, error) {
	t := s.lookup(m)
	var out []*record.Record
	for _, k := range t.keys() {
		if !match(t.records[k]) {
			continue
		}
		rec, err := s.find(m, k, with)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// All implements Store.
func (s *Memory) All(entity string) ([]*record.Record, error) {
	m, err := s.registry.Get(entity)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := s.lookup(m)
	out := make([]*record.Record, 0, len(t.keys()))
	for _, k := range t.keys() {
		out = append(out, record.CloneRecord(t.records[k]))
	}
	return out, nil
}

// Delete implements Store.
func (s *Memory) Delete(entity string, id any) (bool, error) {
	m, err := s.registry.Get(entity)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := IDKey(id)
	delete(s.links[m.SingularName()], key)
	return s.table(m).remove(key), nil
}

// groupWith turns ["author.profile", "comments"] into
// {"author": ["profile"], "comments": nil}.
func groupWith(with []string) map[string][]string {
	out := make(map[string][]string, len(with))
	for _, path := range with {
		head, rest, hasRest := strings.Cut(path, ".")
		if head == "" {
			continue
		}
		if _, ok := out[head]; !ok {
			out[head] = nil
		}
		if hasRest && rest != "" {
			out[head] = append(out[head], rest)
		}
	}
	return out
}

func asItems(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case []*record.Record:
		out := make([]any, len(val))
		for i, r := range val {
			out[i] = r
		}
		return out
	case nil:
		return nil
	default:
		return []any{val}
	}
}

func toAny(recs []*record.Record) []any {
	out := make([]any, len(recs))
	for i, r := range recs {
		out[i] = r
	}
	return out
}

func first(recs []*record.Record) any {
	if len(recs) == 0 {
		return nil
	}
	return recs[0]
}
