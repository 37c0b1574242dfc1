package actions

import (
	"context"
	"log/slog"

	"gqlorm/internal/builder"
	"gqlorm/internal/logging"
	"gqlorm/internal/model"
	"gqlorm/internal/record"
	"gqlorm/internal/store"
)

// FetchParams narrows a fetch.
type FetchParams struct {
	// Filter holds field values to match. A filter with an "id" fetches a
	// single record.
	Filter *record.Record
	// BypassCache skips cached responses. The result still refreshes the
	// cache.
	BypassCache bool
}

// Fetch loads records of entity from the server into the store.
func (s *Service) Fetch(ctx context.Context, entity string, params FetchParams) (store.Inserted, error) {
	var inserted store.Inserted
	err := s.run(ctx, ActionFetch, entity, func(ctx context.Context, logger *logging.Logger) error {
		sess, m, err := s.prepare(ctx, entity)
		if err != nil {
			return err
		}
		doc, err := buildFetch(ctx, sess, m, params)
		if err != nil {
			return err
		}

		data, err := s.execute(ctx, sess, ActionFetch, m, doc, !params.BypassCache)
		if err != nil {
			return err
		}
		_, inserted, err = s.insertIncoming(ctx, sess, m, data, false)
		if err != nil {
			return err
		}
		logger.Debug("fetched records", slog.Int("inserted", inserted.Count()))
		return nil
	})
	return inserted, err
}

// BuildFetch returns the document Fetch would send without executing it.
func (s *Service) BuildFetch(ctx context.Context, entity string, params FetchParams) (*builder.BuiltDocument, error) {
	sess, m, err := s.prepare(ctx, entity)
	if err != nil {
		return nil, err
	}
	return buildFetch(ctx, sess, m, params)
}

func buildFetch(ctx context.Context, sess *session, m *model.ModelDescriptor, params FetchParams) (*builder.BuiltDocument, error) {
	var keys []string
	if params.Filter != nil {
		keys = params.Filter.Keys()
	}
	filter, err := sess.transformer.TransformOutgoingData(m, params.Filter, keys)
	if err != nil {
		return nil, err
	}

	multiple := !filter.Has("id")
	opts := []builder.BuildOption{builder.WithMultiple(multiple)}
	if multiple {
		opts = append(opts, builder.WithFilterWrapper())
	}
	return sess.builder.BuildQuery(ctx, builder.KindQuery, m, "", filter, opts...)
}

// Persist creates a local record on the server. The unsaved local copy is
// replaced by the record the server returns.
func (s *Service) Persist(ctx context.Context, entity string, id any) (*record.Record, error) {
	var saved *record.Record
	err := s.run(ctx, ActionPersist, entity, func(ctx context.Context, logger *logging.Logger) error {
		sess, m, err := s.prepare(ctx, entity)
		if err != nil {
			return err
		}
		local, err := s.store.Find(m.PluralName(), id, belongsToRelations(m)...)
		if err != nil {
			return err
		}
		if local == nil {
			return &store.NotFoundError{Entity: m.PluralName(), ID: store.IDKey(id)}
		}

		payload, err := sess.transformer.TransformOutgoingData(m, local, nil)
		if err != nil {
			return err
		}
		name := s.registry.Namer().CreateMutationName(m.SingularName())
		data, err := s.mutate(ctx, sess, ActionPersist, m, name, record.FromPairs(m.SingularName(), payload))
		if err != nil {
			return err
		}

		// The local record stays until the server copy is stored.
		result, _, err := s.insertIncoming(ctx, sess, m, data, true)
		if err != nil {
			return err
		}
		saved, err = s.findResult(m, result)
		if err != nil {
			return err
		}
		if _, err := s.store.Delete(m.PluralName(), id); err != nil {
			return err
		}
		logger.Debug("persisted record", slog.String("local_id", store.IDKey(id)))
		return nil
	})
	return saved, err
}

// Push sends the changes of a persisted record to the server.
func (s *Service) Push(ctx context.Context, entity string, rec *record.Record) (*record.Record, error) {
	var saved *record.Record
	err := s.run(ctx, ActionPush, entity, func(ctx context.Context, _ *logging.Logger) error {
		sess, m, err := s.prepare(ctx, entity)
		if err != nil {
			return err
		}
		if rec == nil || rec.Value("id") == nil {
			return &store.NotFoundError{Entity: m.PluralName()}
		}

		payload, err := sess.transformer.TransformOutgoingData(m, rec, nil)
		if err != nil {
			return err
		}
		name := s.registry.Namer().UpdateMutationName(m.SingularName())
		args := record.FromPairs("id", record.Clone(rec.Value("id")), m.SingularName(), payload)
		data, err := s.mutate(ctx, sess, ActionPush, m, name, args)
		if err != nil {
			return err
		}

		result, _, err := s.insertIncoming(ctx, sess, m, data, true)
		if err != nil {
			return err
		}
		saved, err = s.findResult(m, result)
		return err
	})
	return saved, err
}

// Destroy deletes a record on the server and then locally.
func (s *Service) Destroy(ctx context.Context, entity string, id any) error {
	return s.run(ctx, ActionDestroy, entity, func(ctx context.Context, logger *logging.Logger) error {
		sess, m, err := s.prepare(ctx, entity)
		if err != nil {
			return err
		}
		name := s.registry.Namer().DeleteMutationName(m.SingularName())
		if _, err := s.mutate(ctx, sess, ActionDestroy, m, name, record.FromPairs("id", id)); err != nil {
			return err
		}
		removed, err := s.store.Delete(m.PluralName(), id)
		if err != nil {
			return err
		}
		logger.Debug("destroyed record", slog.Bool("removed_locally", removed))
		return nil
	})
}

// prepare resolves the schema session and the model of entity.
func (s *Service) prepare(ctx context.Context, entity string) (*session, *model.ModelDescriptor, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.registry.Get(entity)
	if err != nil {
		return nil, nil, err
	}
	return sess, m, nil
}

// mutate builds and sends a mutation. Mutations never read the cache.
func (s *Service) mutate(ctx context.Context, sess *session, action string, m *model.ModelDescriptor, name string, args *record.Record) (*record.Record, error) {
	multiple, err := mutationReturnsConnection(sess, name)
	if err != nil {
		return nil, err
	}
	doc, err := sess.builder.BuildQuery(ctx, builder.KindMutation, m, name, args, builder.WithMultiple(multiple))
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, sess, action, m, doc, false)
}

// findResult reads the single record a mutation returned back from the
// store.
func (s *Service) findResult(m *model.ModelDescriptor, result *record.Record) (*record.Record, error) {
	returned, ok := record.AsRecord(result.Value(m.SingularName()))
	if !ok {
		return nil, nil
	}
	return s.store.Find(m.PluralName(), returned.Value("id"))
}

func belongsToRelations(m *model.ModelDescriptor) []string {
	var out []string
	for _, field := range m.GetRelations() {
		if field.Kind == model.KindBelongsTo {
			out = append(out, field.Name)
		}
	}
	return out
}
