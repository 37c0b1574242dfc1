package actions

import (
	"context"
	"fmt"

	"gqlorm/internal/builder"
	"gqlorm/internal/gqlrequest"
	"gqlorm/internal/logging"
	"gqlorm/internal/model"
	"gqlorm/internal/record"
	"gqlorm/internal/store"
	"gqlorm/internal/transport"
)

// QueryParams configures a custom query.
type QueryParams struct {
	// Filter values are passed as top-level arguments of the query field.
	Filter      *record.Record
	Multiple    bool
	BypassCache bool
}

// Mutate runs the custom mutation name on entity. Record-valued arguments
// are converted like persisted records.
func (s *Service) Mutate(ctx context.Context, entity, name string, args *record.Record) (store.Inserted, error) {
	var inserted store.Inserted
	err := s.run(ctx, ActionMutate, entity, func(ctx context.Context, _ *logging.Logger) error {
		sess, m, err := s.prepare(ctx, entity)
		if err != nil {
			return err
		}
		converted, err := s.outgoingArgs(sess, m, args)
		if err != nil {
			return err
		}
		data, err := s.mutate(ctx, sess, ActionMutate, m, name, converted)
		if err != nil {
			return err
		}
		_, inserted, err = s.insertIncoming(ctx, sess, m, data, true)
		return err
	})
	return inserted, err
}

// Query runs the custom query name on entity and stores the result.
func (s *Service) Query(ctx context.Context, entity, name string, params QueryParams) (store.Inserted, error) {
	var inserted store.Inserted
	err := s.run(ctx, ActionQuery, entity, func(ctx context.Context, _ *logging.Logger) error {
		sess, m, err := s.prepare(ctx, entity)
		if err != nil {
			return err
		}
		var keys []string
		if params.Filter != nil {
			keys = params.Filter.Keys()
		}
		filter, err := sess.transformer.TransformOutgoingData(m, params.Filter, keys)
		if err != nil {
			return err
		}
		doc, err := sess.builder.BuildQuery(ctx, builder.KindQuery, m, name, filter, builder.WithMultiple(params.Multiple))
		if err != nil {
			return err
		}
		data, err := s.execute(ctx, sess, ActionQuery, m, doc, !params.BypassCache)
		if err != nil {
			return err
		}
		_, inserted, err = s.insertIncoming(ctx, sess, m, data, false)
		return err
	})
	return inserted, err
}

// SimpleQuery sends a hand-written query and returns the raw data. Nothing
// is written to the store.
func (s *Service) SimpleQuery(ctx context.Context, text string, variables *record.Record, bypassCache bool) (*record.Record, error) {
	return s.simple(ctx, ActionSimpleQuery, text, variables, !bypassCache)
}

// SimpleMutation sends a hand-written mutation and returns the raw data.
func (s *Service) SimpleMutation(ctx context.Context, text string, variables *record.Record) (*record.Record, error) {
	return s.simple(ctx, ActionSimpleMutation, text, variables, false)
}

func (s *Service) simple(ctx context.Context, action, text string, variables *record.Record, useCache bool) (*record.Record, error) {
	var data *record.Record
	err := s.run(ctx, action, "", func(ctx context.Context, _ *logging.Logger) error {
		doc, err := gqlrequest.Parse(text)
		if err != nil {
			return &builder.DocumentSyntaxError{Text: text, Err: err}
		}
		analysis := gqlrequest.AnalyzeDocument(doc, "")
		if err := analysis.Err(); err != nil {
			return &builder.DocumentSyntaxError{Text: text, Err: err}
		}
		ctx = gqlrequest.WithExecMeta(ctx, gqlrequest.ExecMeta{
			Action:        action,
			OperationName: analysis.OperationName,
			OperationType: analysis.OperationType,
			OperationHash: analysis.OperationHash,
		})
		data, err = s.executor.Execute(ctx, doc, record.CloneRecord(variables), transport.ExecuteOptions{UseCache: useCache})
		return err
	})
	return data, err
}

// outgoingArgs converts record-valued arguments, looking up the model by
// argument name and falling back to m.
func (s *Service) outgoingArgs(sess *session, m *model.ModelDescriptor, args *record.Record) (*record.Record, error) {
	out := record.New()
	if args == nil {
		return out, nil
	}
	var firstErr error
	args.Range(func(key string, value any) bool {
		rec, ok := record.AsRecord(value)
		if !ok {
			out.Set(key, record.Clone(value))
			return true
		}
		target := m
		if found := s.registry.Find(key); found != nil {
			target = found
		}
		converted, err := sess.transformer.TransformOutgoingData(target, rec, nil)
		if err != nil {
			firstErr = fmt.Errorf("argument %s: %w", key, err)
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
