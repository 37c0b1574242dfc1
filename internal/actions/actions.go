// Package actions runs store actions against the GraphQL endpoint: it loads
// the schema, builds a document, executes it, and writes the transformed
// response into the local store.
package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"gqlorm/internal/builder"
	"gqlorm/internal/gqlrequest"
	"gqlorm/internal/logging"
	"gqlorm/internal/model"
	"gqlorm/internal/observability"
	"gqlorm/internal/record"
	"gqlorm/internal/schemaload"
	"gqlorm/internal/store"
	"gqlorm/internal/transform"
	"gqlorm/internal/transport"
)

// Action names used for logs, spans and metrics.
const (
	ActionFetch          = "fetch"
	ActionPersist        = "persist"
	ActionPush           = "push"
	ActionDestroy        = "destroy"
	ActionMutate         = "mutate"
	ActionQuery          = "query"
	ActionSimpleQuery    = "simple_query"
	ActionSimpleMutation = "simple_mutation"
)

// Config wires a Service.
type Config struct {
	Loader   *schemaload.Loader
	Registry *model.Registry
	Executor transport.Executor
	Store    store.Store
	Logger   *logging.Logger
	Metrics  *observability.ClientMetrics
}

// session is the builder and transformer for one schema snapshot.
type session struct {
	snapshot    *schemaload.Snapshot
	builder     *builder.DocumentBuilder
	transformer *transform.Transformer
}

// Service exposes the store actions. It is safe for concurrent use.
type Service struct {
	loader   *schemaload.Loader
	registry *model.Registry
	executor transport.Executor
	store    store.Store
	logger   *logging.Logger
	metrics  *observability.ClientMetrics

	mu      sync.Mutex
	current *session
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Loader == nil {
		return nil, fmt.Errorf("actions require a schema loader")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("actions require a model registry")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("actions require an executor")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("actions require a store")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}
	return &Service{
		loader:   cfg.Loader,
		registry: cfg.Registry,
		executor: cfg.Executor,
		store:    cfg.Store,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}, nil
}

// session returns the builder for the current schema snapshot, rebuilding
// it when a refresh swapped the snapshot.
func (s *Service) session(ctx context.Context) (*session, error) {
	snapshot, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	// Load returns the first snapshot; a refresh may have replaced it.
	if current := s.loader.CurrentSnapshot(); current != nil {
		snapshot = current
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.snapshot.Fingerprint == snapshot.Fingerprint {
		return s.current, nil
	}

	b, err := builder.New(s.registry, snapshot.Index, snapshot.Mode,
		builder.WithLogger(s.logger.Logger),
		builder.WithMetrics(s.metrics),
	)
	if err != nil {
		return nil, err
	}
	s.current = &session{
		snapshot:    snapshot,
		builder:     b,
		transformer: transform.New(s.registry, b.Mode(), s.logger.Logger),
	}
	return s.current, nil
}

// run wraps one action in a span and records its metrics.
func (s *Service) run(ctx context.Context, action, entity string, fn func(ctx context.Context, logger *logging.Logger) error) (err error) {
	started := time.Now()
	ctx, span := observability.StartSpan(ctx, "gqlorm."+action,
		attribute.String("gqlorm.action", action),
		attribute.String("gqlorm.entity", entity),
	)
	logger := s.logger.WithAction(action, entity)
	if requestID := logging.GetRequestID(ctx); requestID != "" {
		logger = logger.WithRequestID(requestID)
	}
	defer func() {
		observability.FinishSpan(span, err)
		s.metrics.RecordAction(ctx, time.Since(started), action, entity, err)
		if err != nil {
			logger.Debug("action failed", slog.String("error", err.Error()))
		}
	}()
	return fn(logging.WithLogger(ctx, logger), logger)
}

// execute sends a built document, tagging the request with the action.
func (s *Service) execute(ctx context.Context, sess *session, action string, m *model.ModelDescriptor, doc *builder.BuiltDocument, useCache bool) (*record.Record, error) {
	ctx = gqlrequest.WithExecMeta(ctx, gqlrequest.ExecMeta{
		Action:            action,
		Entity:            m.PluralName(),
		OperationName:     doc.Name,
		OperationType:     string(doc.Kind),
		OperationHash:     doc.OperationHash,
		SchemaFingerprint: sess.snapshot.Fingerprint,
	})
	ctx = gqlrequest.WithAnalysis(ctx, doc.Analysis)
	return s.executor.Execute(ctx, doc.Document, doc.Variables, transport.ExecuteOptions{UseCache: useCache})
}

// insertIncoming transforms response data and writes it to the store. It
// returns the transformed data next to what was written.
func (s *Service) insertIncoming(ctx context.Context, sess *session, m *model.ModelDescriptor, data *record.Record, isMutation bool) (*record.Record, store.Inserted, error) {
	transformed, err := sess.transformer.TransformIncomingData(data, m, isMutation)
	if err != nil {
		return nil, nil, err
	}
	rec, ok := record.AsRecord(transformed)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected response data %T", transformed)
	}
	rec = s.normalizeRoot(ctx, m, rec)
	if rec.Len() == 0 {
		return rec, store.Inserted{}, nil
	}

	inserted, err := s.store.InsertOrUpdate(ctx, rec)
	if err != nil {
		return nil, nil, fmt.Errorf("insert %s: %w", m.PluralName(), err)
	}
	for entity, recs := range inserted {
		s.metrics.RecordInserted(ctx, len(recs), entity)
	}
	return rec, inserted, nil
}

// normalizeRoot renames root keys that do not name an entity, such as
// "unpublishedPosts" or "publishPosts", after m. Scalar results have no
// store representation and are dropped.
func (s *Service) normalizeRoot(ctx context.Context, m *model.ModelDescriptor, rec *record.Record) *record.Record {
	out := record.New()
	rec.Range(func(key string, value any) bool {
		if s.registry.Find(key) != nil {
			out.Set(key, value)
			return true
		}
		switch {
		case isList(value):
			out.Set(m.PluralName(), value)
		case record.IsObject(value):
			out.Set(m.SingularName(), value)
		default:
			logging.FromContext(ctx).Debug("dropping scalar result", slog.String("field", key))
		}
		return true
	})
	return out
}

func isList(v any) bool {
	_, ok := v.([]any)
	return ok
}

// mutationReturnsConnection decides whether a mutation selects a collection.
func mutationReturnsConnection(sess *session, name string) (bool, error) {
	field, err := sess.snapshot.Index.GetMutation(name, false)
	if err != nil {
		return false, err
	}
	return sess.snapshot.Index.ReturnsConnection(field)
}
