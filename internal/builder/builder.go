// Package builder renders GraphQL queries and mutations for store entities
// from the introspected schema and the registered models.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gqlorm/internal/gqlrequest"
	"gqlorm/internal/model"
	"gqlorm/internal/naming"
	"gqlorm/internal/observability"
	"gqlorm/internal/record"
	"gqlorm/internal/schema"
)

// MaxSelfReferenceDepth bounds how often a relation back to the same entity
// is nested, e.g. category { parent { parent { ... } } }.
const MaxSelfReferenceDepth = 5

// DocumentBuilder renders documents against one schema index. It only reads
// from the registry and index, so one builder is safe for concurrent use.
type DocumentBuilder struct {
	registry *model.Registry
	index    *schema.Index
	mode     schema.ConnectionMode
	namer    *naming.Namer
	logger   *slog.Logger
	metrics  *observability.ClientMetrics
}

// Option customizes a DocumentBuilder.
type Option func(*DocumentBuilder)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *DocumentBuilder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records build metrics.
func WithMetrics(metrics *observability.ClientMetrics) Option {
	return func(b *DocumentBuilder) {
		b.metrics = metrics
	}
}

// New creates a builder. ModeAuto is resolved from the index.
func New(registry *model.Registry, index *schema.Index, mode schema.ConnectionMode, opts ...Option) (*DocumentBuilder, error) {
	if registry == nil || index == nil {
		return nil, fmt.Errorf("registry and schema index are required")
	}
	if mode == "" || mode == schema.ModeAuto {
		detected, err := index.DetermineQueryMode()
		if err != nil {
			return nil, err
		}
		mode = detected
	}
	b := &DocumentBuilder{
		registry: registry,
		index:    index,
		mode:     mode,
		namer:    registry.Namer(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Mode returns the connection mode documents are rendered for.
func (b *DocumentBuilder) Mode() schema.ConnectionMode { return b.mode }

// Index returns the schema index.
func (b *DocumentBuilder) Index() *schema.Index { return b.index }

type buildOptions struct {
	multiple         *bool
	useFilterWrapper bool
}

// BuildOption customizes a single BuildQuery call.
type BuildOption func(*buildOptions)

// WithMultiple forces a collection (true) or single record (false) selection.
// Without it, the presence of an "id" argument decides.
func WithMultiple(multiple bool) BuildOption {
	return func(o *buildOptions) {
		o.multiple = &multiple
	}
}

// WithFilterWrapper passes the arguments of the root field as
// filter: { ... } and resolves their types from the <Entity>Filter input.
func WithFilterWrapper() BuildOption {
	return func(o *buildOptions) {
		o.useFilterWrapper = true
	}
}

// BuildQuery renders, parses and analyzes one operation on m. An empty name
// defaults to the plural or singular entity name.
func (b *DocumentBuilder) BuildQuery(ctx context.Context, kind Kind, m *model.ModelDescriptor, name string, args *record.Record, opts ...BuildOption) (*BuiltDocument, error) {
	if !b.registry.Processed() {
		return nil, model.ErrSchemaNotProcessed
	}
	if m == nil {
		return nil, fmt.Errorf("model is required")
	}
	started := time.Now()

	options := &buildOptions{}
	for _, opt := range opts {
		opt(options)
	}

	variables := record.CloneRecord(args)
	if variables == nil {
		variables = record.New()
	}
	markedArgs := markObjectArgs(variables)

	multiple := !markedArgs.Has("id")
	if options.multiple != nil {
		multiple = *options.multiple
	}
	if name == "" {
		name = defaultFieldName(m, multiple)
	}

	rootField := b.index.RootField(name)
	if rootField == nil {
		if kind == KindMutation {
			return nil, &schema.SchemaMutationNotFoundError{Name: name}
		}
		return nil, &schema.SchemaQueryNotFoundError{Name: name}
	}

	signature, err := b.buildArguments(m, markedArgs, true, options.useFilterWrapper, true, rootField)
	if err != nil {
		return nil, err
	}
	selection, err := b.buildField(m, multiple, markedArgs, RecursionPath{}, name, options.useFilterWrapper, true)
	if err != nil {
		return nil, err
	}

	operationName := naming.UpcaseFirst(name)
	text := fmt.Sprintf("%s %s%s {\n  %s\n}", kind, operationName, signature, selection)

	doc, err := gqlrequest.Parse(text)
	if err != nil {
		return nil, &DocumentSyntaxError{Text: text, Err: err}
	}
	analysis := gqlrequest.AnalyzeDocument(doc, operationName)
	if err := analysis.Err(); err != nil {
		return nil, &DocumentSyntaxError{Text: text, Err: err}
	}

	b.metrics.RecordDocumentBuilt(ctx, time.Since(started), analysis.SelectionDepth, string(kind), m.SingularName())
	b.logger.Debug("built graphql document",
		slog.String("operation", operationName),
		slog.String("operation_hash", analysis.OperationHash),
		slog.Int("depth", analysis.SelectionDepth),
	)

	return &BuiltDocument{
		Kind:          kind,
		Name:          operationName,
		Text:          text,
		Document:      doc,
		Variables:     variables,
		OperationHash: analysis.OperationHash,
		Analysis:      analysis,
	}, nil
}

// markObjectArgs replaces object values with TypeMarkers named after their
// key. The returned record shares nothing with args.
func markObjectArgs(args *record.Record) *record.Record {
	out := record.New()
	args.Range(func(key string, value any) bool {
		if record.IsObject(value) {
			out.Set(key, TypeMarker{Type: naming.UpcaseFirst(key)})
		} else {
			out.Set(key, record.Clone(value))
		}
		return true
	})
	return out
}

func defaultFieldName(m *model.ModelDescriptor, multiple bool) string {
	if multiple {
		return m.PluralName()
	}
	return m.SingularName()
}
