package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gqlorm/internal/gqlrequest"
)

// requestField is one string describing an outgoing request, named for
// spans and for log records.
type requestField struct {
	spanKey string
	logKey  string
	value   string
}

func requestFields(analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []requestField {
	var name, opType, hash string
	if analysis != nil {
		name, opType, hash = analysis.OperationName, analysis.OperationType, analysis.OperationHash
	}
	all := []requestField{
		{"graphql.operation.name", "operation_name", name},
		{"graphql.operation.type", "operation_type", opType},
		{"graphql.operation.hash", "operation_hash", hash},
		{"gqlorm.action", "action", meta.Action},
		{"gqlorm.entity", "entity", meta.Entity},
	}
	out := all[:0]
	for _, f := range all {
		if f.value != "" {
			out = append(out, f)
		}
	}
	return out
}

// GraphQLSpanAttributes describes a request for the graphql.execute span.
func GraphQLSpanAttributes(analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []attribute.KeyValue {
	fields := requestFields(analysis, meta)
	attrs := make([]attribute.KeyValue, 0, len(fields)+5)
	for _, f := range fields {
		attrs = append(attrs, attribute.String(f.spanKey, f.value))
	}
	if meta.SchemaFingerprint != "" {
		attrs = append(attrs, attribute.String("schema.fingerprint", meta.SchemaFingerprint))
	}
	if analysis == nil {
		return attrs
	}
	if size := analysis.Envelope.DocumentSizeBytes(); size > 0 {
		attrs = append(attrs, attribute.Int("graphql.document.size_bytes", size))
	}
	if analysis.Operation != nil {
		attrs = append(attrs,
			attribute.Int("graphql.query.field_count", analysis.FieldCount),
			attribute.Int("graphql.query.depth", analysis.SelectionDepth),
			attribute.Int("graphql.query.variable_count", analysis.VariableCount),
		)
	}
	return attrs
}

// GraphQLLogFields describes a request for log records, adding the trace ID
// when ctx carries a span.
func GraphQLLogFields(ctx context.Context, analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []any {
	fields := requestFields(analysis, meta)
	out := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, slog.String(f.logKey, f.value))
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		out = append(out, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	return out
}
