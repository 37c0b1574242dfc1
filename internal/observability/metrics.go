package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName scopes every instrument created by this package.
const MeterName = "gqlorm"

// ClientMetrics holds the instruments recorded while building, sending and
// applying GraphQL documents. A nil *ClientMetrics records nothing.
type ClientMetrics struct {
	documentsBuilt  metric.Int64Counter
	buildDuration   metric.Float64Histogram
	documentDepth   metric.Int64Histogram
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	sharedRequests  metric.Int64Counter
	actionCounter   metric.Int64Counter
	actionDuration  metric.Float64Histogram
	recordsInserted metric.Int64Counter
}

// InitClientMetrics creates the client instruments on the global meter provider.
func InitClientMetrics() (*ClientMetrics, error) {
	meter := otel.Meter(MeterName)
	m := &ClientMetrics{}
	var err error

	if m.documentsBuilt, err = meter.Int64Counter(
		"gqlorm.documents.built",
		metric.WithDescription("Number of GraphQL documents built"),
	); err != nil {
		return nil, fmt.Errorf("failed to create documents built counter: %w", err)
	}
	if m.buildDuration, err = meter.Float64Histogram(
		"gqlorm.document.build.duration",
		metric.WithDescription("Time spent rendering and parsing a document in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create build duration histogram: %w", err)
	}
	if m.documentDepth, err = meter.Int64Histogram(
		"gqlorm.document.depth",
		metric.WithDescription("Selection depth of built documents"),
	); err != nil {
		return nil, fmt.Errorf("failed to create document depth histogram: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram(
		"gqlorm.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	if m.requestCounter, err = meter.Int64Counter(
		"gqlorm.requests.total",
		metric.WithDescription("Total number of GraphQL requests sent"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	if m.errorCounter, err = meter.Int64Counter(
		"gqlorm.errors.total",
		metric.WithDescription("Total number of failed GraphQL requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	if m.activeRequests, err = meter.Int64UpDownCounter(
		"gqlorm.requests.active",
		metric.WithDescription("Number of GraphQL requests in flight"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}
	if m.cacheHits, err = meter.Int64Counter(
		"gqlorm.cache.hits",
		metric.WithDescription("Number of responses served from the response cache"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}
	if m.cacheMisses, err = meter.Int64Counter(
		"gqlorm.cache.misses",
		metric.WithDescription("Number of cacheable requests that missed the response cache"),
	); err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}
	if m.sharedRequests, err = meter.Int64Counter(
		"gqlorm.requests.shared",
		metric.WithDescription("Number of requests answered by an identical in-flight request"),
	); err != nil {
		return nil, fmt.Errorf("failed to create shared requests counter: %w", err)
	}
	if m.actionCounter, err = meter.Int64Counter(
		"gqlorm.actions.total",
		metric.WithDescription("Total number of store actions run"),
	); err != nil {
		return nil, fmt.Errorf("failed to create action counter: %w", err)
	}
	if m.actionDuration, err = meter.Float64Histogram(
		"gqlorm.action.duration",
		metric.WithDescription("Duration of store actions in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create action duration histogram: %w", err)
	}
	if m.recordsInserted, err = meter.Int64Counter(
		"gqlorm.records.inserted",
		metric.WithDescription("Number of records written to the local store"),
	); err != nil {
		return nil, fmt.Errorf("failed to create records inserted counter: %w", err)
	}

	return m, nil
}

// InitMetrics initializes the client metrics and logs once they are ready.
func InitMetrics(logger *slog.Logger) (*ClientMetrics, error) {
	metrics, err := InitClientMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize client metrics: %w", err)
	}
	logger.Debug("client metrics initialized")
	return metrics, nil
}

// RecordDocumentBuilt records one built document.
func (m *ClientMetrics) RecordDocumentBuilt(ctx context.Context, duration time.Duration, depth int, operationType, entity string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation_type", operationType),
		attribute.String("entity", entity),
	)
	m.documentsBuilt.Add(ctx, 1, attrs)
	m.buildDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.documentDepth.Record(ctx, int64(depth), attrs)
}

// RecordRequest records a finished GraphQL request.
func (m *ClientMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", hasErrors),
	}
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation_type", operationType),
		))
	}
}

// IncrementActiveRequests increments the in-flight request counter.
func (m *ClientMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the in-flight request counter.
func (m *ClientMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// RecordCacheLookup records a response cache hit or miss.
func (m *ClientMetrics) RecordCacheLookup(ctx context.Context, hit bool, operationType string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation_type", operationType))
	if hit {
		m.cacheHits.Add(ctx, 1, attrs)
		return
	}
	m.cacheMisses.Add(ctx, 1, attrs)
}

// RecordSharedRequest records a caller that joined an in-flight request.
func (m *ClientMetrics) RecordSharedRequest(ctx context.Context, operationType string) {
	if m == nil {
		return
	}
	m.sharedRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("operation_type", operationType)))
}

// RecordAction records one store action and its outcome.
func (m *ClientMetrics) RecordAction(ctx context.Context, duration time.Duration, action, entity string, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("entity", entity),
		attribute.Bool("success", err == nil),
	)
	m.actionCounter.Add(ctx, 1, attrs)
	m.actionDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordInserted records records written to the local store.
func (m *ClientMetrics) RecordInserted(ctx context.Context, count int, entity string) {
	if m == nil || count <= 0 {
		return
	}
	m.recordsInserted.Add(ctx, int64(count), metric.WithAttributes(attribute.String("entity", entity)))
}

type clientMetricsContextKey struct{}

// ContextWithClientMetrics stores client metrics in the provided context.
func ContextWithClientMetrics(ctx context.Context, metrics *ClientMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, clientMetricsContextKey{}, metrics)
}

// ClientMetricsFromContext retrieves client metrics from the context.
func ClientMetricsFromContext(ctx context.Context) *ClientMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(clientMetricsContextKey{}).(*ClientMetrics)
	return metrics
}
