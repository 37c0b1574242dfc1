package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SchemaLoadMetrics holds metrics for schema introspection.
type SchemaLoadMetrics struct {
	loadCounter     metric.Int64Counter
	errorCounter    metric.Int64Counter
	durationHist    metric.Float64Histogram
	lastSuccessUnix atomic.Int64
}

// InitSchemaLoadMetrics initializes schema load metrics.
func InitSchemaLoadMetrics(logger *slog.Logger) (*SchemaLoadMetrics, error) {
	meter := otel.Meter(MeterName)

	loadCounter, err := meter.Int64Counter(
		"gqlorm.schema.load.total",
		metric.WithDescription("Total number of schema introspection attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema load counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"gqlorm.schema.load.errors.total",
		metric.WithDescription("Total number of failed schema introspection attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema load error counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"gqlorm.schema.load.duration",
		metric.WithDescription("Duration of schema introspection in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema load duration histogram: %w", err)
	}

	lastSuccessGauge, err := meter.Int64ObservableGauge(
		"gqlorm.schema.load.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful schema load"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema load last success gauge: %w", err)
	}

	metrics := &SchemaLoadMetrics{
		loadCounter:  loadCounter,
		errorCounter: errorCounter,
		durationHist: durationHist,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			if value := metrics.lastSuccessUnix.Load(); value > 0 {
				observer.ObserveInt64(lastSuccessGauge, value)
			}
			return nil
		},
		lastSuccessGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema load gauge callback: %w", err)
	}

	if logger != nil {
		logger.Debug("schema load metrics initialized")
	}
	return metrics, nil
}

// RecordLoad records one introspection attempt.
func (m *SchemaLoadMetrics) RecordLoad(ctx context.Context, duration time.Duration, success bool, mode string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("connection_mode", mode),
		attribute.Bool("success", success),
	}

	m.loadCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if !success {
		m.errorCounter.Add(ctx, 1)
		return
	}
	m.lastSuccessUnix.Store(time.Now().Unix())
}
