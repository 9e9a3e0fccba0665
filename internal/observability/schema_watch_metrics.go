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

// Schema check outcomes.
const (
	SchemaCheckUnchanged = "unchanged"
	SchemaCheckChanged   = "changed"
	SchemaCheckError     = "error"
)

// Invalidation triggers.
const (
	InvalidationTriggerWatch = "watch"
	InvalidationTriggerAdmin = "admin"
)

// SchemaWatchMetrics records metadata polling and cache invalidation. A nil
// *SchemaWatchMetrics records nothing.
type SchemaWatchMetrics struct {
	checkCounter        metric.Int64Counter
	checkDuration       metric.Float64Histogram
	invalidationCounter metric.Int64Counter
	lastCheckUnix       atomic.Int64
}

// InitSchemaWatchMetrics registers the schema watch instruments.
func InitSchemaWatchMetrics(logger *slog.Logger) (*SchemaWatchMetrics, error) {
	meter := otel.Meter("tablegraph")

	checkCounter, err := meter.Int64Counter(
		"schema.watch.checks.total",
		metric.WithDescription("Table metadata checks by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema check counter: %w", err)
	}

	checkDuration, err := meter.Float64Histogram(
		"schema.watch.check.duration",
		metric.WithDescription("Duration of table metadata checks in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema check duration histogram: %w", err)
	}

	invalidationCounter, err := meter.Int64Counter(
		"schema.cache.invalidations.total",
		metric.WithDescription("Compiled schema cache invalidations by trigger"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema invalidation counter: %w", err)
	}

	lastCheckGauge, err := meter.Int64ObservableGauge(
		"schema.watch.last_check_unix",
		metric.WithDescription("Unix timestamp of the last successful metadata check"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema last check gauge: %w", err)
	}

	m := &SchemaWatchMetrics{
		checkCounter:        checkCounter,
		checkDuration:       checkDuration,
		invalidationCounter: invalidationCounter,
	}
	_, err = meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		if value := m.lastCheckUnix.Load(); value > 0 {
			observer.ObserveInt64(lastCheckGauge, value)
		}
		return nil
	}, lastCheckGauge)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema last check callback: %w", err)
	}

	logger.Info("schema watch metrics initialized")
	return m, nil
}

// RecordCheck records one metadata poll.
func (m *SchemaWatchMetrics) RecordCheck(ctx context.Context, duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.checkCounter.Add(ctx, 1, attrs)
	m.checkDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if outcome != SchemaCheckError {
		m.lastCheckUnix.Store(time.Now().Unix())
	}
}

// RecordInvalidation counts a cache invalidation.
func (m *SchemaWatchMetrics) RecordInvalidation(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	m.invalidationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}

// LastCheck returns the time of the last successful check, or zero.
func (m *SchemaWatchMetrics) LastCheck() time.Time {
	if m == nil {
		return time.Time{}
	}
	if v := m.lastCheckUnix.Load(); v > 0 {
		return time.Unix(v, 0)
	}
	return time.Time{}
}
