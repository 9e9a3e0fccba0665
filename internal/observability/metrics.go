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

// GraphQLMetrics holds custom metrics for GraphQL operations. A nil
// *GraphQLMetrics is valid and records nothing.
type GraphQLMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	fetchDuration   metric.Float64Histogram
	fetchRows       metric.Int64Histogram
	fetchesPerQuery metric.Int64Histogram
	budgetExceeded  metric.Int64Counter
	schemaCompiles  metric.Float64Histogram
}

// InitGraphQLMetrics initializes GraphQL-specific metrics
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	meter := otel.Meter("tablegraph")

	requestDuration, err := meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"graphql.errors.total",
		metric.WithDescription("Total number of GraphQL errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"graphql.requests.active",
		metric.WithDescription("Number of active GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	fetchDuration, err := meter.Float64Histogram(
		"tablegraph.fetch.duration",
		metric.WithDescription("Duration of backend table fetches in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch duration histogram: %w", err)
	}

	fetchRows, err := meter.Int64Histogram(
		"tablegraph.fetch.rows",
		metric.WithDescription("Number of rows returned by a backend fetch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch rows histogram: %w", err)
	}

	fetchesPerQuery, err := meter.Int64Histogram(
		"tablegraph.fetches_per_request",
		metric.WithDescription("Number of backend fetches issued by one GraphQL request"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetches per request histogram: %w", err)
	}

	budgetExceeded, err := meter.Int64Counter(
		"tablegraph.budget.exceeded",
		metric.WithDescription("Number of fetches refused by the per-request budget"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create budget exceeded counter: %w", err)
	}

	schemaCompiles, err := meter.Float64Histogram(
		"tablegraph.schema.compile.duration",
		metric.WithDescription("Duration of schema compilation in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema compile histogram: %w", err)
	}

	return &GraphQLMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		activeRequests:  activeRequests,
		fetchDuration:   fetchDuration,
		fetchRows:       fetchRows,
		fetchesPerQuery: fetchesPerQuery,
		budgetExceeded:  budgetExceeded,
		schemaCompiles:  schemaCompiles,
	}, nil
}

// RecordRequest records a GraphQL request with its duration and outcome
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, errorCount int, fetches int) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Bool("has_errors", errorCount > 0),
	}

	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.fetchesPerQuery.Record(ctx, int64(fetches))

	if errorCount > 0 {
		m.errorCounter.Add(ctx, int64(errorCount))
	}
}

// RecordFetch records one backend fetch.
func (m *GraphQLMetrics) RecordFetch(ctx context.Context, table string, duration time.Duration, rows int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("table", table),
		attribute.Bool("error", err != nil),
	)
	m.fetchDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err == nil {
		m.fetchRows.Record(ctx, int64(rows), metric.WithAttributes(attribute.String("table", table)))
	}
}

// RecordBudgetExceeded counts a fetch refused by the request budget.
func (m *GraphQLMetrics) RecordBudgetExceeded(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.budgetExceeded.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSchemaCompile records how long a schema build took.
func (m *GraphQLMetrics) RecordSchemaCompile(ctx context.Context, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.schemaCompiles.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.Bool("error", err != nil),
	))
}

// IncrementActiveRequests increments the active requests counter
func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics and returns the GraphQLMetrics instance
func InitMetrics(logger *slog.Logger) (*GraphQLMetrics, error) {
	metrics, err := InitGraphQLMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}

	logger.Info("custom GraphQL metrics initialized")
	return metrics, nil
}

type graphQLMetricsContextKey struct{}

// ContextWithGraphQLMetrics stores GraphQL metrics in the provided context.
func ContextWithGraphQLMetrics(ctx context.Context, metrics *GraphQLMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, graphQLMetricsContextKey{}, metrics)
}

// GraphQLMetricsFromContext retrieves GraphQL metrics from the context.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(graphQLMetricsContextKey{}).(*GraphQLMetrics)
	return metrics
}
