package observability

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestSchemaWatchMetrics_NilSafe(t *testing.T) {
	var m *SchemaWatchMetrics
	m.RecordCheck(context.Background(), time.Millisecond, SchemaCheckChanged)
	m.RecordInvalidation(context.Background(), InvalidationTriggerAdmin)
	assert.True(t, m.LastCheck().IsZero())
}

func TestSchemaWatchMetrics_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	m, err := InitSchemaWatchMetrics(slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCheck(ctx, 2*time.Millisecond, SchemaCheckUnchanged)
	m.RecordCheck(ctx, 3*time.Millisecond, SchemaCheckError)
	m.RecordInvalidation(ctx, InvalidationTriggerWatch)
	assert.False(t, m.LastCheck().IsZero())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			names[metric.Name] = true
		}
	}
	assert.True(t, names["schema.watch.checks.total"])
	assert.True(t, names["schema.watch.check.duration"])
	assert.True(t, names["schema.cache.invalidations.total"])
	assert.True(t, names["schema.watch.last_check_unix"])
}
