package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tablegraph/internal/gqlrequest"
)

func TestGraphQLSpanAttributes(t *testing.T) {
	analysis := gqlrequest.Analyze(gqlrequest.Request{
		Query:             "query Q { users { totalCount } }",
		OperationName:     "Q",
		DocumentSizeBytes: 32,
	})
	meta := gqlrequest.ExecMeta{Databases: []string{"test"}, Fingerprint: "fp-1"}

	attrs := GraphQLSpanAttributes(analysis, meta)
	byKey := map[attribute.Key]attribute.Value{}
	for _, kv := range attrs {
		byKey[kv.Key] = kv.Value
	}
	assert.Equal(t, "Q", byKey["graphql.operation.name"].AsString())
	assert.Equal(t, "query", byKey["graphql.operation.type"].AsString())
	assert.Equal(t, int64(2), byKey["graphql.query.field_count"].AsInt64())
	assert.Equal(t, "test", byKey["db.name"].AsString())
	assert.Equal(t, "fp-1", byKey["schema.fingerprint"].AsString())
}

func TestGraphQLSpanAttributes_NilAnalysis(t *testing.T) {
	assert.Empty(t, GraphQLSpanAttributes(nil, gqlrequest.ExecMeta{}))
}

func TestGraphQLLogFieldsIncludesTraceID(t *testing.T) {
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
		Remote:  true,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	fields := GraphQLLogFields(ctx, &gqlrequest.Analysis{OperationName: "Q"}, gqlrequest.ExecMeta{})
	assert.Contains(t, fields, slog.String("operation_name", "Q"))
	assert.Contains(t, fields, slog.String("trace_id", spanCtx.TraceID().String()))
}

func TestGraphQLSpanAttributes_UnparsedDocument(t *testing.T) {
	analysis := gqlrequest.Analyze(gqlrequest.Request{Query: "{ users {", DocumentSizeBytes: 9})

	keys := map[attribute.Key]bool{}
	for _, kv := range GraphQLSpanAttributes(analysis, gqlrequest.ExecMeta{}) {
		keys[kv.Key] = true
	}
	assert.True(t, keys["graphql.document.size_bytes"])
	assert.False(t, keys["graphql.query.field_count"])
	assert.False(t, keys["db.name"])
}
