package observability

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tablegraph/internal/gqlrequest"
)

// requestField is one request property reported on spans and, when logKey is
// set, on log records.
type requestField struct {
	spanKey string
	logKey  string
	str     func(*gqlrequest.Analysis, gqlrequest.ExecMeta) string
	num     func(*gqlrequest.Analysis) (int, bool)
}

var requestFields = []requestField{
	{spanKey: "graphql.operation.requested_name", str: func(a *gqlrequest.Analysis, _ gqlrequest.ExecMeta) string {
		return requestOf(a).OperationName
	}},
	{spanKey: "graphql.operation.name", logKey: "operation_name", str: func(a *gqlrequest.Analysis, _ gqlrequest.ExecMeta) string {
		return valueOf(a).OperationName
	}},
	{spanKey: "graphql.operation.type", logKey: "operation_type", str: func(a *gqlrequest.Analysis, _ gqlrequest.ExecMeta) string {
		return valueOf(a).OperationType
	}},
	{spanKey: "graphql.operation.hash", logKey: "operation_hash", str: func(a *gqlrequest.Analysis, _ gqlrequest.ExecMeta) string {
		return valueOf(a).OperationHash
	}},
	{spanKey: "graphql.document.size_bytes", num: func(a *gqlrequest.Analysis) (int, bool) {
		n := requestOf(a).DocumentSizeBytes
		return n, n > 0
	}},
	{spanKey: "graphql.query.field_count", num: parsed(func(a *gqlrequest.Analysis) int { return a.FieldCount })},
	{spanKey: "graphql.query.depth", num: parsed(func(a *gqlrequest.Analysis) int { return a.SelectionDepth })},
	{spanKey: "graphql.query.variable_count", num: parsed(func(a *gqlrequest.Analysis) int { return a.VariableCount })},
	{spanKey: "db.name", logKey: "database", str: func(_ *gqlrequest.Analysis, m gqlrequest.ExecMeta) string {
		return strings.Join(m.Databases, ",")
	}},
	{spanKey: "schema.fingerprint", logKey: "schema_fingerprint", str: func(_ *gqlrequest.Analysis, m gqlrequest.ExecMeta) string {
		return m.Fingerprint
	}},
}

func valueOf(a *gqlrequest.Analysis) gqlrequest.Analysis {
	if a == nil {
		return gqlrequest.Analysis{}
	}
	return *a
}

func requestOf(a *gqlrequest.Analysis) gqlrequest.Request {
	return valueOf(a).Request
}

// parsed reports a count only when the document produced an operation.
func parsed(get func(*gqlrequest.Analysis) int) func(*gqlrequest.Analysis) (int, bool) {
	return func(a *gqlrequest.Analysis) (int, bool) {
		if a == nil || a.Operation == nil {
			return 0, false
		}
		return get(a), true
	}
}

// GraphQLSpanAttributes builds span attributes from request analysis. Empty
// values are omitted.
func GraphQLSpanAttributes(analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(requestFields))
	for _, f := range requestFields {
		switch {
		case f.str != nil:
			if v := f.str(analysis, meta); v != "" {
				attrs = append(attrs, attribute.String(f.spanKey, v))
			}
		case f.num != nil:
			if v, ok := f.num(analysis); ok {
				attrs = append(attrs, attribute.Int(f.spanKey, v))
			}
		}
	}
	return attrs
}

// GraphQLLogFields builds the log fields attached to the request logger,
// plus the trace id when ctx carries a span.
func GraphQLLogFields(ctx context.Context, analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []any {
	var fields []any
	for _, f := range requestFields {
		if f.logKey == "" || f.str == nil {
			continue
		}
		if v := f.str(analysis, meta); v != "" {
			fields = append(fields, slog.String(f.logKey, v))
		}
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	return fields
}
