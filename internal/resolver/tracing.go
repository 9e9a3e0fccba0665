package resolver

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tablegraph/internal/costguard"
	"tablegraph/internal/typegen"
)

var tracer = otel.Tracer("tablegraph/resolver")

// startFetchSpan opens the span around one backend fetch.
func startFetchSpan(ctx context.Context, name string, ts *typegen.TypeSet, signature string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.namespace", ts.Table.Database),
		attribute.String("db.collection.name", ts.Table.Name),
		attribute.String("tablegraph.fetch.signature", signature),
	))
}

// endFetchSpan tags the span with the row count and an outcome of ok, error
// or budget.
func endFetchSpan(span trace.Span, rows int, err error) {
	outcome := "ok"
	var limitErr *costguard.LimitError
	switch {
	case errors.As(err, &limitErr):
		outcome = "budget"
	case err != nil:
		outcome = "error"
	}
	span.SetAttributes(
		attribute.Int("tablegraph.fetch.rows", rows),
		attribute.String("tablegraph.fetch.outcome", outcome),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
