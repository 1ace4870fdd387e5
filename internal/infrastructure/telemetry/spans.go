package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartAnalysisSpan starts a span for one pipeline operation against an
// identity.
func StartAnalysisSpan(ctx context.Context, tracer trace.Tracer, operation, userID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("analysis.%s", operation),
		trace.WithAttributes(
			attribute.String("analysis.operation", operation),
			attribute.String("analysis.user_id", userID),
		))
}

// StartStoreSpan starts a client span for a store operation.
func StartStoreSpan(ctx context.Context, tracer trace.Tracer, operation, table string) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("db.%s %s", operation, table),
		trace.WithAttributes(
			attribute.String("db.operation", operation),
			attribute.String("db.table", table),
			attribute.String("db.system", "postgresql"),
		), trace.WithSpanKind(trace.SpanKindClient))
}

// WithSpanError records the error and marks the span failed
func WithSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
