package usecase

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/gge-tracker/gge-tracker-sub001/internal/usecase")

// startSpan opens a child span only when ctx already carries a trace.
func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	parent := trace.SpanFromContext(ctx)
	if !parent.SpanContext().IsValid() {
		return ctx, parent
	}
	return tracer.Start(ctx, name)
}

// startPassSpan opens the root span of one pass.
func startPassSpan(ctx context.Context, server string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "usecase.PassOrchestrator.Run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("gge.server", server)),
	)
}
