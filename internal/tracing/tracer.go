// Package tracing wraps go.opentelemetry.io/otel/trace so a caller can open
// spans without importing otel directly. No package in this module calls
// StartSpan, so workflow steps and adapter calls run without spans.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/archokshi/optiinfra"

// Tracer returns the process-wide tracer. otel.Tracer is itself a lookup
// into the globally configured TracerProvider, so this is safe to call
// before or after a provider is installed by main.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan opens a span named after the component and operation
// (e.g. "workflow.step", "adapter.collect") and returns the derived context
// together with the span so the caller can End() it with defer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}
