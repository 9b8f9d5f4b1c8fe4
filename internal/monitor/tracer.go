package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agent-remediator"

// Tracer wraps OpenTelemetry tracing for the remediation workflow.
// A nil *Tracer is valid and produces no-op spans, so callers never
// need to guard span creation.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, fmt.Sprintf("remediator.%s", name),
		trace.WithAttributes(attrs...),
	)
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// Common attribute keys for remediation tracing.
var (
	AttrRunID        = attribute.Key("remediator.run.id")
	AttrExpectedSite = attribute.Key("remediator.site.expected")
	AttrAssignedSite = attribute.Key("remediator.site.assigned")
	AttrServiceState = attribute.Key("remediator.service.state")
	AttrOutcome      = attribute.Key("remediator.run.outcome")
)
