package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "snippet-runner"

// Tracer wraps OpenTelemetry tracing for the execution pipeline.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer on the global TracerProvider, or a no-op one when disabled.
func NewTracer(enabled bool) *Tracer {
	if !enabled {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(tracerName)}
	}
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("runner.%s", name),
		trace.WithAttributes(attrs...),
	)
	return ctx, span
}

// EndSpan marks the span failed when err is non-nil, then ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// Common attribute keys for runner tracing.
var (
	AttrExecID     = attribute.Key("runner.execution.id")
	AttrRequestID  = attribute.Key("runner.request.id")
	AttrLanguage   = attribute.Key("runner.language")
	AttrCodeHash   = attribute.Key("runner.code_hash")
	AttrStage      = attribute.Key("runner.stage")
	AttrExitCode   = attribute.Key("runner.exit_code")
	AttrOutcome    = attribute.Key("runner.outcome")
	AttrDurationMS = attribute.Key("runner.duration_ms")
)
