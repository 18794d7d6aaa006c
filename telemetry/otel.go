package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelSink emits one span per record, grounded on the teacher's
// emit/otel.go OTelEmitter. It is a secondary, best-effort sink: span
// creation failures are impossible by construction (the otel API never
// errors on Start/End), so this sink has no failure path back to the
// scheduler.
type OTelSink struct {
	tracer trace.Tracer
}

// NewOTelSink returns an OTelSink using tracer to create spans.
func NewOTelSink(tracer trace.Tracer) *OTelSink {
	return &OTelSink{tracer: tracer}
}

func (s *OTelSink) Emit(r Record) {
	_, span := s.tracer.Start(context.Background(), r.Kind)
	defer span.End()
	addStandardAttributes(span, r)
	addMetaAttributes(span, r)
}

func addStandardAttributes(span trace.Span, r Record) {
	span.SetAttributes(
		attribute.String("workflow.run_id", r.RunID),
		attribute.Int("workflow.superstep", r.Superstep),
		attribute.String("workflow.executor_id", r.ExecutorID),
		attribute.String("workflow.message", r.Message),
	)
	if r.Kind == "executor_failed" || r.Kind == "error" {
		span.SetStatus(codes.Error, r.Message)
	}
}

func addMetaAttributes(span trace.Span, r Record) {
	for k, v := range r.Meta {
		switch val := v.(type) {
		case string:
			span.SetAttributes(attribute.String("workflow.meta."+k, val))
		case int:
			span.SetAttributes(attribute.Int("workflow.meta."+k, val))
		case int64:
			span.SetAttributes(attribute.Int64("workflow.meta."+k, val))
		case float64:
			span.SetAttributes(attribute.Float64("workflow.meta."+k, val))
		case bool:
			span.SetAttributes(attribute.Bool("workflow.meta."+k, val))
		}
	}
}

func (s *OTelSink) EmitBatch(ctx context.Context, rs []Record) error {
	for _, r := range rs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.Emit(r)
	}
	return nil
}

// flusher is satisfied by SDK tracer providers that support ForceFlush;
// FlushProvider degrades to a no-op when the given provider doesn't
// implement it (e.g. the global no-op provider), mirroring the teacher's
// ergonomic interface-check pattern in emit/otel.go.
type flusher interface {
	ForceFlush(ctx context.Context) error
}

// FlushProvider force-flushes provider if it supports doing so; provider
// is typically a *sdktrace.TracerProvider handed in by the caller
// alongside the tracer. Flush itself is always a no-op.
func (s *OTelSink) FlushProvider(ctx context.Context, provider any) error {
	if f, ok := provider.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

func (s *OTelSink) Flush(ctx context.Context) error { return nil }
