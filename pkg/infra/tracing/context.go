package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by the pipeline.
const TracerName = "github.com/kart-io/docqa"

// Span attribute keys.
const (
	AttrDocument   = "docqa.document"
	AttrChunks     = "docqa.chunks"
	AttrGeneration = "docqa.generation"
	AttrTopK       = "docqa.top_k"
	AttrCacheHit   = "docqa.cache_hit"
	AttrProvider   = "docqa.provider"
)

// StartSpan starts a span named spanName on the global tracer.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError marks the span in ctx as failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// End records err (if any) on span and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceIDFromContext extracts the trace ID from the context.
// Returns an empty string if no trace is active.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// String creates a string attribute.
func String(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Int creates an int attribute.
func Int(key string, value int) attribute.KeyValue {
	return attribute.Int(key, value)
}

// Bool creates a bool attribute.
func Bool(key string, value bool) attribute.KeyValue {
	return attribute.Bool(key, value)
}
