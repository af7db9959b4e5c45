package observability

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new internal span with the given name and attributes
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan creates a span for an outbound request
func StartClientSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError marks the span as errored
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// InjectHTTPHeaders writes the W3C trace context of ctx into h
func InjectHTTPHeaders(ctx context.Context, h http.Header) {
	if !Enabled() {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// GetTraceID returns the trace ID from context as a string
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Common attribute keys for nimbus spans
var (
	AttrCommand   = attribute.Key("nimbus.command")
	AttrCacheKey  = attribute.Key("nimbus.cache.key")
	AttrCacheHit  = attribute.Key("nimbus.cache.hit")
	AttrEndpoint  = attribute.Key("nimbus.backend.endpoint")
	AttrMethod    = attribute.Key("http.request.method")
	AttrStatus    = attribute.Key("http.response.status_code")
	AttrRequestID = attribute.Key("nimbus.request_id")
)
