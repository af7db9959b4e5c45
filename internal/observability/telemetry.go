package observability

import (
	"context"
	"fmt"
	"net/url"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Resource attribute keys describing how this process caches.
const (
	AttrStoreDriver = attribute.Key("nimbus.store.driver")
	AttrBackendHost = attribute.Key("nimbus.backend.host")
)

// Config holds telemetry configuration. Tracing off means a no-op tracer;
// on means spans go to an OTLP/HTTP collector.
type Config struct {
	Enabled     bool
	Exporter    string // otlp-http (default)
	Endpoint    string // host:port of the collector
	ServiceName string
	SampleRate  float64

	StoreDriver string
	BackendURL  string
}

type provider struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

var globalProvider = disabledProvider()

func disabledProvider() *provider {
	return &provider{tracer: noop.NewTracerProvider().Tracer("")}
}

// newExporter is swapped in tests.
var newExporter = func(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "", "otlp-http", "otlp":
		return otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}

// Init installs the global tracer provider and propagator.
func Init(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		globalProvider = disabledProvider()
		return nil
	}

	res, err := buildResource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate >= 0 && cfg.SampleRate < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	globalProvider = &provider{tp: tp, tracer: tp.Tracer(serviceName(cfg)), enabled: true}
	return nil
}

func buildResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName(cfg)),
		semconv.ServiceVersion(buildVersion()),
	}
	if cfg.StoreDriver != "" {
		attrs = append(attrs, AttrStoreDriver.String(cfg.StoreDriver))
	}
	if host := backendHost(cfg.BackendURL); host != "" {
		attrs = append(attrs, AttrBackendHost.String(host))
	}
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

func serviceName(cfg Config) string {
	if cfg.ServiceName == "" {
		return "nimbus"
	}
	return cfg.ServiceName
}

// buildVersion reports the main module version stamped by the Go toolchain.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

func backendHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// Shutdown flushes pending spans and stops the provider.
func Shutdown(ctx context.Context) error {
	if globalProvider.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return globalProvider.tp.Shutdown(ctx)
}

// Tracer returns the global tracer; a no-op tracer until Init enables tracing
func Tracer() trace.Tracer {
	return globalProvider.tracer
}

func Enabled() bool {
	return globalProvider.enabled
}
