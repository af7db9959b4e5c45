package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// initWithMemoryExporter enables tracing with spans kept in memory.
func initWithMemoryExporter(t *testing.T, cfg Config) *tracetest.InMemoryExporter {
	t.Helper()
	mem := tracetest.NewInMemoryExporter()
	orig := newExporter
	newExporter = func(context.Context, Config) (sdktrace.SpanExporter, error) { return mem, nil }
	t.Cleanup(func() {
		newExporter = orig
		_ = Shutdown(context.Background())
		_ = Init(context.Background(), Config{})
	})

	cfg.Enabled = true
	if err := Init(context.Background(), cfg); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return mem
}

func TestDisabledTracerIsNoop(t *testing.T) {
	if err := Init(context.Background(), Config{Enabled: false}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()

	if GetTraceID(ctx) != "" {
		t.Fatal("disabled tracer should not produce trace IDs")
	}
	h := http.Header{}
	InjectHTTPHeaders(ctx, h)
	if h.Get("traceparent") != "" {
		t.Fatal("disabled tracer should not inject headers")
	}
}

func TestEnabledTracerPropagates(t *testing.T) {
	ctx := context.Background()
	initWithMemoryExporter(t, Config{ServiceName: "nimbus-test", SampleRate: 1})

	spanCtx, span := StartClientSpan(ctx, "backend GET")
	defer span.End()

	if GetTraceID(spanCtx) == "" {
		t.Fatal("expected a trace ID")
	}
	h := http.Header{}
	InjectHTTPHeaders(spanCtx, h)
	if h.Get("traceparent") == "" {
		t.Fatal("expected traceparent header")
	}
}

func TestHTTPMiddlewareCapturesStatus(t *testing.T) {
	mem := initWithMemoryExporter(t, Config{ServiceName: "nimbus-test", SampleRate: 1})

	var sawTrace bool
	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawTrace = GetTraceID(r.Context()) != ""
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/online", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status not passed through: %d", rec.Code)
	}
	if !sawTrace {
		t.Fatal("handler should run inside a server span")
	}

	if err := globalProvider.tp.ForceFlush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if spans := mem.GetSpans(); len(spans) != 1 {
		t.Fatalf("expected one exported span, got %d", len(spans))
	}
}

func TestResourceDescribesCache(t *testing.T) {
	res, err := buildResource(context.Background(), Config{
		ServiceName: "nimbus-test",
		StoreDriver: "tiered",
		BackendURL:  "https://project.supabase.test:8443/rest",
	})
	if err != nil {
		t.Fatal(err)
	}

	want := map[attribute.Key]string{
		semconv.ServiceNameKey: "nimbus-test",
		AttrStoreDriver:        "tiered",
		AttrBackendHost:        "project.supabase.test:8443",
	}
	set := res.Set()
	for k, v := range want {
		got, ok := set.Value(k)
		if !ok || got.AsString() != v {
			t.Fatalf("%s = %q (present %v), want %q", k, got.AsString(), ok, v)
		}
	}
	if v, ok := set.Value(semconv.ServiceVersionKey); !ok || v.AsString() == "" {
		t.Fatal("service.version should always be set")
	}
}

func TestResourceOmitsUnknownBackend(t *testing.T) {
	res, err := buildResource(context.Background(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.Set().Value(AttrBackendHost); ok {
		t.Fatal("backend host should be absent without a backend URL")
	}
	if v, _ := res.Set().Value(semconv.ServiceNameKey); v.AsString() != "nimbus" {
		t.Fatalf("service.name = %q", v.AsString())
	}
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	err := Init(context.Background(), Config{Enabled: true, Exporter: "zipkin"})
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
	_ = Init(context.Background(), Config{})
}
