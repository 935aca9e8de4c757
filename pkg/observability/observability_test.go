package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, DefaultServiceName, cfg.Tracing.ServiceName)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, DefaultOTLPEndpoint, cfg.Tracing.Endpoint)
	assert.True(t, cfg.Tracing.IsInsecure())
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Endpoint)
	assert.Equal(t, "hectorkb", cfg.Metrics.Namespace)
	assert.NoError(t, cfg.Validate())

	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "zipkin"
	assert.Error(t, cfg.Validate())

	cfg.Tracing.Exporter = "stdout"
	cfg.Tracing.SamplingRate = 2
	assert.Error(t, cfg.Validate())
}

func TestNilSafety(t *testing.T) {
	var tracer *Tracer
	var metrics *Metrics

	ctx, span := tracer.StartSearch(context.Background(), "kb", "q", 5)
	assert.NotNil(t, ctx)
	span.End()
	tracer.RecordError(span, errors.New("boom"))

	metrics.RecordContent("kb", OutcomeInserted, 3)
	metrics.RecordSearch("kb", time.Millisecond, nil)
	metrics.RecordInvalidFilterKeys("kb", 2)
	metrics.RecordToolCall("search_knowledge_base", false)

	assert.NoError(t, tracer.Shutdown(context.Background()))
	assert.NoError(t, NoopManager().Shutdown(context.Background()))
	assert.Nil(t, NoopManager().Tracer())
}

func TestTracer_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewTracer(context.Background(),
		&TracingConfig{Enabled: true, CaptureQueries: true},
		WithExporter(exporter), WithoutGlobal())
	require.NoError(t, err)
	require.NotNil(t, tracer)

	_, span := tracer.StartSearch(context.Background(), "company", "refund policy", 10)
	tracer.RecordError(span, errors.New("vector store down"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, SpanSearch, spans[0].Name)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "company", attrs[AttrKnowledgeName])
	assert.Equal(t, "refund policy", attrs[AttrSearchQuery])
	assert.Equal(t, "vector store down", attrs[AttrErrorMessage])

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(context.Background(), &TracingConfig{})
	require.NoError(t, err)
	assert.Nil(t, tracer)
}

func TestMetrics_Handler(t *testing.T) {
	metrics, err := NewMetrics(&MetricsConfig{Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, metrics)

	metrics.RecordContent("company", OutcomeInserted, 4)
	metrics.RecordContent("company", OutcomeSkipped, 0)
	metrics.RecordSearch("company", 20*time.Millisecond, errors.New("boom"))
	metrics.RecordInvalidFilterKeys("company", 2)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware(nil, metrics))
	r.Get("/knowledge/{kb}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", metrics.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/knowledge/company", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	assert.Contains(t, out, "hectorkb_knowledge_contents_total")
	assert.Contains(t, out, `outcome="skipped"`)
	assert.Contains(t, out, "hectorkb_knowledge_search_errors_total")
	assert.Contains(t, out, "hectorkb_knowledge_invalid_filter_keys_total")
	assert.Contains(t, out, `route="/knowledge/{kb}"`)

	assert.NoError(t, metrics.Shutdown(context.Background()))
}

func TestManager(t *testing.T) {
	m, err := NewManager(context.Background(), &Config{Metrics: MetricsConfig{Enabled: true}})
	require.NoError(t, err)
	assert.Nil(t, m.Tracer())
	assert.NotNil(t, m.Metrics())
	assert.NoError(t, m.Shutdown(context.Background()))

	_, err = NewManager(context.Background(), &Config{Tracing: TracingConfig{Enabled: true, Exporter: "jaeger"}})
	assert.Error(t, err)
}

func TestHTTPMiddleware_ContinuesTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewTracer(context.Background(), &TracingConfig{Enabled: true},
		WithExporter(exporter), WithoutGlobal())
	require.NoError(t, err)
	defer tracer.Shutdown(context.Background())

	h := HTTPMiddleware(tracer, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, SpanHTTPRequest, spans[0].Name)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "200", attrs[AttrHTTPStatusCode])
}
