// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Content outcomes recorded by RecordContent.
const (
	OutcomeInserted = "inserted"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Metrics records knowledge base metrics through OpenTelemetry and serves
// them in the Prometheus format. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	contents       metric.Int64Counter
	chunks         metric.Int64Counter
	searches       metric.Int64Counter
	searchErrors   metric.Int64Counter
	searchDuration metric.Float64Histogram
	invalidKeys    metric.Int64Counter
	toolCalls      metric.Int64Counter
	httpRequests   metric.Int64Counter
	httpDuration   metric.Float64Histogram
}

// NewMetrics creates the metric instruments. It returns nil when metrics
// are disabled.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
		otelprom.WithoutScopeInfo(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("github.com/kadirpekel/hectorkb")

	m := &Metrics{registry: registry, provider: provider}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.contents, "knowledge_contents", "Contents processed, by outcome"},
		{&m.chunks, "knowledge_chunks", "Chunks written to vector stores"},
		{&m.searches, "knowledge_searches", "Knowledge searches"},
		{&m.searchErrors, "knowledge_search_errors", "Failed knowledge searches"},
		{&m.invalidKeys, "knowledge_invalid_filter_keys", "Filter keys dropped by validation"},
		{&m.toolCalls, "tool_calls", "Search tool calls, by tool and result"},
		{&m.httpRequests, "http_requests", "HTTP requests"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	if m.searchDuration, err = meter.Float64Histogram("knowledge_search_duration",
		metric.WithDescription("Knowledge search latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create search duration histogram: %w", err)
	}
	if m.httpDuration, err = meter.Float64Histogram("http_request_duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	return m, nil
}

func kb(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("knowledge", name))
}

// RecordContent counts one processed content item.
func (m *Metrics) RecordContent(knowledge, outcome string, chunks int) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.contents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("knowledge", knowledge),
		attribute.String("outcome", outcome),
	))
	if chunks > 0 {
		m.chunks.Add(ctx, int64(chunks), kb(knowledge))
	}
}

// RecordSearch records a search and its latency.
func (m *Metrics) RecordSearch(knowledge string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.searches.Add(ctx, 1, kb(knowledge))
	m.searchDuration.Record(ctx, duration.Seconds(), kb(knowledge))
	if err != nil {
		m.searchErrors.Add(ctx, 1, kb(knowledge))
	}
}

// RecordInvalidFilterKeys counts filter keys dropped by validation.
func (m *Metrics) RecordInvalidFilterKeys(knowledge string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.invalidKeys.Add(context.Background(), int64(n), kb(knowledge))
}

// RecordToolCall counts a search tool call.
func (m *Metrics) RecordToolCall(tool string, failed bool) {
	if m == nil {
		return
	}
	m.toolCalls.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("failed", failed),
	))
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	ctx := context.Background()
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Shutdown stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
