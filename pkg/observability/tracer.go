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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// exporterFactories builds span exporters by TracingConfig.Exporter name.
var exporterFactories = map[string]func(context.Context, *TracingConfig) (sdktrace.SpanExporter, error){
	"otlp": func(ctx context.Context, cfg *TracingConfig) (sdktrace.SpanExporter, error) {
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithTimeout(cfg.Timeout),
			otlptracegrpc.WithHeaders(cfg.Headers),
		}
		if cfg.IsInsecure() {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	},
	"stdout": func(context.Context, *TracingConfig) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	},
}

var noopTracer = noop.NewTracerProvider().Tracer("hectorkb")

// Tracer starts knowledge spans. A nil *Tracer is valid and starts no-op
// spans.
type Tracer struct {
	provider       *sdktrace.TracerProvider
	tracer         trace.Tracer
	exporter       sdktrace.SpanExporter
	captureQueries bool
	global         bool
}

// TracerOption configures the Tracer.
type TracerOption func(*Tracer)

// WithExporter exports spans synchronously to exporter instead of the
// configured one.
func WithExporter(exporter sdktrace.SpanExporter) TracerOption {
	return func(t *Tracer) { t.exporter = exporter }
}

// WithoutGlobal keeps the provider out of otel's global registry.
func WithoutGlobal() TracerOption {
	return func(t *Tracer) { t.global = false }
}

// NewTracer returns nil when tracing is disabled.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	t := &Tracer{captureQueries: cfg.CaptureQueries, global: true}
	for _, opt := range opts {
		opt(t)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	export := sdktrace.WithSyncer(t.exporter)
	if t.exporter == nil {
		factory, ok := exporterFactories[cfg.Exporter]
		if !ok {
			return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
		}
		if t.exporter, err = factory(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to create %s exporter: %w", cfg.Exporter, err)
		}
		export = sdktrace.WithBatcher(t.exporter)
	}

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
		export,
	)
	t.tracer = t.provider.Tracer(cfg.ServiceName)

	if t.global {
		otel.SetTracerProvider(t.provider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{}))
	}
	return t, nil
}

// Start begins a span.
func (t *Tracer) Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return noopTracer.Start(ctx, spanName, opts...)
	}
	return t.tracer.Start(ctx, spanName, opts...)
}

// StartInsert begins a span for a knowledge insert request.
func (t *Tracer) StartInsert(ctx context.Context, knowledge, source string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanInsert, trace.WithAttributes(
		attribute.String(AttrKnowledgeName, knowledge),
		attribute.String(AttrContentSource, source),
	))
}

// StartSearch begins a span for a knowledge search. The query text is
// recorded only with capture_queries.
func (t *Tracer) StartSearch(ctx context.Context, knowledge, query string, limit int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrKnowledgeName, knowledge),
		attribute.Int(AttrSearchLimit, limit),
	}
	if t != nil && t.captureQueries {
		attrs = append(attrs, attribute.String(AttrSearchQuery, query))
	}
	return t.Start(ctx, SpanSearch, trace.WithAttributes(attrs...))
}

// RecordError marks span as failed. Nil spans and errors are ignored.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(
		attribute.String(AttrErrorType, fmt.Sprintf("%T", err)),
		attribute.String(AttrErrorMessage, err.Error()),
	)
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
