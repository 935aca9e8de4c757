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

// Package observability provides OpenTelemetry tracing and Prometheus
// metrics for knowledge ingestion, search and the HTTP server.
package observability

import (
	"context"
	"errors"
)

// Manager owns the tracer and metrics built from one Config.
type Manager struct {
	tracer  *Tracer
	metrics *Metrics
}

// NewManager initializes tracing and metrics. Disabled parts stay nil and
// every method on them is a no-op.
func NewManager(ctx context.Context, cfg *Config, opts ...TracerOption) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tracer, err := NewTracer(ctx, &cfg.Tracing, opts...)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(&cfg.Metrics)
	if err != nil {
		_ = tracer.Shutdown(ctx)
		return nil, err
	}
	return &Manager{tracer: tracer, metrics: metrics}, nil
}

// NoopManager returns a manager with tracing and metrics disabled.
func NoopManager() *Manager {
	return &Manager{}
}

func (m *Manager) Tracer() *Tracer {
	if m == nil {
		return nil
	}
	return m.tracer
}

func (m *Manager) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

// Shutdown flushes pending spans and stops the meter provider.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return errors.Join(m.tracer.Shutdown(ctx), m.metrics.Shutdown(ctx))
}
