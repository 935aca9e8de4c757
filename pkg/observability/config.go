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
	"cmp"
	"errors"
	"fmt"
	"time"
)

// Config configures tracing and metrics.
type Config struct {
	Tracing TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing. Defaults export over
// OTLP/gRPC to localhost:4317 without TLS and keep every trace.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Exporter       string            `yaml:"exporter,omitempty" json:"exporter,omitempty" jsonschema:"enum=otlp,enum=stdout"`
	Endpoint       string            `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	SamplingRate   float64           `yaml:"sampling_rate,omitempty" json:"sampling_rate,omitempty" jsonschema:"minimum=0,maximum=1"`
	ServiceName    string            `yaml:"service_name,omitempty" json:"service_name,omitempty"`
	ServiceVersion string            `yaml:"service_version,omitempty" json:"service_version,omitempty"`
	Insecure       *bool             `yaml:"insecure,omitempty" json:"insecure,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// CaptureQueries records search query text on spans.
	CaptureQueries bool `yaml:"capture_queries,omitempty" json:"capture_queries,omitempty"`

	// Timeout bounds a single export.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Endpoint is the HTTP path metrics are served on.
	Endpoint  string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

func (c *Config) SetDefaults() {
	c.Tracing.SetDefaults()
	c.Metrics.SetDefaults()
}

func (c *Config) Validate() error {
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

func (c *TracingConfig) SetDefaults() {
	c.ServiceName = cmp.Or(c.ServiceName, DefaultServiceName)
	c.SamplingRate = cmp.Or(c.SamplingRate, DefaultSamplingRate)
	c.Exporter = cmp.Or(c.Exporter, "otlp")
	c.Endpoint = cmp.Or(c.Endpoint, DefaultOTLPEndpoint)
	c.Timeout = cmp.Or(c.Timeout, 10*time.Second)
	if c.Insecure == nil {
		insecure := true
		c.Insecure = &insecure
	}
}

func (c *TracingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1, got %g", c.SamplingRate)
	}
	if _, ok := exporterFactories[c.Exporter]; !ok {
		return fmt.Errorf("invalid exporter %q (valid: otlp, stdout)", c.Exporter)
	}
	if c.Exporter == "otlp" && c.Endpoint == "" {
		return errors.New("endpoint is required for the otlp exporter")
	}
	return nil
}

// IsInsecure reports whether the exporter connection skips TLS.
func (c *TracingConfig) IsInsecure() bool {
	return c.Insecure == nil || *c.Insecure
}

func (c *MetricsConfig) SetDefaults() {
	c.Endpoint = cmp.Or(c.Endpoint, DefaultMetricsPath)
	c.Namespace = cmp.Or(c.Namespace, DefaultServiceName)
}

func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.Endpoint == "" {
		return errors.New("endpoint is required when metrics are enabled")
	}
	return nil
}
