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

package embedder

import (
	"fmt"
	"time"

	"github.com/kadirpekel/hectorkb/pkg/httpclient"
)

// Provider names accepted in configuration.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderCohere = "cohere"
)

// Config configures one named embedder.
type Config struct {
	Provider   string                `yaml:"provider" mapstructure:"provider" json:"provider" jsonschema:"enum=ollama,enum=openai,enum=gemini,enum=cohere"`
	Model      string                `yaml:"model,omitempty" mapstructure:"model" json:"model,omitempty"`
	BaseURL    string                `yaml:"base_url,omitempty" mapstructure:"base_url" json:"base_url,omitempty"`
	APIKey     string                `yaml:"api_key,omitempty" mapstructure:"api_key" json:"api_key,omitempty"`
	Dimension  int                   `yaml:"dimension,omitempty" mapstructure:"dimension" json:"dimension,omitempty"`
	Timeout    int                   `yaml:"timeout,omitempty" mapstructure:"timeout" json:"timeout,omitempty" jsonschema:"description=Request timeout in seconds"`
	BatchSize  int                   `yaml:"batch_size,omitempty" mapstructure:"batch_size" json:"batch_size,omitempty"`
	MaxRetries int                   `yaml:"max_retries,omitempty" mapstructure:"max_retries" json:"max_retries,omitempty"`
	TLS        *httpclient.TLSConfig `yaml:"tls,omitempty" mapstructure:"tls" json:"tls,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOllama
	}
	if c.Model == "" {
		switch c.Provider {
		case ProviderOllama:
			c.Model = "nomic-embed-text"
		case ProviderOpenAI:
			c.Model = "text-embedding-3-small"
		case ProviderGemini:
			c.Model = "gemini-embedding-001"
		case ProviderCohere:
			c.Model = "embed-english-v3.0"
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOllama:
	case ProviderOpenAI, ProviderGemini, ProviderCohere:
		if c.APIKey == "" {
			return fmt.Errorf("%s embedder requires api_key", c.Provider)
		}
	default:
		return fmt.Errorf("unsupported embedder provider: %q (supported: ollama, openai, gemini, cohere)", c.Provider)
	}
	if c.Dimension < 0 {
		return fmt.Errorf("dimension must be positive")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	return nil
}

func (c *Config) httpClient(name string) *httpclient.Client {
	return httpclient.New(
		httpclient.WithName(name),
		httpclient.WithTimeout(time.Duration(c.Timeout)*time.Second),
		httpclient.WithMaxRetries(c.MaxRetries),
		httpclient.WithTLSConfig(c.TLS),
	)
}

// New creates an Embedder from configuration.
func New(cfg *Config) (Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embedder config is required")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedder config: %w", err)
	}

	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaEmbedder(OllamaConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Client:    cfg.httpClient("ollama"),
		})
	case ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
			Client:    cfg.httpClient("openai"),
		})
	case ProviderGemini:
		return NewGeminiEmbedder(GeminiConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
		})
	case ProviderCohere:
		return NewCohereEmbedder(CohereConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
			Client:    cfg.httpClient("cohere"),
		})
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.Provider)
	}
}
