// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builder

import (
	"fmt"
	"os"

	"github.com/kadirpekel/hectorkb/pkg/config"
	"github.com/kadirpekel/hectorkb/pkg/embedder"
)

// EmbedderBuilder provides a fluent API for building embedders.
//
// Example:
//
//	emb, err := builder.NewEmbedder("openai").
//	    Model("text-embedding-3-small").
//	    APIKeyFromEnv("OPENAI_API_KEY").
//	    Build()
type EmbedderBuilder struct {
	cfg embedder.Config
}

// NewEmbedder creates a new embedder builder.
//
// Supported providers: "ollama", "openai", "gemini"
func NewEmbedder(provider string) *EmbedderBuilder {
	return &EmbedderBuilder{cfg: embedder.Config{Provider: provider}}
}

// EmbedderFromConfig creates an EmbedderBuilder seeded from cfg. The
// config is copied, so later builder calls do not modify it.
func EmbedderFromConfig(cfg *embedder.Config) *EmbedderBuilder {
	if cfg == nil {
		return NewEmbedder("")
	}
	return &EmbedderBuilder{cfg: *cfg}
}

// Model sets the embedding model.
func (b *EmbedderBuilder) Model(model string) *EmbedderBuilder {
	b.cfg.Model = model
	return b
}

// APIKey sets the API key.
func (b *EmbedderBuilder) APIKey(key string) *EmbedderBuilder {
	b.cfg.APIKey = key
	return b
}

// APIKeyFromEnv reads the API key from an environment variable.
//
// Example:
//
//	builder.NewEmbedder("openai").APIKeyFromEnv("OPENAI_API_KEY")
func (b *EmbedderBuilder) APIKeyFromEnv(envVar string) *EmbedderBuilder {
	b.cfg.APIKey = os.Getenv(envVar)
	return b
}

// BaseURL overrides the provider endpoint.
func (b *EmbedderBuilder) BaseURL(url string) *EmbedderBuilder {
	b.cfg.BaseURL = url
	return b
}

// Dimension sets the vector dimension. Zero uses the model default.
func (b *EmbedderBuilder) Dimension(dim int) *EmbedderBuilder {
	if dim < 0 {
		panic("dimension must be non-negative")
	}
	b.cfg.Dimension = dim
	return b
}

// Timeout sets the request timeout in seconds.
func (b *EmbedderBuilder) Timeout(seconds int) *EmbedderBuilder {
	b.cfg.Timeout = seconds
	return b
}

// BatchSize sets how many texts are embedded per request.
func (b *EmbedderBuilder) BatchSize(size int) *EmbedderBuilder {
	if size < 0 {
		panic("batch size must be non-negative")
	}
	b.cfg.BatchSize = size
	return b
}

// MaxRetries sets how often failed requests are retried.
func (b *EmbedderBuilder) MaxRetries(n int) *EmbedderBuilder {
	b.cfg.MaxRetries = n
	return b
}

// Config returns the configuration the builder would build from, with
// defaults applied.
func (b *EmbedderBuilder) Config() *embedder.Config {
	cfg := b.cfg
	if cfg.APIKey == "" {
		cfg.APIKey = config.GetProviderAPIKey(cfg.Provider)
	}
	cfg.SetDefaults()
	return &cfg
}

// Build creates the embedder. A missing API key falls back to the
// provider's conventional environment variable.
func (b *EmbedderBuilder) Build() (embedder.Embedder, error) {
	return embedder.New(b.Config())
}

// MustBuild creates the embedder or panics on error.
func (b *EmbedderBuilder) MustBuild() embedder.Embedder {
	emb, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build embedder: %v", err))
	}
	return emb
}
