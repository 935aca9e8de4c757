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

	"github.com/kadirpekel/hectorkb/pkg/vector"
)

// VectorProviderBuilder provides a fluent API for building vector
// providers.
//
// Example:
//
//	// Embedded provider persisted to disk
//	provider, err := builder.NewVectorProvider("chromem").
//	    PersistPath(".hectorkb/vectors").
//	    Build()
//
//	// Qdrant over gRPC
//	provider, err := builder.NewVectorProvider("qdrant").
//	    Host("localhost").
//	    Build()
type VectorProviderBuilder struct {
	cfg vector.ProviderConfig
}

// NewVectorProvider creates a new vector provider builder.
//
// Supported providers: "chromem", "qdrant", "pinecone"
func NewVectorProvider(providerType string) *VectorProviderBuilder {
	return &VectorProviderBuilder{cfg: vector.ProviderConfig{Type: vector.ProviderType(providerType)}}
}

// VectorProviderFromConfig creates a builder seeded from cfg.
func VectorProviderFromConfig(cfg *vector.ProviderConfig) *VectorProviderBuilder {
	b := NewVectorProvider("")
	if cfg == nil {
		return b
	}
	b.cfg.Type = cfg.Type
	if cfg.Chromem != nil {
		c := *cfg.Chromem
		b.cfg.Chromem = &c
	}
	if cfg.Qdrant != nil {
		c := *cfg.Qdrant
		b.cfg.Qdrant = &c
	}
	if cfg.Pinecone != nil {
		c := *cfg.Pinecone
		b.cfg.Pinecone = &c
	}
	return b
}

func (b *VectorProviderBuilder) chromem() *vector.ChromemConfig {
	if b.cfg.Chromem == nil {
		b.cfg.Chromem = &vector.ChromemConfig{}
	}
	return b.cfg.Chromem
}

func (b *VectorProviderBuilder) qdrant() *vector.QdrantConfig {
	if b.cfg.Qdrant == nil {
		b.cfg.Qdrant = &vector.QdrantConfig{}
	}
	return b.cfg.Qdrant
}

func (b *VectorProviderBuilder) pinecone() *vector.PineconeConfig {
	if b.cfg.Pinecone == nil {
		b.cfg.Pinecone = &vector.PineconeConfig{}
	}
	return b.cfg.Pinecone
}

// PersistPath sets the chromem persistence directory.
func (b *VectorProviderBuilder) PersistPath(path string) *VectorProviderBuilder {
	b.chromem().PersistPath = path
	return b
}

// Compress gzips the chromem database file.
func (b *VectorProviderBuilder) Compress(compress bool) *VectorProviderBuilder {
	b.chromem().Compress = compress
	return b
}

// Host sets the Qdrant or Pinecone host.
func (b *VectorProviderBuilder) Host(host string) *VectorProviderBuilder {
	if b.cfg.Type == vector.ProviderPinecone {
		b.pinecone().Host = host
	} else {
		b.qdrant().Host = host
	}
	return b
}

// Port sets the Qdrant gRPC port.
func (b *VectorProviderBuilder) Port(port int) *VectorProviderBuilder {
	if port <= 0 || port > 65535 {
		panic("port must be between 1 and 65535")
	}
	b.qdrant().Port = port
	return b
}

// APIKey sets the Qdrant or Pinecone API key.
func (b *VectorProviderBuilder) APIKey(key string) *VectorProviderBuilder {
	if b.cfg.Type == vector.ProviderPinecone {
		b.pinecone().APIKey = key
	} else {
		b.qdrant().APIKey = key
	}
	return b
}

// UseTLS enables TLS for Qdrant.
func (b *VectorProviderBuilder) UseTLS(useTLS bool) *VectorProviderBuilder {
	b.qdrant().UseTLS = useTLS
	return b
}

// IndexName sets the Pinecone index.
func (b *VectorProviderBuilder) IndexName(name string) *VectorProviderBuilder {
	b.pinecone().IndexName = name
	return b
}

// Namespace sets the Pinecone namespace.
func (b *VectorProviderBuilder) Namespace(ns string) *VectorProviderBuilder {
	b.pinecone().Namespace = ns
	return b
}

// Build creates the vector provider.
func (b *VectorProviderBuilder) Build() (vector.Provider, error) {
	cfg := b.cfg
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return vector.NewProvider(&cfg)
}

// MustBuild creates the vector provider or panics on error.
func (b *VectorProviderBuilder) MustBuild() vector.Provider {
	provider, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build vector provider: %v", err))
	}
	return provider
}
