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

package vector

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ProviderType identifies a vector provider implementation.
type ProviderType string

const (
	// ProviderChromem stores vectors in process with chromem-go, optionally
	// persisted to disk.
	ProviderChromem  ProviderType = "chromem"
	ProviderQdrant   ProviderType = "qdrant"
	ProviderPinecone ProviderType = "pinecone"
)

// ErrDuplicateProvider is returned when a registry name is taken.
var ErrDuplicateProvider = errors.New("vector provider already registered")

// ProviderConfig selects a provider and carries its settings. Only the
// block matching Type is read.
type ProviderConfig struct {
	Type ProviderType `yaml:"type" mapstructure:"type" json:"type" jsonschema:"enum=chromem,enum=qdrant,enum=pinecone"`

	Chromem  *ChromemConfig  `yaml:"chromem,omitempty" mapstructure:"chromem" json:"chromem,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty" mapstructure:"qdrant" json:"qdrant,omitempty"`
	Pinecone *PineconeConfig `yaml:"pinecone,omitempty" mapstructure:"pinecone" json:"pinecone,omitempty"`
}

// SetDefaults applies default values.
func (c *ProviderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = ProviderChromem
	}
	switch c.Type {
	case ProviderChromem:
		if c.Chromem == nil {
			c.Chromem = &ChromemConfig{}
		}
	case ProviderQdrant:
		if c.Qdrant != nil && c.Qdrant.Port == 0 {
			c.Qdrant.Port = 6334
		}
	}
}

// Validate checks that the block for Type is present and complete.
func (c *ProviderConfig) Validate() error {
	switch c.Type {
	case "":
		return errors.New("provider type is required")
	case ProviderChromem:
		return nil
	case ProviderQdrant:
		if c.Qdrant == nil || c.Qdrant.Host == "" {
			return errors.New("qdrant host is required")
		}
		return nil
	case ProviderPinecone:
		if c.Pinecone == nil || c.Pinecone.APIKey == "" {
			return errors.New("pinecone api_key is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown provider type: %q", c.Type)
	}
}

// NewProvider creates the provider described by cfg. A nil config gives an
// in-memory chromem provider.
func NewProvider(cfg *ProviderConfig) (Provider, error) {
	if cfg == nil {
		cfg = &ProviderConfig{}
	}
	resolved := *cfg
	resolved.SetDefaults()
	if err := resolved.Validate(); err != nil {
		return nil, err
	}

	switch resolved.Type {
	case ProviderQdrant:
		return NewQdrantProvider(*resolved.Qdrant)
	case ProviderPinecone:
		return NewPineconeProvider(*resolved.Pinecone)
	default:
		return NewChromemProvider(*resolved.Chromem)
	}
}

// Registry holds the named providers knowledge bases refer to. It owns
// them: Close closes every provider it holds.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p under name.
func (r *Registry) Register(name string, p Provider) error {
	if name == "" || p == nil {
		return errors.New("provider name and provider are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.providers[name]; taken {
		return fmt.Errorf("%w: %q", ErrDuplicateProvider, name)
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes and forgets every provider.
func (r *Registry) Close() error {
	r.mu.Lock()
	providers := r.providers
	r.providers = make(map[string]Provider)
	r.mu.Unlock()

	var errs []error
	for name, p := range providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("vector provider %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
