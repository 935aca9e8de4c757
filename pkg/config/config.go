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

// Package config loads and validates hectorkb configuration.
//
// A configuration names shared resources (databases, embedders, vector
// stores) once and lets every knowledge base reference them by name:
//
//	embedders:
//	  default: {provider: ollama, model: nomic-embed-text}
//	vector_stores:
//	  default: {type: chromem}
//	knowledge:
//	  company:
//	    search: {agentic_filters: true}
//
// Values may reference the environment with ${VAR} or ${VAR:-default}.
package config

import (
	"fmt"
	"sort"

	"github.com/kadirpekel/hectorkb/pkg/embedder"
	"github.com/kadirpekel/hectorkb/pkg/observability"
	"github.com/kadirpekel/hectorkb/pkg/vector"
)

// DefaultName is used for resources created implicitly by SetDefaults.
const DefaultName = "default"

// Config is the root configuration.
type Config struct {
	// Name identifies this deployment in traces and metrics.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	Server        ServerConfig         `yaml:"server,omitempty" json:"server,omitempty"`
	Logger        LoggerConfig         `yaml:"logger,omitempty" json:"logger,omitempty"`
	Observability observability.Config `yaml:"observability,omitempty" json:"observability,omitempty"`

	Databases    map[string]*DatabaseConfig        `yaml:"databases,omitempty" json:"databases,omitempty"`
	Embedders    map[string]*embedder.Config       `yaml:"embedders,omitempty" json:"embedders,omitempty"`
	VectorStores map[string]*vector.ProviderConfig `yaml:"vector_stores,omitempty" json:"vector_stores,omitempty"`

	Knowledge map[string]*KnowledgeConfig `yaml:"knowledge,omitempty" json:"knowledge,omitempty"`
}

// SetDefaults applies defaults to every section. A config without
// embedders or vector stores gets a local ollama embedder and an in-memory
// chromem store, and knowledge bases that do not name one use the only
// entry available.
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = "hectorkb"
	}
	if c.Databases == nil {
		c.Databases = make(map[string]*DatabaseConfig)
	}
	if c.Embedders == nil {
		c.Embedders = make(map[string]*embedder.Config)
	}
	if c.VectorStores == nil {
		c.VectorStores = make(map[string]*vector.ProviderConfig)
	}
	if c.Knowledge == nil {
		c.Knowledge = make(map[string]*KnowledgeConfig)
	}

	c.Server.SetDefaults()
	c.Logger.SetDefaults()
	if c.Observability.Tracing.ServiceName == "" {
		c.Observability.Tracing.ServiceName = c.Name
	}
	c.Observability.SetDefaults()

	if len(c.Embedders) == 0 {
		c.Embedders[DefaultName] = &embedder.Config{}
	}
	if len(c.VectorStores) == 0 {
		c.VectorStores[DefaultName] = &vector.ProviderConfig{}
	}

	for _, db := range c.Databases {
		if db != nil {
			db.SetDefaults()
		}
	}
	for _, emb := range c.Embedders {
		if emb == nil {
			continue
		}
		if emb.APIKey == "" {
			emb.APIKey = GetProviderAPIKey(emb.Provider)
		}
		emb.SetDefaults()
	}
	for _, vs := range c.VectorStores {
		if vs != nil {
			vs.SetDefaults()
		}
	}

	for name, kb := range c.Knowledge {
		if kb == nil {
			kb = &KnowledgeConfig{}
			c.Knowledge[name] = kb
		}
		if kb.VectorStore == "" {
			kb.VectorStore = soleKey(c.VectorStores)
		}
		if kb.Embedder == "" {
			kb.Embedder = soleKey(c.Embedders)
		}
		kb.SetDefaults(name)
	}
}

// Validate checks every section and the references between them.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}

	for _, name := range SortedKeys(c.Databases) {
		if c.Databases[name] == nil {
			return fmt.Errorf("databases.%s: empty configuration", name)
		}
		if err := c.Databases[name].Validate(); err != nil {
			return fmt.Errorf("databases.%s: %w", name, err)
		}
	}
	for _, name := range SortedKeys(c.Embedders) {
		if c.Embedders[name] == nil {
			return fmt.Errorf("embedders.%s: empty configuration", name)
		}
		if err := c.Embedders[name].Validate(); err != nil {
			return fmt.Errorf("embedders.%s: %w", name, err)
		}
	}
	for _, name := range SortedKeys(c.VectorStores) {
		if c.VectorStores[name] == nil {
			return fmt.Errorf("vector_stores.%s: empty configuration", name)
		}
		if err := c.VectorStores[name].Validate(); err != nil {
			return fmt.Errorf("vector_stores.%s: %w", name, err)
		}
	}

	for _, name := range SortedKeys(c.Knowledge) {
		kb := c.Knowledge[name]
		if err := kb.Validate(); err != nil {
			return fmt.Errorf("knowledge.%s: %w", name, err)
		}
		if _, ok := c.VectorStores[kb.VectorStore]; !ok {
			return fmt.Errorf("knowledge.%s: vector_store %q not found (available: %v)", name, kb.VectorStore, SortedKeys(c.VectorStores))
		}
		if _, ok := c.Embedders[kb.Embedder]; !ok {
			return fmt.Errorf("knowledge.%s: embedder %q not found (available: %v)", name, kb.Embedder, SortedKeys(c.Embedders))
		}
		if kb.ContentsDB != "" {
			if _, ok := c.Databases[kb.ContentsDB]; !ok {
				return fmt.Errorf("knowledge.%s: contents_db %q not found (available: %v)", name, kb.ContentsDB, SortedKeys(c.Databases))
			}
		}
	}
	return nil
}

// KnowledgeNames returns knowledge base names in sorted order.
func (c *Config) KnowledgeNames() []string {
	return SortedKeys(c.Knowledge)
}

// SortedKeys returns the keys of m in sorted order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// soleKey returns the single key of m, or DefaultName when m holds zero or
// several entries.
func soleKey[V any](m map[string]V) string {
	if len(m) == 1 {
		for k := range m {
			return k
		}
	}
	return DefaultName
}
