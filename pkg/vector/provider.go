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

// Package vector provides vector storage backends for knowledge bases.
//
// Every provider accepts a filter.Set for search and deletion. Providers
// translate as much of the set as their query language supports; predicates
// they cannot express natively are evaluated in process with filter.Match.
package vector

import (
	"context"

	"github.com/kadirpekel/hectorkb/pkg/filter"
)

// Result is a single hit returned by a provider.
type Result struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Content  string         `json:"content"`
	Vector   []float32      `json:"vector,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Provider is a vector storage backend.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Upsert adds or updates a document with its vector embedding. The
	// document text is expected under the "content" metadata key.
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	// Search finds the topK most similar vectors in a collection.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// SearchWithFilter is Search restricted to documents matching set.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, set filter.Set) ([]Result, error)

	// Delete removes a document by ID.
	Delete(ctx context.Context, collection string, id string) error

	// DeleteByFilter removes every document matching set. An absent set is
	// rejected rather than treated as "delete everything".
	DeleteByFilter(ctx context.Context, collection string, set filter.Set) error

	CreateCollection(ctx context.Context, collection string, vectorDimension int) error
	DeleteCollection(ctx context.Context, collection string) error

	Close() error
}
