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

package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/kadirpekel/hectorkb/pkg/filter"
)

// chromemOverfetch multiplies topK when predicates have to be evaluated
// after the similarity query.
const chromemOverfetch = 4

// ChromemProvider implements Provider using chromem-go for embedded vector
// storage. It needs no external service and is the default.
//
// chromem only filters on string equality, so equality predicates are pushed
// down as a where clause and everything else is applied to an over-fetched
// result list.
type ChromemProvider struct {
	db          *chromem.DB
	persistPath string
	compress    bool
	mu          sync.RWMutex

	collections map[string]*chromem.Collection
}

// ChromemConfig configures the chromem provider.
type ChromemConfig struct {
	// PersistPath is a directory for the database file. Empty keeps vectors
	// in memory only.
	PersistPath string `yaml:"persist_path,omitempty" mapstructure:"persist_path" json:"persist_path,omitempty"`

	// Compress gzips the database file.
	Compress bool `yaml:"compress,omitempty" mapstructure:"compress" json:"compress,omitempty"`
}

// NewChromemProvider creates a new chromem-based vector provider.
func NewChromemProvider(cfg ChromemConfig) (*ChromemProvider, error) {
	db := chromem.NewDB()

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create persist directory: %w", err)
		}

		dbPath := chromemFile(cfg.PersistPath, cfg.Compress)
		if _, statErr := os.Stat(dbPath); statErr == nil {
			//nolint:staticcheck // Import keeps compatibility with files written by Export
			if err := db.Import(dbPath, ""); err != nil {
				slog.Warn("Failed to load existing vector database, creating new",
					"path", dbPath,
					"error", err)
				db = chromem.NewDB()
			} else {
				slog.Info("Loaded vector database from file", "path", dbPath)
			}
		} else {
			slog.Info("Created new vector database", "path", dbPath)
		}
	} else {
		slog.Debug("Created in-memory vector database (no persistence)")
	}

	return &ChromemProvider{
		db:          db,
		persistPath: cfg.PersistPath,
		compress:    cfg.Compress,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func chromemFile(dir string, compress bool) string {
	path := filepath.Join(dir, "vectors.gob")
	if compress {
		path += ".gz"
	}
	return path
}

// precomputed is installed as the collection embedding function. Vectors are
// always computed by the knowledge layer before they reach the provider.
func precomputed(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("chromem: embedding function called but vectors should be pre-computed")
}

func (p *ChromemProvider) getCollection(name string) (*chromem.Collection, error) {
	p.mu.RLock()
	if col, ok := p.collections[name]; ok {
		p.mu.RUnlock()
		return col, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if col, ok := p.collections[name]; ok {
		return col, nil
	}

	col, err := p.db.GetOrCreateCollection(name, nil, precomputed)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create collection %q: %w", name, err)
	}

	p.collections[name] = col
	return col, nil
}

// Upsert adds or updates a document with its vector embedding.
func (p *ChromemProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error {
	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	// chromem stores metadata as strings
	strMetadata := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if k == "content" {
			continue
		}
		strMetadata[k] = fmt.Sprint(v)
	}

	content, _ := metadata["content"].(string)

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  strMetadata,
		Embedding: vector,
	}

	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist after upsert", "error", err)
	}

	return nil
}

// Search finds the most similar vectors in a collection.
func (p *ChromemProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, filter.Absent())
}

// SearchWithFilter combines vector similarity with metadata filtering.
func (p *ChromemProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, set filter.Set) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	col, err := p.getCollection(collection)
	if err != nil {
		return nil, err
	}

	where, rest := splitChromemFilter(set)

	n := topK
	if len(rest) > 0 {
		n = topK * chromemOverfetch
	}
	if count := col.Count(); n > count {
		n = count
	}
	if n == 0 {
		return []Result{}, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	post := filter.FromList(rest)
	out := make([]Result, 0, topK)
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		if len(rest) > 0 && !filter.Match(post, metadata) {
			continue
		}

		out = append(out, Result{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Vector:   r.Embedding,
			Metadata: metadata,
		})
		if len(out) == topK {
			break
		}
	}

	return out, nil
}

// splitChromemFilter moves the equality predicates chromem can evaluate
// into a where clause and returns the others for post-filtering.
func splitChromemFilter(set filter.Set) (map[string]string, []filter.Expr) {
	var where map[string]string
	var rest []filter.Expr

	for _, e := range set.Exprs() {
		if e.IsEquality() && isChromemScalar(e.Value) {
			if where == nil {
				where = make(map[string]string)
			}
			if _, taken := where[e.Key]; !taken {
				where[e.Key] = fmt.Sprint(e.Value)
				continue
			}
		}
		rest = append(rest, e)
	}
	return where, rest
}

func isChromemScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, uint, uint32, uint64:
		return true
	default:
		// floats format differently once stored as strings
		return false
	}
}

// Delete removes a document from a collection by ID.
func (p *ChromemProvider) Delete(ctx context.Context, collection string, id string) error {
	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist after delete", "error", err)
	}

	return nil
}

// DeleteByFilter removes all documents matching the filter. Only equality
// predicates can be used for deletion.
func (p *ChromemProvider) DeleteByFilter(ctx context.Context, collection string, set filter.Set) error {
	if set.Len() == 0 {
		return fmt.Errorf("delete by filter requires at least one predicate")
	}

	where, rest := splitChromemFilter(set)
	if len(rest) > 0 {
		return fmt.Errorf("chromem can only delete by equality predicates, got %s", filter.FromList(rest))
	}

	col, err := p.getCollection(collection)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("failed to delete by filter: %w", err)
	}

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist after delete", "error", err)
	}

	return nil
}

// CreateCollection creates a new collection. chromem collections carry no
// dimension, so vectorDimension is ignored.
func (p *ChromemProvider) CreateCollection(_ context.Context, collection string, _ int) error {
	_, err := p.getCollection(collection)
	return err
}

// DeleteCollection removes a collection and all its documents.
func (p *ChromemProvider) DeleteCollection(_ context.Context, collection string) error {
	p.mu.Lock()
	if err := p.db.DeleteCollection(collection); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	delete(p.collections, collection)
	p.mu.Unlock()

	if err := p.persist(); err != nil {
		slog.Warn("Failed to persist after collection delete", "error", err)
	}

	return nil
}

// Name returns the provider name.
func (p *ChromemProvider) Name() string {
	return string(ProviderChromem)
}

// Close persists the database.
func (p *ChromemProvider) Close() error {
	return p.persist()
}

func (p *ChromemProvider) persist() error {
	if p.persistPath == "" {
		return nil
	}

	//nolint:staticcheck // Export writes a single file Import can read back
	if err := p.db.Export(chromemFile(p.persistPath, p.compress), p.compress, ""); err != nil {
		return fmt.Errorf("failed to persist database: %w", err)
	}

	return nil
}

var _ Provider = (*ChromemProvider)(nil)
