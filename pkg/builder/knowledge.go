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
	"log/slog"

	"github.com/kadirpekel/hectorkb/pkg/contentsdb"
	"github.com/kadirpekel/hectorkb/pkg/embedder"
	"github.com/kadirpekel/hectorkb/pkg/knowledge"
	"github.com/kadirpekel/hectorkb/pkg/knowledge/remote"
	"github.com/kadirpekel/hectorkb/pkg/observability"
	"github.com/kadirpekel/hectorkb/pkg/vector"
)

// KnowledgeBuilder provides a fluent API for building knowledge bases.
//
// A knowledge base combines:
//   - a vector provider and an embedder for semantic search
//   - a contents store that tracks what was inserted
//   - a chunker sizing documents in tokens
//
// Example:
//
//	kb, err := builder.NewKnowledge("company").
//	    Description("Sales reports and policies").
//	    WithVectorProvider(provider).
//	    WithEmbedder(emb).
//	    ChunkSize(256).
//	    Build()
type KnowledgeBuilder struct {
	opts knowledge.Options

	chunkSize     int
	chunkOverlap  int
	chunkEncoding string
}

// NewKnowledge creates a new knowledge builder.
func NewKnowledge(name string) *KnowledgeBuilder {
	if name == "" {
		panic("knowledge name cannot be empty")
	}
	return &KnowledgeBuilder{
		opts:          knowledge.Options{Name: name},
		chunkSize:     512,
		chunkEncoding: "cl100k_base",
	}
}

// Description sets the description shown in search tool descriptions.
func (b *KnowledgeBuilder) Description(desc string) *KnowledgeBuilder {
	b.opts.Description = desc
	return b
}

// Collection sets the vector collection name.
func (b *KnowledgeBuilder) Collection(collection string) *KnowledgeBuilder {
	b.opts.Collection = collection
	return b
}

// WithVectorProvider sets the vector database provider.
//
// Example:
//
//	provider, _ := builder.NewVectorProvider("chromem").Build()
//	builder.NewKnowledge("docs").WithVectorProvider(provider)
func (b *KnowledgeBuilder) WithVectorProvider(provider vector.Provider) *KnowledgeBuilder {
	if provider == nil {
		panic("vector provider cannot be nil")
	}
	b.opts.Vector = provider
	return b
}

// WithEmbedder sets the embedding provider.
func (b *KnowledgeBuilder) WithEmbedder(emb embedder.Embedder) *KnowledgeBuilder {
	if emb == nil {
		panic("embedder cannot be nil")
	}
	b.opts.Embedder = emb
	return b
}

// WithContents sets the contents store. Default: in memory.
func (b *KnowledgeBuilder) WithContents(store contentsdb.Store) *KnowledgeBuilder {
	b.opts.Contents = store
	return b
}

// WithSources sets the registry remote content is resolved against.
func (b *KnowledgeBuilder) WithSources(sources *remote.Registry) *KnowledgeBuilder {
	b.opts.Sources = sources
	return b
}

// WithChunker replaces the token based line chunker.
func (b *KnowledgeBuilder) WithChunker(chunker knowledge.Chunker) *KnowledgeBuilder {
	b.opts.Chunker = chunker
	return b
}

// WithReaders sets the document readers.
func (b *KnowledgeBuilder) WithReaders(readers *knowledge.Readers) *KnowledgeBuilder {
	b.opts.Readers = readers
	return b
}

// WithTopicReader sets how topics are turned into text.
func (b *KnowledgeBuilder) WithTopicReader(fn knowledge.TopicReader) *KnowledgeBuilder {
	b.opts.TopicReader = fn
	return b
}

// ChunkSize sets the chunk size in tokens.
func (b *KnowledgeBuilder) ChunkSize(size int) *KnowledgeBuilder {
	if size <= 0 {
		panic("chunk size must be positive")
	}
	b.chunkSize = size
	return b
}

// ChunkOverlap sets how many trailing lines are repeated in the next chunk.
func (b *KnowledgeBuilder) ChunkOverlap(lines int) *KnowledgeBuilder {
	if lines < 0 {
		panic("chunk overlap must be non-negative")
	}
	b.chunkOverlap = lines
	return b
}

// Encoding sets the tiktoken encoding used to count tokens.
func (b *KnowledgeBuilder) Encoding(encoding string) *KnowledgeBuilder {
	b.chunkEncoding = encoding
	return b
}

// Limits sets the default and maximum number of search results.
func (b *KnowledgeBuilder) Limits(defaultLimit, maxLimit int) *KnowledgeBuilder {
	b.opts.DefaultLimit = defaultLimit
	b.opts.MaxLimit = maxLimit
	return b
}

// MaxFileSize caps the bytes read from a single file. 0 uses the default.
func (b *KnowledgeBuilder) MaxFileSize(size int64) *KnowledgeBuilder {
	if size < 0 {
		panic("max file size must be non-negative")
	}
	b.opts.MaxFileSize = size
	return b
}

// Concurrency bounds parallel reads during folder ingestion.
func (b *KnowledgeBuilder) Concurrency(n int) *KnowledgeBuilder {
	b.opts.Concurrency = n
	return b
}

// WithObservability sets the tracer and metrics. Either may be nil.
func (b *KnowledgeBuilder) WithObservability(tracer *observability.Tracer, metrics *observability.Metrics) *KnowledgeBuilder {
	b.opts.Tracer = tracer
	b.opts.Metrics = metrics
	return b
}

// WithLogger sets the logger.
func (b *KnowledgeBuilder) WithLogger(log *slog.Logger) *KnowledgeBuilder {
	b.opts.Logger = log
	return b
}

// Build creates the knowledge base.
func (b *KnowledgeBuilder) Build() (*knowledge.Knowledge, error) {
	if b.opts.Vector == nil {
		return nil, fmt.Errorf("knowledge %q: vector provider is required", b.opts.Name)
	}
	if b.opts.Embedder == nil {
		return nil, fmt.Errorf("knowledge %q: embedder is required", b.opts.Name)
	}

	opts := b.opts
	if opts.Chunker == nil {
		opts.Chunker = knowledge.NewLineChunker(b.chunkSize, b.chunkOverlap, knowledge.TiktokenCounter(b.chunkEncoding))
	}
	return knowledge.New(opts)
}

// MustBuild creates the knowledge base or panics on error.
func (b *KnowledgeBuilder) MustBuild() *knowledge.Knowledge {
	kb, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build knowledge: %v", err))
	}
	return kb
}
