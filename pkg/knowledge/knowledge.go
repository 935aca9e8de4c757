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

// Package knowledge implements knowledge bases: documents are read from
// text, local files, URLs, topics or remote content sources, split into
// chunks, embedded and stored in a vector provider, and searched with
// metadata filters.
//
// Every content item also gets a record in a contents database. The union
// of metadata keys across those records is the set of keys a search filter
// may use; filters on other keys are dropped and reported.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kadirpekel/hectorkb/pkg/contentsdb"
	"github.com/kadirpekel/hectorkb/pkg/embedder"
	"github.com/kadirpekel/hectorkb/pkg/httpclient"
	"github.com/kadirpekel/hectorkb/pkg/knowledge/remote"
	"github.com/kadirpekel/hectorkb/pkg/observability"
	"github.com/kadirpekel/hectorkb/pkg/vector"
)

// Metadata keys written by the knowledge base.
const (
	MetaContentID   = "content_id"
	MetaContentName = "content_name"
	MetaChunk       = "chunk"
	MetaContent     = "content"
	MetaSourceType  = "source_type"
	MetaSourceID    = "source_id"
	MetaPath        = "path"
	MetaBranch      = "branch"
	MetaTopic       = "topic"
	MetaURL         = "url"
	MetaCrawlDepth  = "crawl_depth"
)

// Defaults applied by New.
const (
	DefaultSearchLimit = 10
	DefaultMaxLimit    = 50
	DefaultMaxFileSize = 50 * 1024 * 1024
	DefaultConcurrency = 4
)

// TopicReader produces the text of a topic.
type TopicReader func(ctx context.Context, topic string) (string, error)

// Options configures a knowledge base. Name, Vector and Embedder are
// required.
type Options struct {
	Name        string
	Description string

	// Collection is the vector collection. Default: Name
	Collection string

	Vector   vector.Provider
	Embedder embedder.Embedder

	// Contents stores content records. Default: in memory
	Contents contentsdb.Store

	// Chunker splits documents. Default: 512 token line chunks
	Chunker Chunker

	// Readers convert documents to text. Default: DefaultReaders()
	Readers *Readers

	// Sources resolves remote content references.
	Sources *remote.Registry

	MaxFileSize int64
	Concurrency int

	DefaultLimit int
	MaxLimit     int

	// HTTPClient fetches URL content.
	HTTPClient *httpclient.Client

	// TopicReader produces topic text. Default: the topic itself
	TopicReader TopicReader

	Tracer  *observability.Tracer
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Knowledge is a searchable collection of documents.
type Knowledge struct {
	name        string
	description string
	collection  string

	vector   vector.Provider
	embedder embedder.Embedder
	contents contentsdb.Store
	chunker  Chunker
	readers  *Readers
	sources  *remote.Registry

	maxFileSize  int64
	concurrency  int
	defaultLimit int
	maxLimit     int

	http        *httpclient.Client
	topicReader TopicReader

	tracer  *observability.Tracer
	metrics *observability.Metrics
	stats   *Stats
	log     *slog.Logger

	collectionMu    sync.Mutex
	collectionReady bool
}

// New creates a knowledge base.
func New(opts Options) (*Knowledge, error) {
	if opts.Name == "" {
		return nil, errors.New("knowledge name is required")
	}
	if opts.Vector == nil {
		return nil, fmt.Errorf("knowledge %q: vector provider is required", opts.Name)
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("knowledge %q: embedder is required", opts.Name)
	}

	k := &Knowledge{
		name:         opts.Name,
		description:  opts.Description,
		collection:   opts.Collection,
		vector:       opts.Vector,
		embedder:     opts.Embedder,
		contents:     opts.Contents,
		chunker:      opts.Chunker,
		readers:      opts.Readers,
		sources:      opts.Sources,
		maxFileSize:  opts.MaxFileSize,
		concurrency:  opts.Concurrency,
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
		http:         opts.HTTPClient,
		topicReader:  opts.TopicReader,
		tracer:       opts.Tracer,
		metrics:      opts.Metrics,
		stats:        NewStats(opts.Name),
		log:          opts.Logger,
	}

	if k.collection == "" {
		k.collection = k.name
	}
	if k.contents == nil {
		k.contents = contentsdb.NewMemoryStore()
	}
	if k.chunker == nil {
		k.chunker = NewLineChunker(512, 0, TiktokenCounter("cl100k_base"))
	}
	if k.readers == nil {
		k.readers = DefaultReaders()
	}
	if k.sources == nil {
		k.sources, _ = remote.NewRegistry()
	}
	if k.maxFileSize <= 0 {
		k.maxFileSize = DefaultMaxFileSize
	}
	if k.concurrency <= 0 {
		k.concurrency = DefaultConcurrency
	}
	if k.defaultLimit <= 0 {
		k.defaultLimit = DefaultSearchLimit
	}
	if k.maxLimit <= 0 {
		k.maxLimit = DefaultMaxLimit
	}
	if k.defaultLimit > k.maxLimit {
		k.defaultLimit = k.maxLimit
	}
	if k.http == nil {
		k.http = httpclient.New(httpclient.WithName("knowledge-" + k.name))
	}
	if k.topicReader == nil {
		k.topicReader = func(_ context.Context, topic string) (string, error) {
			return topic, nil
		}
	}
	if k.log == nil {
		k.log = slog.Default()
	}
	k.log = k.log.With("knowledge", k.name)

	return k, nil
}

// Name returns the knowledge base name.
func (k *Knowledge) Name() string { return k.name }

// Description returns the knowledge base description.
func (k *Knowledge) Description() string { return k.description }

// Collection returns the vector collection name.
func (k *Knowledge) Collection() string { return k.collection }

// Sources returns the registered remote content sources.
func (k *Knowledge) Sources() []remote.Source { return k.sources.List() }

// Limits returns the default and maximum search limits.
func (k *Knowledge) Limits() (defaultLimit, maxLimit int) {
	return k.defaultLimit, k.maxLimit
}

// Stats returns a snapshot of ingestion and search counters.
func (k *Knowledge) Stats() StatsSnapshot { return k.stats.Snapshot() }

// Close releases the contents store. The vector provider and embedder may
// be shared and are closed by their owner.
func (k *Knowledge) Close() error {
	return k.contents.Close()
}

// ensureCollection creates the vector collection once the embedding
// dimension is known.
func (k *Knowledge) ensureCollection(ctx context.Context, dimension int) error {
	k.collectionMu.Lock()
	defer k.collectionMu.Unlock()

	if k.collectionReady {
		return nil
	}
	if err := k.vector.CreateCollection(ctx, k.collection, dimension); err != nil {
		return err
	}
	k.collectionReady = true
	return nil
}
