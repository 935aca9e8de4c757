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

// Package runtime assembles knowledge bases, their search tools and the
// shared resources they depend on from a configuration.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/hectorkb/pkg/auth"
	"github.com/kadirpekel/hectorkb/pkg/builder"
	"github.com/kadirpekel/hectorkb/pkg/config"
	"github.com/kadirpekel/hectorkb/pkg/contentsdb"
	"github.com/kadirpekel/hectorkb/pkg/embedder"
	"github.com/kadirpekel/hectorkb/pkg/knowledge"
	"github.com/kadirpekel/hectorkb/pkg/knowledge/remote"
	"github.com/kadirpekel/hectorkb/pkg/observability"
	"github.com/kadirpekel/hectorkb/pkg/tool"
	"github.com/kadirpekel/hectorkb/pkg/tool/searchtool"
	"github.com/kadirpekel/hectorkb/pkg/vector"
)

// Runtime owns everything built from a configuration.
type Runtime struct {
	config *config.Config
	log    *slog.Logger

	obs       *observability.Manager
	ownsObs   bool
	validator *auth.JWTValidator

	pool      *contentsdb.Pool
	embedders map[string]embedder.Embedder
	vectors   *vector.Registry

	knowledge map[string]*knowledge.Knowledge
	search    map[string]*searchtool.SearchTool
	tools     *tool.Registry
}

type options struct {
	embedders EmbedderFactory
	vectors   VectorFactory
	contents  ContentsFactory
	obs       *observability.Manager
	log       *slog.Logger
}

// Option customizes New.
type Option func(*options)

// WithEmbedderFactory replaces DefaultEmbedderFactory.
func WithEmbedderFactory(f EmbedderFactory) Option {
	return func(o *options) { o.embedders = f }
}

// WithVectorFactory replaces DefaultVectorFactory.
func WithVectorFactory(f VectorFactory) Option {
	return func(o *options) { o.vectors = f }
}

// WithContentsFactory replaces DefaultContentsFactory.
func WithContentsFactory(f ContentsFactory) Option {
	return func(o *options) { o.contents = f }
}

// WithObservability uses m instead of building one from the config. The
// runtime does not shut it down.
func WithObservability(m *observability.Manager) Option {
	return func(o *options) { o.obs = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// New builds a runtime from cfg. Defaults are applied and the config is
// validated first. On error everything built so far is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Runtime, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	o := options{
		embedders: DefaultEmbedderFactory,
		vectors:   DefaultVectorFactory,
		contents:  DefaultContentsFactory,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r := &Runtime{
		config:    cfg,
		log:       o.log,
		pool:      contentsdb.NewPool(o.log),
		embedders: make(map[string]embedder.Embedder),
		vectors:   vector.NewRegistry(),
		knowledge: make(map[string]*knowledge.Knowledge),
		search:    make(map[string]*searchtool.SearchTool),
	}
	r.tools, _ = tool.NewRegistry()
	defer func() {
		if err != nil {
			_ = r.Close()
		}
	}()

	r.obs = o.obs
	if r.obs == nil {
		if r.obs, err = observability.NewManager(ctx, &cfg.Observability); err != nil {
			return nil, fmt.Errorf("failed to initialize observability: %w", err)
		}
		r.ownsObs = true
	}

	if r.validator, err = auth.NewValidatorFromConfig(cfg.Server.Auth); err != nil {
		return nil, err
	}

	for _, name := range config.SortedKeys(cfg.Embedders) {
		emb, err := o.embedders(cfg.Embedders[name])
		if err != nil {
			return nil, fmt.Errorf("embedder %q: %w", name, err)
		}
		r.embedders[name] = emb
	}

	for _, name := range config.SortedKeys(cfg.VectorStores) {
		p, err := o.vectors(cfg.VectorStores[name])
		if err != nil {
			return nil, fmt.Errorf("vector store %q: %w", name, err)
		}
		if err := r.vectors.Register(name, p); err != nil {
			_ = p.Close()
			return nil, err
		}
	}

	multi := len(cfg.Knowledge) > 1
	for _, name := range cfg.KnowledgeNames() {
		if err := r.buildKnowledge(ctx, name, cfg.Knowledge[name], o, multi); err != nil {
			return nil, fmt.Errorf("knowledge %q: %w", name, err)
		}
	}

	r.log.Info("Runtime ready",
		"knowledge", cfg.KnowledgeNames(),
		"tools", r.ToolNames())
	return r, nil
}

func (r *Runtime) buildKnowledge(ctx context.Context, name string, kc *config.KnowledgeConfig, o options, multi bool) error {
	emb, ok := r.embedders[kc.Embedder]
	if !ok {
		return fmt.Errorf("embedder %q not found", kc.Embedder)
	}
	provider, ok := r.vectors.Get(kc.VectorStore)
	if !ok {
		return fmt.Errorf("vector store %q not found", kc.VectorStore)
	}

	store, err := o.contents(ctx, r.pool, r.config, kc)
	if err != nil {
		return fmt.Errorf("contents db: %w", err)
	}

	sources, err := remote.NewRegistryFromConfig(kc.ContentSources)
	if err != nil {
		_ = store.Close()
		return err
	}

	kb, err := builder.NewKnowledge(name).
		Description(kc.Description).
		Collection(kc.Collection).
		WithVectorProvider(provider).
		WithEmbedder(emb).
		WithContents(store).
		WithSources(sources).
		ChunkSize(kc.Chunking.Size).
		ChunkOverlap(kc.Chunking.Overlap).
		Encoding(kc.Chunking.Encoding).
		Limits(kc.Search.DefaultLimit, kc.Search.MaxLimit).
		MaxFileSize(kc.MaxFileSize).
		Concurrency(kc.Concurrency).
		WithObservability(r.obs.Tracer(), r.obs.Metrics()).
		WithLogger(r.log).
		Build()
	if err != nil {
		_ = store.Close()
		return err
	}
	r.knowledge[name] = kb

	searchName, keysName := "", ""
	if multi {
		searchName = "search_" + name
		keysName = "list_" + name + "_filters"
	}

	search, err := builder.NewSearchTool(kb).
		Name(searchName).
		Filters(kc.Search.FilterSet(r.log)).
		AgenticFilters(kc.Search.AgenticFilters).
		WithObservability(r.obs.Tracer(), r.obs.Metrics()).
		WithLogger(r.log).
		Build()
	if err != nil {
		return err
	}
	r.search[name] = search

	keys, err := searchtool.NewFilterKeysTool(kb, keysName)
	if err != nil {
		return err
	}

	return r.tools.AddToolset(ctx, knowledgeToolset{name: name, tools: []tool.CallableTool{search, keys}})
}

// knowledgeToolset groups the tools of one knowledge base.
type knowledgeToolset struct {
	name  string
	tools []tool.CallableTool
}

func (ts knowledgeToolset) Name() string { return ts.name }

func (ts knowledgeToolset) Tools(context.Context) ([]tool.CallableTool, error) {
	return ts.tools, nil
}

// Config returns the configuration the runtime was built from.
func (r *Runtime) Config() *config.Config {
	return r.config
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *slog.Logger {
	return r.log
}

// Observability returns the tracing and metrics manager.
func (r *Runtime) Observability() *observability.Manager {
	return r.obs
}

// Validator returns the JWT validator, or nil when auth is disabled.
func (r *Runtime) Validator() *auth.JWTValidator {
	return r.validator
}

// Knowledge returns a knowledge base by name.
func (r *Runtime) Knowledge(name string) (*knowledge.Knowledge, bool) {
	kb, ok := r.knowledge[name]
	return kb, ok
}

// KnowledgeNames returns the knowledge base names in sorted order.
func (r *Runtime) KnowledgeNames() []string {
	return config.SortedKeys(r.knowledge)
}

// SearchTool returns the search tool of a knowledge base.
func (r *Runtime) SearchTool(name string) (*searchtool.SearchTool, bool) {
	t, ok := r.search[name]
	return t, ok
}

// Tools returns every tool, search and filter listing, sorted by name.
func (r *Runtime) Tools() []tool.CallableTool {
	return r.tools.List()
}

// ToolNames returns the names of Tools.
func (r *Runtime) ToolNames() []string {
	tools := r.Tools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return names
}

// Close releases everything the runtime built. It is safe to call on a
// partially built runtime.
func (r *Runtime) Close() error {
	var errs []error

	for name, kb := range r.knowledge {
		if err := kb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("knowledge %q: %w", name, err))
		}
	}
	if r.vectors != nil {
		if err := r.vectors.Close(); err != nil {
			errs = append(errs, fmt.Errorf("vector stores: %w", err))
		}
	}
	for name, emb := range r.embedders {
		if err := emb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("embedder %q: %w", name, err))
		}
	}
	if r.pool != nil {
		if err := r.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database pool: %w", err))
		}
	}
	if r.validator != nil {
		r.validator.Close()
	}
	if r.ownsObs {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.obs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observability: %w", err))
		}
	}

	if len(errs) > 0 {
		r.log.Warn("Runtime cleanup errors", "errors", len(errs))
	}
	return errors.Join(errs...)
}
