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

// Package searchtool exposes knowledge base search as a tool.
//
// Two variants exist. search_knowledge_base applies only the filters the
// tool was configured with. search_knowledge_base_with_filters also accepts
// filters chosen by the model; those are parsed, checked against the
// metadata keys the knowledge base actually holds, and reconciled with the
// configured filters before searching. Configured filters win on conflict.
//
// The tool never hands search failures back as errors. They come back as a
// result the model can read, prefixed with ErrorPrefix.
package searchtool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/hectorkb/pkg/filter"
	"github.com/kadirpekel/hectorkb/pkg/knowledge"
	"github.com/kadirpekel/hectorkb/pkg/observability"
	"github.com/kadirpekel/hectorkb/pkg/tool"
	"github.com/kadirpekel/hectorkb/pkg/tool/functiontool"
)

const (
	NameSearch            = "search_knowledge_base"
	NameSearchWithFilters = "search_knowledge_base_with_filters"

	// ErrorPrefix starts every failure result.
	ErrorPrefix = "Error searching knowledge base: "
)

// Searcher is the part of a knowledge base the tool needs.
type Searcher interface {
	Name() string
	Description() string
	Limits() (defaultLimit, maxLimit int)
	ValidFilterKeys(ctx context.Context) (filter.Keys, error)
	ValidateFilterSets(ctx context.Context, sets ...filter.Set) ([]filter.Set, []string, error)
	Search(ctx context.Context, req knowledge.SearchRequest) (*knowledge.SearchResult, error)
}

// Config configures a search tool.
type Config struct {
	// Knowledge is the knowledge base to search (required).
	Knowledge Searcher

	// Filters always apply to searches. They take precedence over filters
	// chosen by the model.
	Filters filter.Set

	// AgenticFilters lets the model pass its own filters.
	AgenticFilters bool

	// DefaultLimit and MaxLimit override the knowledge base limits.
	DefaultLimit int
	MaxLimit     int

	// Name overrides the tool name.
	Name string

	// Description overrides the tool description.
	Description string

	Tracer  *observability.Tracer
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Response is the successful result of a search.
type Response struct {
	Query             string               `json:"query"`
	Total             int                  `json:"total"`
	Documents         []knowledge.Document `json:"documents"`
	Filters           filter.Set           `json:"filters"`
	InvalidFilterKeys []string             `json:"invalid_filter_keys"`
	DroppedFilters    []filter.Dropped     `json:"dropped_filters,omitempty"`
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"required,description=The search query to find relevant documents"`
	Limit int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results to return"`
}

type filteredSearchArgs struct {
	Query   string `json:"query" jsonschema:"required,description=The search query to find relevant documents"`
	Limit   int    `json:"limit,omitempty" jsonschema:"description=Maximum number of results to return"`
	Filters any    `json:"filters,omitempty"`
}

// SearchTool searches one knowledge base.
type SearchTool struct {
	kb           Searcher
	user         filter.Set
	agentic      bool
	name         string
	description  string
	defaultLimit int
	maxLimit     int
	schema       map[string]any
	tracer       *observability.Tracer
	metrics      *observability.Metrics
	log          *slog.Logger
}

// New creates a search tool.
func New(cfg Config) (*SearchTool, error) {
	if cfg.Knowledge == nil {
		return nil, errors.New("search tool requires a knowledge base")
	}

	defaultLimit, maxLimit := cfg.Knowledge.Limits()
	if cfg.MaxLimit > 0 {
		maxLimit = cfg.MaxLimit
	}
	if cfg.DefaultLimit > 0 {
		defaultLimit = cfg.DefaultLimit
	}
	defaultLimit = min(defaultLimit, maxLimit)

	name := cfg.Name
	if name == "" {
		name = NameSearch
		if cfg.AgenticFilters {
			name = NameSearchWithFilters
		}
	}

	t := &SearchTool{
		kb:           cfg.Knowledge,
		user:         cfg.Filters,
		agentic:      cfg.AgenticFilters,
		name:         name,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		tracer:       cfg.Tracer,
		metrics:      cfg.Metrics,
	}

	t.description = cfg.Description
	if t.description == "" {
		t.description = t.buildDescription()
	}

	schema, err := t.buildSchema()
	if err != nil {
		return nil, err
	}
	t.schema = schema

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	t.log = log.With("tool", name, "knowledge", cfg.Knowledge.Name())

	return t, nil
}

func (t *SearchTool) Name() string           { return t.name }
func (t *SearchTool) Description() string    { return t.description }
func (t *SearchTool) IsLongRunning() bool    { return false }
func (t *SearchTool) RequiresApproval() bool { return false }
func (t *SearchTool) Schema() map[string]any { return t.schema }

// Filters returns the user filters applied to every search.
func (t *SearchTool) Filters() filter.Set { return t.user }

// AgenticFilters reports whether the model may pass its own filters.
func (t *SearchTool) AgenticFilters() bool { return t.agentic }

// Call runs a search. Failures are returned as {"error": "..."} with a nil
// error.
func (t *SearchTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	resp, err := t.Run(ctx, args)
	if err != nil {
		return map[string]any{"error": ErrorPrefix + err.Error()}, nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return map[string]any{"error": ErrorPrefix + err.Error()}, nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return map[string]any{"error": ErrorPrefix + err.Error()}, nil
	}
	return result, nil
}

// CallText runs a search and renders the result as text: the JSON response
// on success, the error string otherwise.
func (t *SearchTool) CallText(ctx context.Context, args map[string]any) string {
	resp, err := t.Run(ctx, args)
	if err != nil {
		return ErrorPrefix + err.Error()
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return ErrorPrefix + err.Error()
	}
	return string(data)
}

// Run validates the arguments, reconciles filters and searches. Unlike
// Call it reports failures as errors.
func (t *SearchTool) Run(ctx context.Context, args map[string]any) (resp *Response, err error) {
	ctx, span := t.tracer.Start(ctx, observability.SpanToolCall, trace.WithAttributes(
		attribute.String(observability.AttrToolName, t.name),
		attribute.String(observability.AttrKnowledgeName, t.kb.Name()),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during search: %v", r)
		}
		if err != nil {
			t.log.Warn("Knowledge search failed", "error", err)
		}
		t.tracer.RecordError(span, err)
		t.metrics.RecordToolCall(t.name, err != nil)
	}()

	var a filteredSearchArgs
	if err := functiontool.Decode(args, &a); err != nil {
		return nil, err
	}
	if a.Query == "" {
		return nil, errors.New("query parameter is required")
	}

	agentic := filter.Absent()
	var dropped []filter.Dropped
	if t.agentic && a.Filters != nil {
		agentic, dropped = filter.Parse(a.Filters, t.log)
	}

	resp, err = t.search(ctx, a.Query, a.Limit, agentic)
	if err != nil {
		return nil, err
	}
	resp.DroppedFilters = dropped
	span.SetAttributes(attribute.Int(observability.AttrSearchResults, resp.Total))
	return resp, nil
}

// Search runs a search with requested as the caller's filters, whether or
// not the tool accepts agentic filters. The configured filters still take
// precedence.
func (t *SearchTool) Search(ctx context.Context, query string, limit int, requested filter.Set) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query parameter is required")
	}
	return t.search(ctx, query, limit, requested)
}

func (t *SearchTool) search(ctx context.Context, query string, limit int, requested filter.Set) (*Response, error) {
	set, invalid, err := PrepareFilters(ctx, t.kb, requested, t.user)
	if err != nil {
		return nil, fmt.Errorf("failed to validate filters: %w", err)
	}

	result, err := t.kb.Search(ctx, knowledge.SearchRequest{
		Query:     query,
		Limit:     t.clamp(limit),
		Filters:   set,
		Validated: true,
	})
	if err != nil {
		return nil, err
	}

	docs := result.Documents
	if docs == nil {
		docs = []knowledge.Document{}
	}
	return &Response{
		Query:             query,
		Total:             len(docs),
		Documents:         docs,
		Filters:           result.Filters,
		InvalidFilterKeys: mergeKeys(invalid, result.InvalidKeys),
	}, nil
}

// PrepareFilters validates agentic and user filters against the knowledge
// base and reconciles them. The returned keys are every dropped key, each
// once.
func PrepareFilters(ctx context.Context, kb Searcher, agentic, user filter.Set) (filter.Set, []string, error) {
	sets, invalid, err := kb.ValidateFilterSets(ctx, agentic, user)
	if err != nil {
		return filter.Absent(), nil, err
	}
	return filter.Reconcile(sets[0], sets[1]), mergeKeys(invalid), nil
}

func (t *SearchTool) clamp(limit int) int {
	switch {
	case limit <= 0:
		return t.defaultLimit
	case limit > t.maxLimit:
		return t.maxLimit
	default:
		return limit
	}
}

func mergeKeys(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, list := range lists {
		for _, k := range list {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func (t *SearchTool) buildDescription() string {
	desc := "Search the knowledge base for relevant information using semantic search."
	if d := t.kb.Description(); d != "" {
		desc += "\n\nKnowledge base " + t.kb.Name() + ": " + d
	}
	if t.agentic {
		desc += "\n\nYou can narrow results with metadata filters, either as an object of " +
			"key/value pairs (all must match) or as a list of {\"key\", \"op\", \"value\"} " +
			"predicates where op is one of eq, ne, gt, gte, lt, lte, in, contains. " +
			"Unknown keys are ignored and reported in invalid_filter_keys."
	}
	return desc
}

func (t *SearchTool) buildSchema() (map[string]any, error) {
	var (
		schema map[string]any
		err    error
	)
	if t.agentic {
		schema, err = functiontool.Schema[filteredSearchArgs]()
	} else {
		schema, err = functiontool.Schema[searchArgs]()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build schema for %s: %w", t.name, err)
	}

	props, _ := schema["properties"].(map[string]any)
	if props == nil {
		return schema, nil
	}
	props["limit"] = map[string]any{
		"type":        "integer",
		"description": fmt.Sprintf("Maximum number of results to return (default: %d, max: %d)", t.defaultLimit, t.maxLimit),
	}
	if t.agentic {
		props["filters"] = map[string]any{
			"description": "Metadata filters: an object of key/value pairs, or a list of {key, op, value} predicates",
			"anyOf": []any{
				map[string]any{"type": "object"},
				map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"key":   map[string]any{"type": "string"},
							"op":    map[string]any{"type": "string", "enum": []any{"eq", "ne", "gt", "gte", "lt", "lte", "in", "contains"}},
							"value": map[string]any{},
						},
						"required": []any{"key", "value"},
					},
				},
			},
		}
	}
	return schema, nil
}

// NameFilterKeys is the default name of the filter keys tool.
const NameFilterKeys = "list_knowledge_filters"

// NewFilterKeysTool creates a tool listing the metadata keys a knowledge
// base can be filtered on. An empty name uses NameFilterKeys.
func NewFilterKeysTool(kb Searcher, name string) (tool.CallableTool, error) {
	if name == "" {
		name = NameFilterKeys
	}
	type args struct {
		Prefix string `json:"prefix,omitempty" jsonschema:"description=Only return keys starting with this prefix"`
	}
	return functiontool.New(
		functiontool.Config{
			Name:        name,
			Description: "List the metadata keys the " + kb.Name() + " knowledge base can be filtered on.",
		},
		func(ctx context.Context, a args) (map[string]any, error) {
			keys, err := kb.ValidFilterKeys(ctx)
			if err != nil {
				return nil, err
			}
			out := []string{}
			for _, k := range keys.Sorted() {
				if strings.HasPrefix(k, a.Prefix) {
					out = append(out, k)
				}
			}
			return map[string]any{"knowledge": kb.Name(), "keys": out}, nil
		},
	)
}

var (
	_ tool.CallableTool = (*SearchTool)(nil)
	_ Searcher          = (*knowledge.Knowledge)(nil)
)
