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

package knowledge

import (
	"context"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/hectorkb/pkg/filter"
	"github.com/kadirpekel/hectorkb/pkg/observability"
)

// SearchRequest searches a knowledge base.
type SearchRequest struct {
	Query string `json:"query"`

	// Limit caps the number of documents. Zero uses the default limit;
	// larger values are capped at the maximum limit.
	Limit int `json:"limit,omitempty"`

	Filters filter.Set `json:"filters,omitempty"`

	// Validated marks Filters as already checked with ValidateFilterSets,
	// so Search uses them as given.
	Validated bool `json:"-"`
}

// Document is one search hit.
type Document struct {
	ID        string         `json:"id"`
	ContentID string         `json:"content_id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Content   string         `json:"content"`
	Score     float32        `json:"score"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchResult holds the hits of a search and the filter keys that were
// dropped because the knowledge base does not know them.
type SearchResult struct {
	Documents   []Document `json:"documents"`
	Filters     filter.Set `json:"filters"`
	InvalidKeys []string   `json:"invalid_filter_keys,omitempty"`
}

// ValidFilterKeys returns the metadata keys of the ingested contents.
func (k *Knowledge) ValidFilterKeys(ctx context.Context) (filter.Keys, error) {
	keys, err := k.contents.MetadataKeys(ctx, k.name)
	if err != nil {
		return nil, err
	}
	return filter.NewKeys(keys...), nil
}

// ValidateFilters drops filter entries on unknown metadata keys. The
// returned set has the shape of set.
func (k *Knowledge) ValidateFilters(ctx context.Context, set filter.Set) (filter.Set, []string, error) {
	sets, invalid, err := k.ValidateFilterSets(ctx, set)
	if err != nil {
		return filter.Absent(), nil, err
	}
	return sets[0], invalid, nil
}

// ValidateFilterSets validates every set against one read of the valid
// keys. Dropped keys are reported once each, in first-seen order.
func (k *Knowledge) ValidateFilterSets(ctx context.Context, sets ...filter.Set) ([]filter.Set, []string, error) {
	out := make([]filter.Set, len(sets))
	copy(out, sets)
	if !slices.ContainsFunc(sets, func(s filter.Set) bool { return !s.IsAbsent() }) {
		return out, nil, nil
	}

	valid, err := k.ValidFilterKeys(ctx)
	if err != nil {
		return nil, nil, err
	}

	var invalid []string
	for i, set := range sets {
		validated, dropped := filter.Validate(set, valid)
		out[i] = validated
		for _, key := range dropped {
			if !slices.Contains(invalid, key) {
				invalid = append(invalid, key)
			}
		}
	}
	if len(invalid) > 0 {
		k.log.Warn("Dropping filters on unknown metadata keys",
			"invalid_keys", invalid,
			"valid_keys", valid.Sorted())
		k.metrics.RecordInvalidFilterKeys(k.name, len(invalid))
	}
	return out, invalid, nil
}

// ClampLimit applies the default and maximum search limits.
func (k *Knowledge) ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return k.defaultLimit
	case limit > k.maxLimit:
		return k.maxLimit
	default:
		return limit
	}
}

// Search embeds the query and returns the most similar chunks that match
// the validated filters.
func (k *Knowledge) Search(ctx context.Context, req SearchRequest) (result *SearchResult, err error) {
	limit := k.ClampLimit(req.Limit)

	ctx, span := k.tracer.StartSearch(ctx, k.name, req.Query, limit)
	defer span.End()

	start := time.Now()
	defer func() {
		k.stats.RecordSearch(time.Since(start), err)
		k.metrics.RecordSearch(k.name, time.Since(start), err)
		k.tracer.RecordError(span, err)
	}()

	set, invalid := req.Filters, []string(nil)
	if !req.Validated {
		if set, invalid, err = k.ValidateFilters(ctx, req.Filters); err != nil {
			return nil, &SearchError{Knowledge: k.name, Component: "contents_db", Query: req.Query, Err: err}
		}
	}
	span.SetAttributes(
		attribute.String(observability.AttrFilterKind, set.Kind().String()),
		attribute.Int(observability.AttrFilterCount, set.Len()),
		attribute.StringSlice(observability.AttrInvalidKeys, invalid),
	)

	vec, err := k.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, &SearchError{Knowledge: k.name, Component: "embedder", Query: req.Query, Err: err}
	}

	hits, err := k.vector.SearchWithFilter(ctx, k.collection, vec, limit, set)
	if err != nil {
		return nil, &SearchError{Knowledge: k.name, Component: "vector_store", Query: req.Query, Err: err}
	}

	docs := make([]Document, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, toDocument(h.ID, h.Content, h.Score, h.Metadata))
	}
	span.SetAttributes(attribute.Int(observability.AttrSearchResults, len(docs)))

	k.log.Debug("Searched knowledge",
		"limit", limit,
		"filters", set.String(),
		"results", len(docs))
	return &SearchResult{Documents: docs, Filters: set, InvalidKeys: invalid}, nil
}

func toDocument(id, content string, score float32, metadata map[string]any) Document {
	doc := Document{ID: id, Content: content, Score: score, Metadata: make(map[string]any, len(metadata))}
	for key, v := range metadata {
		switch key {
		case MetaContent:
			if doc.Content == "" {
				doc.Content, _ = v.(string)
			}
		case MetaContentID:
			doc.ContentID, _ = v.(string)
		case MetaContentName:
			doc.Name, _ = v.(string)
		default:
			doc.Metadata[key] = v
		}
	}
	return doc
}
