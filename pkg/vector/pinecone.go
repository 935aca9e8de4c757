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
	"cmp"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kadirpekel/hectorkb/pkg/filter"
)

// PineconeConfig configures the Pinecone vector provider.
type PineconeConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key" json:"api_key"`

	// Host overrides the control plane URL.
	Host string `yaml:"host,omitempty" mapstructure:"host" json:"host,omitempty"`

	// IndexName is used when a knowledge base does not name a collection.
	IndexName string `yaml:"index_name" mapstructure:"index_name" json:"index_name,omitempty"`

	// Namespace partitions vectors inside the index.
	Namespace string `yaml:"namespace,omitempty" mapstructure:"namespace" json:"namespace,omitempty"`
}

// PineconeProvider implements Provider using Pinecone. Filter sets are
// translated into Pinecone's metadata filter language ($eq, $in, $and, ...).
// Indexes are managed outside this process; their hosts are resolved once
// and cached.
type PineconeProvider struct {
	client    *pinecone.Client
	namespace string
	fallback  string

	mu    sync.Mutex
	hosts map[string]string
}

// NewPineconeProvider creates a new Pinecone provider.
func NewPineconeProvider(cfg PineconeConfig) (*PineconeProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required for Pinecone")
	}
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey, Host: cfg.Host})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pinecone client: %w", err)
	}
	return &PineconeProvider{
		client:    client,
		namespace: cfg.Namespace,
		fallback:  cmp.Or(cfg.IndexName, "hectorkb"),
		hosts:     make(map[string]string),
	}, nil
}

func (p *PineconeProvider) Name() string {
	return string(ProviderPinecone)
}

func (p *PineconeProvider) host(ctx context.Context, index string) (string, error) {
	p.mu.Lock()
	host, ok := p.hosts[index]
	p.mu.Unlock()
	if ok {
		return host, nil
	}
	desc, err := p.client.DescribeIndex(ctx, index)
	if err != nil {
		return "", fmt.Errorf("failed to describe index %s: %w", index, err)
	}
	p.mu.Lock()
	p.hosts[index] = desc.Host
	p.mu.Unlock()
	return desc.Host, nil
}

// withIndex runs fn on a connection to the index backing collection. The
// connection is closed when fn returns.
func (p *PineconeProvider) withIndex(ctx context.Context, collection string, fn func(*pinecone.IndexConnection) error) error {
	host, err := p.host(ctx, cmp.Or(collection, p.fallback))
	if err != nil {
		return err
	}
	conn, err := p.client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: p.namespace})
	if err != nil {
		return fmt.Errorf("failed to connect to index: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

func (p *PineconeProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error {
	var meta *pinecone.Metadata
	if len(metadata) > 0 {
		values := make(map[string]any, len(metadata))
		for k, v := range metadata {
			values[k] = normalizeValue(v)
		}
		var err error
		if meta, err = structpb.NewStruct(values); err != nil {
			return fmt.Errorf("failed to convert metadata: %w", err)
		}
	}
	return p.withIndex(ctx, collection, func(conn *pinecone.IndexConnection) error {
		if _, err := conn.UpsertVectors(ctx, []*pinecone.Vector{{Id: id, Values: vector, Metadata: meta}}); err != nil {
			return fmt.Errorf("failed to upsert vector: %w", err)
		}
		return nil
	})
}

func (p *PineconeProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, filter.Absent())
}

func (p *PineconeProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, set filter.Set) ([]Result, error) {
	mf, err := buildPineconeFilter(set)
	if err != nil {
		return nil, err
	}
	var results []Result
	err = p.withIndex(ctx, collection, func(conn *pinecone.IndexConnection) error {
		resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
			Vector:          vector,
			TopK:            uint32(max(topK, 1)),
			MetadataFilter:  mf,
			IncludeMetadata: true,
			IncludeValues:   true,
		})
		if err != nil {
			return fmt.Errorf("failed to query Pinecone: %w", err)
		}
		results = convertPineconeResults(resp.Matches)
		return nil
	})
	return results, err
}

func (p *PineconeProvider) Delete(ctx context.Context, collection string, id string) error {
	return p.withIndex(ctx, collection, func(conn *pinecone.IndexConnection) error {
		if err := conn.DeleteVectorsById(ctx, []string{id}); err != nil {
			return fmt.Errorf("failed to delete vector: %w", err)
		}
		return nil
	})
}

func (p *PineconeProvider) DeleteByFilter(ctx context.Context, collection string, set filter.Set) error {
	if set.Len() == 0 {
		return errors.New("delete by filter requires at least one predicate")
	}
	mf, err := buildPineconeFilter(set)
	if err != nil {
		return err
	}
	return p.withIndex(ctx, collection, func(conn *pinecone.IndexConnection) error {
		if err := conn.DeleteVectorsByFilter(ctx, mf); err != nil {
			return fmt.Errorf("failed to delete by filter: %w", err)
		}
		return nil
	})
}

// CreateCollection only verifies the index exists. Pinecone indexes are
// provisioned out of band.
func (p *PineconeProvider) CreateCollection(ctx context.Context, collection string, _ int) error {
	name := cmp.Or(collection, p.fallback)
	indexes, err := p.client.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes: %w", err)
	}
	for _, idx := range indexes {
		if idx.Name == name {
			return nil
		}
	}
	return fmt.Errorf("pinecone index %s does not exist", name)
}

func (p *PineconeProvider) DeleteCollection(_ context.Context, collection string) error {
	return fmt.Errorf("pinecone index %s must be deleted out of band", cmp.Or(collection, p.fallback))
}

// Close forgets cached index hosts.
func (p *PineconeProvider) Close() error {
	p.mu.Lock()
	clear(p.hosts)
	p.mu.Unlock()
	return nil
}

var pineconeOps = map[filter.Op]string{
	filter.OpEq:  "$eq",
	filter.OpNe:  "$ne",
	filter.OpGt:  "$gt",
	filter.OpGte: "$gte",
	filter.OpLt:  "$lt",
	filter.OpLte: "$lte",
	filter.OpIn:  "$in",
}

// buildPineconeFilter translates a filter set into a metadata filter. A
// single predicate is emitted bare, several are wrapped in $and. An empty
// set yields nil (no filtering).
func buildPineconeFilter(set filter.Set) (*pinecone.MetadataFilter, error) {
	exprs := set.Exprs()
	if len(exprs) == 0 {
		return nil, nil
	}

	clauses := make([]any, 0, len(exprs))
	for _, e := range exprs {
		op, value := e.Op, e.Value
		if op == filter.OpContains {
			// Pinecone has no substring operator. A list field matches $in
			// when any of its elements is listed, which is list membership.
			op, value = filter.OpIn, []any{value}
		}
		name, ok := pineconeOps[op]
		if !ok {
			return nil, fmt.Errorf("pinecone: unsupported operator %q on %q", e.Op, e.Key)
		}
		if op == filter.OpIn {
			if _, isList := value.([]any); !isList {
				value = []any{value}
			}
		}
		clauses = append(clauses, map[string]any{
			e.Key: map[string]any{name: normalizeValue(value)},
		})
	}

	doc := clauses[0].(map[string]any)
	if len(clauses) > 1 {
		doc = map[string]any{"$and": clauses}
	}

	metadataFilter, err := structpb.NewStruct(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert filter: %w", err)
	}
	return metadataFilter, nil
}

func convertPineconeResults(matches []*pinecone.ScoredVector) []Result {
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		if m == nil || m.Vector == nil {
			continue
		}
		metadata := map[string]any{}
		if m.Vector.Metadata != nil {
			metadata = m.Vector.Metadata.AsMap()
		}
		content, _ := metadata["content"].(string)
		results = append(results, Result{
			ID:       m.Vector.Id,
			Content:  content,
			Vector:   m.Vector.Values,
			Metadata: metadata,
			Score:    m.Score,
		})
	}
	return results
}

var _ Provider = (*PineconeProvider)(nil)
