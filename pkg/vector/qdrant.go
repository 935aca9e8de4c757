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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/kadirpekel/hectorkb/pkg/filter"
)

// QdrantConfig configures the Qdrant vector provider.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host" mapstructure:"host" json:"host"`

	// Port is the Qdrant gRPC port (default: 6334).
	Port int `yaml:"port" mapstructure:"port" json:"port,omitempty"`

	// APIKey for authenticated access (optional).
	APIKey string `yaml:"api_key,omitempty" mapstructure:"api_key" json:"api_key,omitempty"`

	// UseTLS enables TLS connections.
	UseTLS bool `yaml:"use_tls,omitempty" mapstructure:"use_tls" json:"use_tls,omitempty"`

	// KeepAlive is the gRPC keepalive ping interval. Zero disables pings.
	KeepAlive time.Duration `yaml:"keep_alive,omitempty" mapstructure:"keep_alive" json:"keep_alive,omitempty"`
}

// QdrantProvider implements Provider using Qdrant over gRPC. Every predicate
// of a filter set is translated into a Qdrant condition. Collections are
// created on first write with cosine distance.
type QdrantProvider struct {
	client *qdrant.Client
	known  sync.Map
}

// NewQdrantProvider dials localhost:6334 unless configured otherwise.
func NewQdrantProvider(cfg QdrantConfig) (*QdrantProvider, error) {
	cfg.Host = cmp.Or(cfg.Host, "localhost")
	cfg.Port = cmp.Or(cfg.Port, 6334)

	var dialOpts []grpc.DialOption
	if cfg.KeepAlive > 0 {
		dialOpts = append(dialOpts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepAlive,
			Timeout:             cfg.KeepAlive / 2,
			PermitWithoutStream: true,
		}))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		APIKey:      cfg.APIKey,
		UseTLS:      cfg.UseTLS,
		GrpcOptions: dialOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &QdrantProvider{client: client}, nil
}

func (p *QdrantProvider) Name() string {
	return string(ProviderQdrant)
}

// ensureCollection creates collection once per process.
func (p *QdrantProvider) ensureCollection(ctx context.Context, collection string, dimension int) error {
	if _, ok := p.known.Load(collection); ok {
		return nil
	}
	exists, err := p.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", collection, err)
	}
	if !exists {
		err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create collection %s: %w", collection, err)
		}
	}
	p.known.Store(collection, struct{}{})
	return nil
}

func (p *QdrantProvider) Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error {
	if err := p.ensureCollection(ctx, collection, len(vector)); err != nil {
		return err
	}
	payload := make(map[string]*qdrant.Value, len(metadata))
	for key, value := range metadata {
		v, err := qdrant.NewValue(normalizeValue(value))
		if err != nil {
			return fmt.Errorf("failed to convert metadata value for key %s: %w", key, err)
		}
		payload[key] = v
	}
	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vector...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func (p *QdrantProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error) {
	return p.SearchWithFilter(ctx, collection, vector, topK, filter.Absent())
}

func (p *QdrantProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, set filter.Set) ([]Result, error) {
	req := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(max(topK, 1)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if set.Len() > 0 {
		qf, err := buildQdrantFilter(set)
		if err != nil {
			return nil, err
		}
		req.Filter = qf
	}
	resp, err := p.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}
	return convertQdrantResults(resp.Result), nil
}

func (p *QdrantProvider) Delete(ctx context.Context, collection string, id string) error {
	return p.deletePoints(ctx, collection, qdrant.NewPointsSelector(qdrant.NewID(id)))
}

func (p *QdrantProvider) DeleteByFilter(ctx context.Context, collection string, set filter.Set) error {
	if set.Len() == 0 {
		return errors.New("delete by filter requires at least one predicate")
	}
	qf, err := buildQdrantFilter(set)
	if err != nil {
		return err
	}
	return p.deletePoints(ctx, collection, qdrant.NewPointsSelectorFilter(qf))
}

func (p *QdrantProvider) deletePoints(ctx context.Context, collection string, sel *qdrant.PointsSelector) error {
	if _, err := p.client.Delete(ctx, &qdrant.DeletePoints{CollectionName: collection, Points: sel}); err != nil {
		return fmt.Errorf("failed to delete points from %s: %w", collection, err)
	}
	return nil
}

func (p *QdrantProvider) CreateCollection(ctx context.Context, collection string, vectorDimension int) error {
	return p.ensureCollection(ctx, collection, vectorDimension)
}

func (p *QdrantProvider) DeleteCollection(ctx context.Context, collection string) error {
	p.known.Delete(collection)
	if err := p.client.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

// buildQdrantFilter translates a filter set into Must and MustNot
// conditions.
func buildQdrantFilter(set filter.Set) (*qdrant.Filter, error) {
	qf := &qdrant.Filter{}

	for _, e := range set.Exprs() {
		switch e.Op {
		case filter.OpEq:
			c, err := qdrantMatch(e.Key, e.Value)
			if err != nil {
				return nil, err
			}
			qf.Must = append(qf.Must, c)
		case filter.OpNe:
			c, err := qdrantMatch(e.Key, e.Value)
			if err != nil {
				return nil, err
			}
			qf.MustNot = append(qf.MustNot, c)
		case filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte:
			c, err := qdrantRange(e)
			if err != nil {
				return nil, err
			}
			qf.Must = append(qf.Must, c)
		case filter.OpIn:
			c, err := qdrantMatchAny(e)
			if err != nil {
				return nil, err
			}
			qf.Must = append(qf.Must, c)
		case filter.OpContains:
			// Without a full-text index Qdrant evaluates text match as an
			// exact substring test; arrays match when any element matches.
			if s, ok := e.Value.(string); ok {
				qf.Must = append(qf.Must, qdrant.NewMatchText(e.Key, s))
				continue
			}
			c, err := qdrantMatch(e.Key, e.Value)
			if err != nil {
				return nil, err
			}
			qf.Must = append(qf.Must, c)
		default:
			return nil, fmt.Errorf("qdrant: unsupported operator %q on %q", e.Op, e.Key)
		}
	}

	return qf, nil
}

func qdrantMatch(key string, value any) (*qdrant.Condition, error) {
	switch v := value.(type) {
	case string:
		return qdrant.NewMatchKeyword(key, v), nil
	case bool:
		return qdrant.NewMatchBool(key, v), nil
	}
	if i, ok := asInt64(value); ok {
		return qdrant.NewMatchInt(key, i), nil
	}
	if f, ok := asFloat64(value); ok {
		return qdrant.NewRange(key, &qdrant.Range{Gte: qdrant.PtrOf(f), Lte: qdrant.PtrOf(f)}), nil
	}
	return nil, fmt.Errorf("qdrant: cannot match %q against %T", key, value)
}

func qdrantRange(e filter.Expr) (*qdrant.Condition, error) {
	f, ok := asFloat64(e.Value)
	if !ok {
		return nil, fmt.Errorf("qdrant: range predicate on %q needs a number, got %T", e.Key, e.Value)
	}
	r := &qdrant.Range{}
	switch e.Op {
	case filter.OpGt:
		r.Gt = qdrant.PtrOf(f)
	case filter.OpGte:
		r.Gte = qdrant.PtrOf(f)
	case filter.OpLt:
		r.Lt = qdrant.PtrOf(f)
	case filter.OpLte:
		r.Lte = qdrant.PtrOf(f)
	}
	return qdrant.NewRange(e.Key, r), nil
}

func qdrantMatchAny(e filter.Expr) (*qdrant.Condition, error) {
	values, ok := e.Value.([]any)
	if !ok {
		return qdrantMatch(e.Key, e.Value)
	}

	var keywords []string
	var ints []int64
	for _, v := range values {
		if s, isStr := v.(string); isStr {
			keywords = append(keywords, s)
			continue
		}
		if i, isInt := asInt64(v); isInt {
			ints = append(ints, i)
			continue
		}
		return nil, fmt.Errorf("qdrant: 'in' on %q supports strings and integers, got %T", e.Key, v)
	}

	switch {
	case len(keywords) > 0 && len(ints) > 0:
		return nil, fmt.Errorf("qdrant: 'in' on %q mixes strings and integers", e.Key)
	case len(ints) > 0:
		return qdrant.NewMatchInts(e.Key, ints...), nil
	default:
		return qdrant.NewMatchKeywords(e.Key, keywords...), nil
	}
}

func convertQdrantResults(points []*qdrant.ScoredPoint) []Result {
	results := make([]Result, 0, len(points))
	for _, point := range points {
		r := Result{Score: point.GetScore(), Metadata: make(map[string]any, len(point.GetPayload()))}
		switch id := point.GetId().GetPointIdOptions().(type) {
		case *qdrant.PointId_Uuid:
			r.ID = id.Uuid
		case *qdrant.PointId_Num:
			r.ID = strconv.FormatUint(id.Num, 10)
		}
		if dense, ok := point.GetVectors().GetVector().GetVector().(*qdrant.VectorOutput_Dense); ok {
			r.Vector = dense.Dense.GetData()
		}
		for key, value := range point.GetPayload() {
			r.Metadata[key] = qdrantValue(value)
		}
		r.Content, _ = r.Metadata["content"].(string)
		results = append(results, r)
	}
	return results
}

func qdrantValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_ListValue:
		items := k.ListValue.GetValues()
		list := make([]any, len(items))
		for i, item := range items {
			list[i] = qdrantValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		fields := k.StructValue.GetFields()
		m := make(map[string]any, len(fields))
		for name, field := range fields {
			m[name] = qdrantValue(field)
		}
		return m
	default:
		return nil
	}
}

var _ Provider = (*QdrantProvider)(nil)
