package vector

import (
	"context"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hectorkb/pkg/filter"
)

func seedChromem(t *testing.T) *ChromemProvider {
	t.Helper()

	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)

	ctx := context.Background()
	docs := []struct {
		id     string
		vector []float32
		meta   map[string]any
	}{
		{"a", []float32{1, 0, 0}, map[string]any{"content": "alpha", "region": "us", "year": 2023}},
		{"b", []float32{0.9, 0.1, 0}, map[string]any{"content": "beta", "region": "eu", "year": 2024}},
		{"c", []float32{0.8, 0.2, 0}, map[string]any{"content": "gamma", "region": "us", "year": 2024}},
		{"d", []float32{0, 1, 0}, map[string]any{"content": "delta", "region": "apac", "year": 2021}},
	}
	for _, d := range docs {
		require.NoError(t, p.Upsert(ctx, "docs", d.id, d.vector, d.meta))
	}
	return p
}

func resultIDs(results []Result) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func TestChromemProvider_SearchWithFilter(t *testing.T) {
	p := seedChromem(t)
	ctx := context.Background()
	query := []float32{1, 0, 0}

	tests := []struct {
		name string
		set  filter.Set
		want []string
	}{
		{"absent", filter.Absent(), []string{"a", "b", "c", "d"}},
		{"map_equality", filter.FromMap(filter.NewMap(filter.P("region", "us"))), []string{"a", "c"}},
		{"list_equality_number", filter.FromList([]filter.Expr{filter.EQ("year", 2024)}), []string{"b", "c"}},
		{"range_post_filtered", filter.FromList([]filter.Expr{filter.GTE("year", 2023), filter.NE("region", "eu")}), []string{"a", "c"}},
		{"in", filter.FromList([]filter.Expr{filter.IN("region", "eu", "apac")}), []string{"b", "d"}},
		{"no_match", filter.FromList([]filter.Expr{filter.EQ("region", "mars")}), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := p.SearchWithFilter(ctx, "docs", query, 10, tt.set)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resultIDs(results))
		})
	}
}

func TestChromemProvider_SearchRespectsTopK(t *testing.T) {
	p := seedChromem(t)

	results, err := p.SearchWithFilter(context.Background(), "docs", []float32{1, 0, 0}, 1,
		filter.FromList([]filter.Expr{filter.GT("year", 2021)}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "alpha", results[0].Content)
}

func TestChromemProvider_DeleteByFilter(t *testing.T) {
	p := seedChromem(t)
	ctx := context.Background()

	require.NoError(t, p.DeleteByFilter(ctx, "docs", filter.FromMap(filter.NewMap(filter.P("region", "us")))))

	results, err := p.Search(ctx, "docs", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "d"}, resultIDs(results))

	assert.Error(t, p.DeleteByFilter(ctx, "docs", filter.Absent()))
	assert.Error(t, p.DeleteByFilter(ctx, "docs", filter.FromList([]filter.Expr{filter.GT("year", 1)})))
}

func TestChromemProvider_EmptyCollection(t *testing.T) {
	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)

	results, err := p.Search(context.Background(), "empty", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromemProvider_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	p, err := NewChromemProvider(ChromemConfig{PersistPath: dir})
	require.NoError(t, err)
	require.NoError(t, p.Upsert(ctx, "docs", "a", []float32{1, 0}, map[string]any{"content": "alpha", "region": "us"}))
	require.NoError(t, p.Close())

	reopened, err := NewChromemProvider(ChromemConfig{PersistPath: dir})
	require.NoError(t, err)
	results, err := reopened.Search(ctx, "docs", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "us", results[0].Metadata["region"])
}

func TestBuildQdrantFilter(t *testing.T) {
	set := filter.FromList([]filter.Expr{
		filter.EQ("region", "us"),
		filter.NE("status", "draft"),
		filter.GTE("year", 2020),
		filter.IN("quarter", "Q1", "Q2"),
		filter.IN("priority", 1, 2),
		filter.Contains("title", "report"),
		filter.EQ("active", true),
	})

	qf, err := buildQdrantFilter(set)
	require.NoError(t, err)
	assert.Len(t, qf.Must, 6)
	require.Len(t, qf.MustNot, 1)

	assert.Equal(t, "region", qf.Must[0].GetField().GetKey())
	assert.Equal(t, "us", qf.Must[0].GetField().GetMatch().GetKeyword())
	assert.Equal(t, "draft", qf.MustNot[0].GetField().GetMatch().GetKeyword())
	assert.Equal(t, 2020.0, qf.Must[1].GetField().GetRange().GetGte())
	assert.Equal(t, []string{"Q1", "Q2"}, qf.Must[2].GetField().GetMatch().GetKeywords().GetStrings())
	assert.Equal(t, []int64{1, 2}, qf.Must[3].GetField().GetMatch().GetIntegers().GetIntegers())
	assert.Equal(t, "report", qf.Must[4].GetField().GetMatch().GetText())
	assert.True(t, qf.Must[5].GetField().GetMatch().GetBoolean())
}

func TestBuildQdrantFilter_MapAndErrors(t *testing.T) {
	qf, err := buildQdrantFilter(filter.FromMap(filter.NewMap(filter.P("year", float64(2024)))))
	require.NoError(t, err)
	require.Len(t, qf.Must, 1)
	assert.Equal(t, int64(2024), qf.Must[0].GetField().GetMatch().GetInteger())

	_, err = buildQdrantFilter(filter.FromList([]filter.Expr{filter.GT("region", "us")}))
	assert.Error(t, err)

	_, err = buildQdrantFilter(filter.FromList([]filter.Expr{filter.IN("x", "a", 1)}))
	assert.Error(t, err)
}

func TestBuildPineconeFilter(t *testing.T) {
	pf, err := buildPineconeFilter(filter.Absent())
	require.NoError(t, err)
	assert.Nil(t, pf)

	pf, err = buildPineconeFilter(filter.FromMap(filter.NewMap(filter.P("region", "us"))))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"region": map[string]any{"$eq": "us"}}, pf.AsMap())

	pf, err = buildPineconeFilter(filter.FromList([]filter.Expr{
		filter.GT("year", 2020),
		filter.IN("region", "us", "eu"),
		filter.Contains("tags", "sales"),
	}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"$and": []any{
			map[string]any{"year": map[string]any{"$gt": float64(2020)}},
			map[string]any{"region": map[string]any{"$in": []any{"us", "eu"}}},
			map[string]any{"tags": map[string]any{"$in": []any{"sales"}}},
		},
	}, pf.AsMap())

	_, err = buildPineconeFilter(filter.FromList([]filter.Expr{{Key: "x", Op: "between", Value: 1}}))
	assert.Error(t, err)
}

func TestProviderConfig(t *testing.T) {
	cfg := &ProviderConfig{}
	cfg.SetDefaults()
	assert.Equal(t, ProviderChromem, cfg.Type)
	assert.NoError(t, cfg.Validate())

	assert.Error(t, (&ProviderConfig{Type: ProviderQdrant}).Validate())
	assert.Error(t, (&ProviderConfig{Type: ProviderPinecone, Pinecone: &PineconeConfig{}}).Validate())
	assert.Error(t, (&ProviderConfig{Type: "milvus"}).Validate())

	p, err := NewProvider(nil)
	require.NoError(t, err)
	assert.Equal(t, "chromem", p.Name())

	_, err = NewProvider(&ProviderConfig{Type: ProviderQdrant})
	assert.ErrorContains(t, err, "qdrant host is required")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)

	require.NoError(t, r.Register("default", p))
	assert.ErrorIs(t, r.Register("default", p), ErrDuplicateProvider)
	assert.Error(t, r.Register("", p))

	got, ok := r.Get("default")
	assert.True(t, ok)
	assert.Same(t, p, got)
	assert.Equal(t, []string{"default"}, r.List())
	assert.NoError(t, r.Close())
	assert.Empty(t, r.List())
}

func TestConvertQdrantResults(t *testing.T) {
	str := func(s string) *qdrant.Value { return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}} }
	points := []*qdrant.ScoredPoint{{
		Id:    &qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: 7}},
		Score: 0.5,
		Payload: map[string]*qdrant.Value{
			"content": str("alpha"),
			"year":    {Kind: &qdrant.Value_IntegerValue{IntegerValue: 2024}},
			"tags": {Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{
				Values: []*qdrant.Value{str("a"), str("b")},
			}}},
		},
	}}

	results := convertQdrantResults(points)
	require.Len(t, results, 1)
	assert.Equal(t, "7", results[0].ID)
	assert.Equal(t, "alpha", results[0].Content)
	assert.Equal(t, int64(2024), results[0].Metadata["year"])
	assert.Equal(t, []any{"a", "b"}, results[0].Metadata["tags"])
	assert.Nil(t, results[0].Vector)
}
