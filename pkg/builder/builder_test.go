package builder_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hectorkb/pkg/builder"
	"github.com/kadirpekel/hectorkb/pkg/embedder"
	"github.com/kadirpekel/hectorkb/pkg/filter"
	"github.com/kadirpekel/hectorkb/pkg/knowledge"
	"github.com/kadirpekel/hectorkb/pkg/testutils"
	"github.com/kadirpekel/hectorkb/pkg/tool/searchtool"
	"github.com/kadirpekel/hectorkb/pkg/vector"
)

func TestKnowledgeBuilder_EndToEnd(t *testing.T) {
	provider := builder.NewVectorProvider("chromem").MustBuild()

	kb, err := builder.NewKnowledge("company").
		Description("Sales reports").
		WithVectorProvider(provider).
		WithEmbedder(&testutils.Embedder{}).
		WithChunker(knowledge.NewLineChunker(64, 0, nil)).
		Limits(2, 5).
		WithLogger(testutils.QuietLogger()).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "company", kb.Collection())

	defaultLimit, maxLimit := kb.Limits()
	assert.Equal(t, 2, defaultLimit)
	assert.Equal(t, 5, maxLimit)

	testutils.Seed(t, kb, testutils.SalesDocs...)

	search, err := builder.NewSearchTool(kb).
		FiltersFrom(map[string]any{"region": "eu"}).
		WithLogger(testutils.QuietLogger()).
		Build()
	require.NoError(t, err)
	assert.Equal(t, searchtool.NameSearch, search.Name())

	resp, err := search.Run(context.Background(), map[string]any{"query": "quarterly sales"})
	require.NoError(t, err)
	assert.Equal(t, []string{"q2-eu"}, testutils.Names(resp.Documents))
}

func TestKnowledgeBuilder_RequiresComponents(t *testing.T) {
	_, err := builder.NewKnowledge("docs").Build()
	assert.ErrorContains(t, err, "vector provider is required")

	_, err = builder.NewKnowledge("docs").
		WithVectorProvider(builder.NewVectorProvider("").MustBuild()).
		Build()
	assert.ErrorContains(t, err, "embedder is required")
}

func TestKnowledgeBuilder_Panics(t *testing.T) {
	assert.Panics(t, func() { builder.NewKnowledge("") })
	assert.Panics(t, func() { builder.NewKnowledge("docs").WithVectorProvider(nil) })
	assert.Panics(t, func() { builder.NewKnowledge("docs").WithEmbedder(nil) })
	assert.Panics(t, func() { builder.NewKnowledge("docs").ChunkSize(0) })
	assert.Panics(t, func() { builder.NewKnowledge("docs").ChunkOverlap(-1) })
	assert.Panics(t, func() { builder.NewKnowledge("docs").MaxFileSize(-1) })
	assert.Panics(t, func() { builder.NewSearchTool(nil) })
}

func TestSearchToolBuilder_Agentic(t *testing.T) {
	kb := testutils.NewKnowledge(t, "company")

	search, err := builder.NewSearchTool(kb).
		AgenticFilters(true).
		Filters(filter.FromMap(filter.NewMap(filter.P("region", "us")))).
		Name("search_company").
		Build()
	require.NoError(t, err)
	assert.Equal(t, "search_company", search.Name())
	assert.Contains(t, search.Schema()["properties"], "filters")
}

func TestEmbedderBuilder_Config(t *testing.T) {
	cfg := builder.NewEmbedder("openai").
		APIKey("sk-test").
		Dimension(256).
		BatchSize(10).
		Config()
	assert.Equal(t, "text-embedding-3-small", cfg.Model)
	assert.Equal(t, 256, cfg.Dimension)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 30, cfg.Timeout)

	src := &embedder.Config{Provider: embedder.ProviderOllama}
	got := builder.EmbedderFromConfig(src).Model("mxbai-embed-large").Config()
	assert.Equal(t, "mxbai-embed-large", got.Model)
	assert.Empty(t, src.Model)
}

func TestEmbedderBuilder_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := builder.NewEmbedder("openai").Build()
	assert.ErrorContains(t, err, "api_key")

	_, err = builder.NewEmbedder("cohere").Build()
	assert.ErrorContains(t, err, "unsupported embedder provider")
}

func TestVectorProviderBuilder(t *testing.T) {
	dir := t.TempDir()
	p, err := builder.NewVectorProvider("chromem").PersistPath(dir).Build()
	require.NoError(t, err)
	assert.Equal(t, "chromem", p.Name())
	require.NoError(t, p.Close())

	_, err = builder.NewVectorProvider("pinecone").IndexName("docs").Build()
	assert.ErrorContains(t, err, "api_key")

	_, err = builder.NewVectorProvider("qdrant").Build()
	assert.ErrorContains(t, err, "qdrant")

	_, err = builder.NewVectorProvider("milvus").Build()
	assert.Error(t, err)

	assert.Panics(t, func() { builder.NewVectorProvider("qdrant").Port(0) })
}

func TestVectorProviderFromConfig_Copies(t *testing.T) {
	src := &vector.ProviderConfig{Type: vector.ProviderChromem, Chromem: &vector.ChromemConfig{}}
	builder.VectorProviderFromConfig(src).PersistPath("/tmp/elsewhere")
	assert.Empty(t, src.Chromem.PersistPath)
}

func TestMCPServerBuilder(t *testing.T) {
	_, err := builder.NewMCPServer().Build()
	assert.Error(t, err)

	kb := testutils.NewKnowledge(t, "company")
	srv, err := builder.NewMCPServer().
		Name("kb").
		WithTools(builder.NewSearchTool(kb).MustBuild()).
		Build()
	require.NoError(t, err)
	assert.Equal(t, []string{searchtool.NameSearch}, srv.Tools())

	_, err = builder.NewMCPServer().Transport("grpc").WithTools(builder.NewSearchTool(kb).MustBuild()).Build()
	assert.Error(t, err)
}
