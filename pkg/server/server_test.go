package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hectorkb/pkg/auth"
	"github.com/kadirpekel/hectorkb/pkg/config"
	"github.com/kadirpekel/hectorkb/pkg/embedder"
	"github.com/kadirpekel/hectorkb/pkg/knowledge"
	"github.com/kadirpekel/hectorkb/pkg/knowledge/remote"
	"github.com/kadirpekel/hectorkb/pkg/runtime"
	"github.com/kadirpekel/hectorkb/pkg/testutils"
)

func fakeEmbedders(*embedder.Config) (embedder.Embedder, error) {
	return &testutils.Embedder{}, nil
}

func runtimeOptions() []runtime.Option {
	return []runtime.Option{
		runtime.WithEmbedderFactory(fakeEmbedders),
		runtime.WithLogger(testutils.QuietLogger()),
	}
}

func kbConfig(description string) *config.KnowledgeConfig {
	kc := &config.KnowledgeConfig{
		Description: description,
		Chunking:    config.ChunkingConfig{Encoding: knowledge.EncodingApprox},
	}
	kc.Search.AgenticFilters = true
	kc.Search.Filters = map[string]any{"data_type": "sales"}
	return kc
}

func testConfig(mutate ...func(*config.Config)) *config.Config {
	cfg := &config.Config{
		Name:      "test",
		Knowledge: map[string]*config.KnowledgeConfig{"company": kbConfig("Company documents")},
	}
	for _, m := range mutate {
		m(cfg)
	}
	return cfg
}

func newHTTPServer(t *testing.T, cfg *config.Config, opts ...HTTPServerOption) *HTTPServer {
	t.Helper()

	rt, err := runtime.New(context.Background(), cfg, runtimeOptions()...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, rt.Close()) })

	s, err := NewHTTPServer(rt, opts...)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func seed(t *testing.T, h http.Handler, token string) {
	t.Helper()
	for _, d := range testutils.SalesDocs {
		rec := do(t, h, http.MethodPost, "/knowledge/company/content", knowledge.InsertRequest{
			Name:     d.Name,
			Text:     d.Text,
			Metadata: d.Metadata,
		}, token)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func TestHTTP_Health(t *testing.T) {
	s := newHTTPServer(t, testConfig(), WithVersion("1.2.3"))

	rec := do(t, s, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, "1.2.3", got["version"])
	assert.Equal(t, float64(1), got["knowledge"])
}

func TestHTTP_Knowledge(t *testing.T) {
	s := newHTTPServer(t, testConfig())

	rec := do(t, s, http.MethodGet, "/knowledge", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[map[string][]KnowledgeInfo](t, rec)["knowledge"]
	require.Len(t, list, 1)
	assert.Equal(t, "company", list[0].Name)
	assert.Equal(t, "Company documents", list[0].Description)
	assert.True(t, list[0].AgenticFilters)
	assert.Equal(t, []string{"search_knowledge_base_with_filters"}, list[0].Tools)
	assert.Nil(t, list[0].Stats)

	rec = do(t, s, http.MethodGet, "/knowledge/company", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[KnowledgeInfo](t, rec)
	require.NotNil(t, info.Stats)
	assert.Empty(t, info.Sources)

	rec = do(t, s, http.MethodGet, "/knowledge/company/sources", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/knowledge/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing")
}

func TestHTTP_Search(t *testing.T) {
	s := newHTTPServer(t, testConfig())
	seed(t, s, "")

	rec := do(t, s, http.MethodGet, "/knowledge/company/filters", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	keys := decode[struct {
		Knowledge string   `json:"knowledge"`
		Keys      []string `json:"keys"`
	}](t, rec)
	assert.Equal(t, "company", keys.Knowledge)
	assert.Subset(t, keys.Keys, []string{"data_type", "quarter", "region"})

	rec = do(t, s, http.MethodPost, "/knowledge/company/search", map[string]any{
		"query":   "quarterly report",
		"filters": map[string]any{"region": "us", "color": "red"},
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[struct {
		Query     string               `json:"query"`
		Total     int                  `json:"total"`
		Documents []knowledge.Document `json:"documents"`
		Invalid   []string             `json:"invalid_filter_keys"`
	}](t, rec)
	assert.Equal(t, "quarterly report", got.Query)
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, []string{"q1-us"}, testutils.Names(got.Documents))
	assert.Equal(t, []string{"color"}, got.Invalid)

	// configured filters apply without request filters
	rec = do(t, s, http.MethodPost, "/knowledge/company/search", map[string]any{"query": "handbook vacation"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, d := range decode[searchDocs](t, rec).Documents {
		assert.NotEqual(t, "handbook", d.Name)
	}
}

type searchDocs struct {
	Documents []knowledge.Document `json:"documents"`
}

func TestHTTP_SearchBadRequests(t *testing.T) {
	s := newHTTPServer(t, testConfig())

	tests := []struct {
		name string
		body string
	}{
		{"empty_query", `{"query":"  "}`},
		{"malformed", `{"query":`},
		{"unknown_field", `{"query":"x","top_k":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/knowledge/company/search", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHTTP_ContentLifecycle(t *testing.T) {
	s := newHTTPServer(t, testConfig())
	seed(t, s, "")

	rec := do(t, s, http.MethodPost, "/knowledge/company/content", knowledge.InsertRequest{
		Name:         "q1-us",
		Text:         testutils.SalesDocs[0].Text,
		Metadata:     testutils.SalesDocs[0].Metadata,
		SkipIfExists: true,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[knowledge.InsertResult](t, rec).Skipped)

	rec = do(t, s, http.MethodGet, "/knowledge/company/content?limit=2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[ContentList](t, rec)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Contents, 2)

	id := page.Contents[0].ID
	rec = do(t, s, http.MethodGet, "/knowledge/company/content/"+id, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodDelete, "/knowledge/company/content/"+id, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodGet, "/knowledge/company/content/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, s, http.MethodDelete, "/knowledge/company/content/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodDelete, "/knowledge/company/content", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, s, http.MethodGet, "/knowledge/company/content", nil, "")
	assert.Equal(t, 0, decode[ContentList](t, rec).Total)

	rec = do(t, s, http.MethodGet, "/knowledge/company/content?offset=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_InsertRejections(t *testing.T) {
	s := newHTTPServer(t, testConfig())

	tests := []struct {
		name string
		req  knowledge.InsertRequest
	}{
		{"path", knowledge.InsertRequest{Path: "/etc"}},
		{"no_source", knowledge.InsertRequest{Name: "empty"}},
		{"incomplete_remote", knowledge.InsertRequest{RemoteContent: &remote.Content{SourceID: "docs"}}},
		{"multiple_sources", knowledge.InsertRequest{Text: "a", URL: "https://example.com"}},
		{"unknown_remote", knowledge.InsertRequest{RemoteContent: &remote.Content{SourceID: "nope", Kind: remote.KindFile, Path: "a.txt"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/knowledge/company/content", tt.req, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestHTTP_InsertURLPolicy(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "Internal sales notes for the quarter.")
	}))
	defer site.Close()
	target := site.URL + "/notes.txt"

	tests := []struct {
		name   string
		fetch  config.URLFetchConfig
		status int
	}{
		{"private_denied_by_default", config.URLFetchConfig{}, http.StatusForbidden},
		{"private_allowed", config.URLFetchConfig{AllowPrivate: true}, http.StatusCreated},
		{"denied_host", config.URLFetchConfig{AllowPrivate: true, DeniedHosts: []string{"127.0.0.1"}}, http.StatusForbidden},
		{"not_in_allow_list", config.URLFetchConfig{AllowPrivate: true, AllowedHosts: []string{"*.example.com"}}, http.StatusForbidden},
		{"in_allow_list", config.URLFetchConfig{AllowPrivate: true, AllowedHosts: []string{"127.0.0.1"}}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newHTTPServer(t, testConfig(func(c *config.Config) { c.Server.URLFetch = tt.fetch }))
			rec := do(t, s, http.MethodPost, "/knowledge/company/content", knowledge.InsertRequest{URL: target}, "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

type staticValidator map[string]*auth.Claims

func (v staticValidator) ValidateToken(_ context.Context, token string) (*auth.Claims, error) {
	if c, ok := v[token]; ok {
		return c, nil
	}
	return nil, auth.ErrInvalidToken
}

func TestHTTP_Auth(t *testing.T) {
	tokens := staticValidator{
		"reader": {Subject: "r", Role: "viewer"},
		"editor": {Subject: "e", Role: "editor"},
	}
	cfg := testConfig(func(c *config.Config) {
		c.Server.Auth = &config.AuthConfig{WriteRoles: []string{"editor"}}
	})
	s := newHTTPServer(t, cfg, WithAuthValidator(tokens))

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/knowledge", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/knowledge", nil, "forged").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/knowledge", nil, "reader").Code)

	insert := knowledge.InsertRequest{Name: "doc", Text: "some text"}
	assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodPost, "/knowledge/company/content", insert, "reader").Code)
	assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodDelete, "/knowledge/company/content", nil, "reader").Code)
	assert.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/knowledge/company/content", insert, "editor").Code)

	rec := do(t, s, http.MethodPost, "/knowledge/company/search", map[string]any{"query": "text"}, "reader")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTP_CORS(t *testing.T) {
	s := newHTTPServer(t, testConfig(func(c *config.Config) {
		c.Server.CORSOrigins = []string{"https://app.example"}
	}))

	req := httptest.NewRequest(http.MethodOptions, "/knowledge/company/search", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHTTP_SchemaAndMetrics(t *testing.T) {
	s := newHTTPServer(t, testConfig(func(c *config.Config) {
		c.Observability.Metrics.Enabled = true
	}))

	rec := do(t, s, http.MethodGet, "/schema", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, json.Valid(rec.Body.Bytes()))

	rec = do(t, s, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hectorkb_http_requests")
}

func TestHTTP_MetricsDisabled(t *testing.T) {
	s := newHTTPServer(t, testConfig())
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/metrics", nil, "").Code)
}

func TestHTTP_MCP(t *testing.T) {
	s := newHTTPServer(t, testConfig(func(c *config.Config) {
		c.Server.MCP.Enabled = true
	}), WithVersion("9.9.9"))

	rec := do(t, s, http.MethodPost, "/mcp", map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1"},
		},
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "serverInfo")
	assert.Contains(t, rec.Body.String(), "9.9.9")

	plain := newHTTPServer(t, testConfig())
	assert.Equal(t, http.StatusNotFound, do(t, plain, http.MethodPost, "/mcp", map[string]any{}, "").Code)
}

func TestServer_ApplySwapsRuntime(t *testing.T) {
	ctx := context.Background()
	s, err := New(Options{Config: testConfig(), RuntimeOptions: runtimeOptions()})
	require.NoError(t, err)
	require.NoError(t, s.initialize(ctx))
	t.Cleanup(func() { assert.NoError(t, s.closeRuntime()) })

	old := s.Runtime()
	h := s.Handler()
	seed(t, h, "")

	next := testConfig(func(c *config.Config) {
		c.Knowledge["support"] = kbConfig("Support tickets")
	})
	require.NoError(t, s.apply(ctx, next))

	assert.NotSame(t, old, s.Runtime())
	assert.Same(t, s.Runtime(), h.Runtime())
	assert.Equal(t, []string{"company", "support"}, s.Runtime().KnowledgeNames())

	rec := do(t, h, http.MethodGet, "/knowledge/support", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// a broken config leaves the running runtime alone
	broken := testConfig(func(c *config.Config) {
		c.Knowledge["bad"] = &config.KnowledgeConfig{Embedder: "missing"}
	})
	assert.Error(t, s.apply(ctx, broken))
	assert.Equal(t, []string{"company", "support"}, s.Runtime().KnowledgeNames())
}

func TestServer_ReloadKeepsLatest(t *testing.T) {
	s, err := New(Options{Config: testConfig()})
	require.NoError(t, err)

	first, second := testConfig(), testConfig()
	s.Reload(first)
	s.Reload(nil)
	s.Reload(second)

	select {
	case got := <-s.reloadChan:
		assert.Same(t, second, got)
	default:
		t.Fatal("no reload pending")
	}
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestServer_StartStop(t *testing.T) {
	port := freePort(t)
	cfg := testConfig(func(c *config.Config) {
		c.Server.Host = "127.0.0.1"
		c.Server.Port = port
	})
	s, err := New(Options{Config: cfg, RuntimeOptions: runtimeOptions()})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Reload(testConfig(func(c *config.Config) {
		c.Server.Host = "127.0.0.1"
		c.Server.Port = port
		c.Knowledge["support"] = kbConfig("Support tickets")
	}))
	assert.Eventually(t, func() bool {
		rt := s.Runtime()
		return rt != nil && len(rt.KnowledgeNames()) == 2
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Wait())
	assert.Nil(t, s.Runtime())
}

func TestHTTP_RateLimit(t *testing.T) {
	tokens := staticValidator{
		"a": {Subject: "alice", Role: "editor"},
		"b": {Subject: "bob", Role: "editor"},
	}
	cfg := testConfig(func(c *config.Config) {
		c.Server.Auth = &config.AuthConfig{}
		c.Server.RateLimit = &config.RateLimitConfig{
			Enabled: true,
			Limits: []config.RateLimitRule{
				{Scope: "search", Window: "hour", Limit: 2},
				{Scope: "write", Window: "hour", Limit: 1},
			},
		}
	})
	s := newHTTPServer(t, cfg, WithAuthValidator(tokens))

	query := map[string]any{"query": "report"}
	for range 2 {
		rec := do(t, s, http.MethodPost, "/knowledge/company/search", query, "a")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := do(t, s, http.MethodPost, "/knowledge/company/search", query, "a")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")

	// other callers and read routes are unaffected
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/knowledge/company/search", query, "b").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/knowledge/company/content", nil, "a").Code)

	insert := knowledge.InsertRequest{Name: "doc", Text: "some text"}
	assert.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/knowledge/company/content", insert, "a").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodDelete, "/knowledge/company/content", nil, "a").Code)

	// counters survive a reload
	rt, err := runtime.New(context.Background(), cfg, runtimeOptions()...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	require.NoError(t, s.SetRuntime(rt))
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodPost, "/knowledge/company/search", query, "a").Code)
}
