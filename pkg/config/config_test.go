package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hectorkb/pkg/config/provider"
	"github.com/kadirpekel/hectorkb/pkg/embedder"
	"github.com/kadirpekel/hectorkb/pkg/filter"
	"github.com/kadirpekel/hectorkb/pkg/vector"
)

const sampleConfig = `
name: acme
server:
  port: 9090
  read_timeout: 15s
databases:
  main:
    driver: sqlite
    database: ${HECTORKB_TEST_DB:-contents.db}
embedders:
  local:
    provider: ollama
vector_stores:
  vectors:
    type: chromem
knowledge:
  company:
    description: Company documents
    contents_db: main
    search:
      agentic_filters: true
      filters:
        region: us
    content_sources:
      - type: s3
        id: s3-docs
        bucket_name: acme-company-docs
      - type: github
        id: dealer-sync
        repo: acme/dealers
        token: ${HECTORKB_TEST_TOKEN}
`

func TestParseConfig(t *testing.T) {
	t.Setenv("HECTORKB_TEST_TOKEN", "ghp_secret")

	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "acme", cfg.Name)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "contents.db", cfg.Databases["main"].Database)

	kb := cfg.Knowledge["company"]
	require.NotNil(t, kb)
	assert.Equal(t, "vectors", kb.VectorStore)
	assert.Equal(t, "local", kb.Embedder)
	assert.Equal(t, "company", kb.Collection)
	assert.Equal(t, 10, kb.Search.DefaultLimit)
	assert.Equal(t, 512, kb.Chunking.Size)

	require.Len(t, kb.ContentSources, 2)
	assert.Equal(t, "us-east-1", kb.ContentSources[0].Region)
	assert.Equal(t, "s3-docs", kb.ContentSources[0].Name)
	assert.Equal(t, "ghp_secret", kb.ContentSources[1].Token)
	assert.Equal(t, "main", kb.ContentSources[1].Branch)

	set := kb.Search.FilterSet(nil)
	assert.Equal(t, filter.KindMap, set.Kind())
	assert.Equal(t, []string{"region"}, set.Keys())
}

func TestConfig_SetDefaultsCreatesLocalResources(t *testing.T) {
	cfg := &Config{Knowledge: map[string]*KnowledgeConfig{"docs": nil}}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, embedder.ProviderOllama, cfg.Embedders[DefaultName].Provider)
	assert.Equal(t, vector.ProviderChromem, cfg.VectorStores[DefaultName].Type)
	assert.Equal(t, DefaultName, cfg.Knowledge["docs"].Embedder)
	assert.Equal(t, []string{"docs"}, cfg.KnowledgeNames())
	assert.Equal(t, "hectorkb", cfg.Observability.Tracing.ServiceName)
}

func TestConfig_ValidateReferences(t *testing.T) {
	tests := []struct {
		name string
		kb   *KnowledgeConfig
		want string
	}{
		{"unknown_vector_store", &KnowledgeConfig{VectorStore: "missing"}, `vector_store "missing" not found`},
		{"unknown_embedder", &KnowledgeConfig{Embedder: "missing"}, `embedder "missing" not found`},
		{"unknown_contents_db", &KnowledgeConfig{ContentsDB: "missing"}, `contents_db "missing" not found`},
		{"duplicate_source", &KnowledgeConfig{ContentSources: []*ContentSourceConfig{
			{Type: SourceGitHub, ID: "gh", Repo: "a/b"},
			{Type: SourceGitHub, ID: "gh", Repo: "a/c"},
		}}, `duplicate id "gh"`},
		{"bad_source_type", &KnowledgeConfig{ContentSources: []*ContentSourceConfig{
			{Type: "ftp", ID: "x"},
		}}, "unsupported content source type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Knowledge: map[string]*KnowledgeConfig{"kb": tt.kb}}
			cfg.SetDefaults()
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestContentSourceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		src     ContentSourceConfig
		wantErr bool
	}{
		{"s3", ContentSourceConfig{Type: SourceS3, ID: "s3", BucketName: "b"}, false},
		{"s3_half_credentials", ContentSourceConfig{Type: SourceS3, ID: "s3", BucketName: "b", AccessKeyID: "k"}, true},
		{"gcs_missing_bucket", ContentSourceConfig{Type: SourceGCS, ID: "gcs"}, true},
		{"sharepoint", ContentSourceConfig{Type: SourceSharePoint, ID: "sp", TenantID: "t", ClientID: "c", ClientSecret: "s", Hostname: "acme.sharepoint.com"}, false},
		{"sharepoint_missing_secret", ContentSourceConfig{Type: SourceSharePoint, ID: "sp", TenantID: "t", ClientID: "c", Hostname: "h"}, true},
		{"github", ContentSourceConfig{Type: SourceGitHub, ID: "gh", Repo: "a/b"}, false},
		{"bad_id", ContentSourceConfig{Type: SourceGitHub, ID: "has space", Repo: "a/b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.src.SetDefaults()
			err := tt.src.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("HECTORKB_A", "alpha")
	t.Setenv("HECTORKB_EMPTY", "")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${HECTORKB_A}", "alpha"},
		{"$HECTORKB_A/x", "alpha/x"},
		{"${HECTORKB_UNSET:-fallback}", "fallback"},
		{"${HECTORKB_EMPTY:-fallback}", "fallback"},
		{"${HECTORKB_A:-fallback}", "alpha"},
		{"${HECTORKB_UNSET}", ""},
		{"a-${HECTORKB_A}-b", "a-alpha-b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandEnv(tt.in), tt.in)
	}

	got := ExpandEnvVarsInData(map[string]any{
		"list": []any{"${HECTORKB_A}", 3},
		"nested": map[string]any{
			"key": "$HECTORKB_A",
		},
	})
	assert.Equal(t, map[string]any{
		"list":   []any{"alpha", 3},
		"nested": map[string]any{"key": "alpha"},
	}, got)
}

func TestValidateConfigBytes(t *testing.T) {
	result, err := ValidateConfigBytes([]byte(`
server:
  prot: 8080
knowledge:
  docs:
    serach: {}
`))
	require.NoError(t, err)
	assert.False(t, result.Valid())
	assert.Contains(t, result.UnknownFields, "server.prot")
	assert.Contains(t, result.FormatErrors(), "unknown fields")

	result, err = ValidateConfigBytes([]byte(sampleConfig))
	require.NoError(t, err)
	assert.True(t, result.Valid(), result.FormatErrors())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hectorkb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("knowledge:\n  docs: {}\n"), 0o600))

	cfg, loader, err := LoadConfigFile(context.Background(), path, WithStrict(true))
	require.NoError(t, err)
	defer loader.Close()

	assert.Contains(t, cfg.Knowledge, "docs")

	require.NoError(t, os.WriteFile(path, []byte("knowledge:\n  docs:\n    bogus: 1\n"), 0o600))
	_, err = loader.Load(context.Background())
	assert.Error(t, err)

	_, _, err = LoadConfigFile(context.Background(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoader_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hectorkb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: first\n"), 0o600))

	reloaded := make(chan *Config, 1)
	_, loader, err := LoadConfigFile(context.Background(), path)
	require.NoError(t, err)
	loader.onChange = func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loader.Watch(ctx) }()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("name: second\n"), 0o600)
		select {
		case cfg := <-reloaded:
			return cfg.Name == "second"
		default:
			return false
		}
	}, 5*time.Second, 200*time.Millisecond)
}

func TestSchema(t *testing.T) {
	schema := Schema()
	require.NotNil(t, schema.Properties)

	_, ok := schema.Properties.Get("knowledge")
	assert.True(t, ok)
	_, ok = schema.Properties.Get("vector_stores")
	assert.True(t, ok)

	data, err := SchemaJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), "content_sources")
}

func TestDatabaseConfig_ConnString(t *testing.T) {
	pg := &DatabaseConfig{Driver: DriverPostgres, Host: "db", Database: "contents", Username: "kb", Password: "secret"}
	pg.SetDefaults()
	require.NoError(t, pg.Validate())
	assert.Equal(t, "postgres://kb:secret@db:5432/contents?sslmode=disable", pg.ConnString())
	assert.Equal(t, "postgres", pg.DriverName())

	my := &DatabaseConfig{Driver: DriverMySQL, Host: "db", Database: "contents", Username: "kb", Password: "secret"}
	my.SetDefaults()
	assert.True(t, strings.HasPrefix(my.ConnString(), "kb:secret@tcp(db:3306)/contents"), my.ConnString())

	lite := &DatabaseConfig{Driver: "sqlite3", Database: "contents.db"}
	lite.SetDefaults()
	assert.Equal(t, DriverSQLite, lite.Dialect())
	assert.Equal(t, "sqlite3", lite.DriverName())
	assert.Equal(t, "contents.db?_busy_timeout=10000&_journal_mode=WAL", lite.ConnString())

	raw := &DatabaseConfig{Driver: DriverPostgres, DSN: "postgres://elsewhere/kb"}
	assert.NoError(t, raw.Validate())
	assert.Equal(t, "postgres://elsewhere/kb", raw.ConnString())
}

func TestDatabaseConfig_ValidateReportsAll(t *testing.T) {
	err := (&DatabaseConfig{Driver: DriverPostgres, MaxConns: -1}).Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "database is required")
	assert.ErrorContains(t, err, "host is required for postgres")
	assert.ErrorContains(t, err, "max_conns must be non-negative")

	assert.ErrorContains(t, (&DatabaseConfig{Driver: "oracle", Database: "x"}).Validate(), "invalid driver")
}

type fakeProvider struct {
	current []byte
	changes chan struct{}
}

func (p *fakeProvider) Type() provider.Type { return "fake" }

func (p *fakeProvider) Load(context.Context) ([]byte, error) { return p.current, nil }

func (p *fakeProvider) Watch(context.Context) (<-chan struct{}, error) { return p.changes, nil }

func (p *fakeProvider) Close() error { return nil }

func TestLoader_ReloadSkipsUnchangedAndInvalid(t *testing.T) {
	p := &fakeProvider{current: []byte("name: first\n"), changes: make(chan struct{})}
	var got []string
	l := NewLoader(p, WithOnChange(func(cfg *Config) { got = append(got, cfg.Name) }),
		WithLoaderLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	cfg, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", cfg.Name)

	l.reload(context.Background())
	assert.Empty(t, got)

	p.current = []byte("knowledge:\n  docs:\n    embedder: missing\n")
	l.reload(context.Background())
	assert.Empty(t, got)

	p.current = []byte("name: second\n")
	l.reload(context.Background())
	assert.Equal(t, []string{"second"}, got)
}

func TestParseBytes(t *testing.T) {
	m, err := parseBytes([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, m)

	m, err = parseBytes([]byte(`{"name": "acme"}`))
	require.NoError(t, err)
	assert.Equal(t, "acme", m["name"])

	_, err = parseBytes([]byte("name: [unclosed"))
	assert.Error(t, err)
}

func TestAuthConfig_Validate(t *testing.T) {
	off := &AuthConfig{}
	assert.NoError(t, off.Validate())
	assert.True(t, off.IsRequireAuth())

	on := &AuthConfig{Enabled: true, Issuer: "https://issuer"}
	on.SetDefaults()
	err := on.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwks_url")
	assert.Contains(t, err.Error(), "auth.audience")
	assert.NotContains(t, err.Error(), "auth.issuer")
	assert.Equal(t, []string{"/health", "/metrics"}, on.ExcludedPaths)

	on.JWKSURL, on.Audience = "https://issuer/jwks", "kb"
	assert.NoError(t, on.Validate())
	assert.True(t, on.IsEnabled())

	on.RefreshInterval = time.Second
	assert.ErrorContains(t, on.Validate(), "refresh_interval")

	assert.False(t, (&AuthConfig{Optional: true}).IsRequireAuth())
}

func TestURLFetchConfig_Validate(t *testing.T) {
	assert.NoError(t, (&URLFetchConfig{}).Validate())
	assert.NoError(t, (&URLFetchConfig{AllowedHosts: []string{"*.example.com"}, DeniedHosts: []string{"internal.example.com"}}).Validate())

	var s ServerConfig
	s.SetDefaults()
	s.URLFetch.DeniedHosts = []string{" "}
	assert.ErrorContains(t, s.Validate(), "url_fetch")
}
