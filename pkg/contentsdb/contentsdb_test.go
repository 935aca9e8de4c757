package contentsdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hectorkb/pkg/config"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()

	pool := NewPool(nil)
	t.Cleanup(func() { _ = pool.Close() })

	store, err := NewSQLStoreFromConfig(context.Background(), pool, &config.DatabaseConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "contents.db"),
	}, "")
	require.NoError(t, err)
	return store
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	}
}

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	records := []*Content{
		{ID: "c1", Knowledge: "kb", Name: "report.pdf", Hash: "h1", Status: StatusCompleted,
			Metadata: map[string]any{"region": "us", "year": "2024"}, CreatedAt: base},
		{ID: "c2", Knowledge: "kb", Name: "notes.md", Hash: "h2", Status: StatusFailed,
			StatusMessage: "reader failed", Metadata: map[string]any{"team": "sales"}, CreatedAt: base.Add(time.Minute)},
		{ID: "c3", Knowledge: "kb", Name: "faq.txt", Hash: "h3", Status: StatusCompleted, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "o1", Knowledge: "other", Name: "x", Hash: "h1", Status: StatusCompleted,
			Metadata: map[string]any{"secret": "yes"}, CreatedAt: base},
	}
	for _, r := range records {
		require.NoError(t, s.Upsert(ctx, r))
	}
}

func TestStore_GetAndHash(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()

			got, err := s.Get(ctx, "kb", "c2")
			require.NoError(t, err)
			assert.Equal(t, "notes.md", got.Name)
			assert.Equal(t, StatusFailed, got.Status)
			assert.Equal(t, "reader failed", got.StatusMessage)
			assert.Equal(t, "sales", got.Metadata["team"])

			_, err = s.Get(ctx, "kb", "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.Get(ctx, "other", "c1")
			assert.ErrorIs(t, err, ErrNotFound)

			byHash, err := s.GetByHash(ctx, "kb", "h1")
			require.NoError(t, err)
			assert.Equal(t, "c1", byHash.ID)

			_, err = s.GetByHash(ctx, "kb", "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_UpsertKeepsCreatedAt(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()

			first, err := s.Get(ctx, "kb", "c1")
			require.NoError(t, err)

			require.NoError(t, s.Upsert(ctx, &Content{ID: "c1", Knowledge: "kb", Name: "report-v2.pdf", Hash: "h9", Status: StatusCompleted, ChunkCount: 7}))

			got, err := s.Get(ctx, "kb", "c1")
			require.NoError(t, err)
			assert.Equal(t, "report-v2.pdf", got.Name)
			assert.Equal(t, 7, got.ChunkCount)
			assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
			assert.False(t, got.UpdatedAt.Before(first.UpdatedAt))
		})
	}
}

func TestStore_List(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()

			items, total, err := s.List(ctx, "kb", ListOptions{})
			require.NoError(t, err)
			assert.Equal(t, 3, total)
			assert.Equal(t, []string{"c1", "c2", "c3"}, ids(items))

			items, total, err = s.List(ctx, "kb", ListOptions{Limit: 1, Offset: 1})
			require.NoError(t, err)
			assert.Equal(t, 3, total)
			assert.Equal(t, []string{"c2"}, ids(items))

			items, total, err = s.List(ctx, "kb", ListOptions{Offset: 2})
			require.NoError(t, err)
			assert.Equal(t, 3, total)
			assert.Equal(t, []string{"c3"}, ids(items))

			items, total, err = s.List(ctx, "kb", ListOptions{Status: StatusCompleted})
			require.NoError(t, err)
			assert.Equal(t, 2, total)
			assert.Equal(t, []string{"c1", "c3"}, ids(items))

			items, total, err = s.List(ctx, "empty", ListOptions{})
			require.NoError(t, err)
			assert.Zero(t, total)
			assert.Empty(t, items)
		})
	}
}

func TestStore_MetadataKeysAreScoped(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()

			keys, err := s.MetadataKeys(ctx, "kb")
			require.NoError(t, err)
			assert.Equal(t, []string{"region", "team", "year"}, keys)

			keys, err = s.MetadataKeys(ctx, "other")
			require.NoError(t, err)
			assert.Equal(t, []string{"secret"}, keys)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			seed(t, s)
			ctx := context.Background()

			require.NoError(t, s.Delete(ctx, "kb", "c2"))
			assert.ErrorIs(t, s.Delete(ctx, "kb", "c2"), ErrNotFound)

			keys, err := s.MetadataKeys(ctx, "kb")
			require.NoError(t, err)
			assert.Equal(t, []string{"region", "year"}, keys)

			require.NoError(t, s.DeleteAll(ctx, "kb"))
			_, total, err := s.List(ctx, "kb", ListOptions{})
			require.NoError(t, err)
			assert.Zero(t, total)

			_, total, err = s.List(ctx, "other", ListOptions{})
			require.NoError(t, err)
			assert.Equal(t, 1, total)
		})
	}
}

func TestSQLStore_Rebind(t *testing.T) {
	s := &SQLStore{dialect: "postgres"}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", s.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	s.dialect = "mysql"
	assert.Equal(t, "a = ?", s.rebind("a = ?"))

	_, err := NewSQLStore(nil, "sqlite", "")
	assert.Error(t, err)
}

func ids(items []*Content) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.ID
	}
	return out
}

func TestPool_SharesConnections(t *testing.T) {
	pool := NewPool(nil)
	defer func() { assert.NoError(t, pool.Close()) }()

	cfg := &config.DatabaseConfig{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "shared.db")}
	cfg.SetDefaults()

	first, err := pool.Open(context.Background(), cfg)
	require.NoError(t, err)
	second, err := pool.Open(context.Background(), cfg)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, pool.Len())

	a, err := NewSQLStoreFromConfig(context.Background(), pool, cfg, "kb_a")
	require.NoError(t, err)
	b, err := NewSQLStoreFromConfig(context.Background(), pool, cfg, "kb_b")
	require.NoError(t, err)
	require.NoError(t, a.Upsert(context.Background(), &Content{ID: "c1", Knowledge: "kb", Name: "a", Hash: "h", Status: StatusCompleted}))
	_, err = b.Get(context.Background(), "kb", "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}
