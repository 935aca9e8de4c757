package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	for in, want := range map[string]Type{
		"":          TypeFile,
		"file":      TypeFile,
		"Consul":    TypeConsul,
		"etcd":      TypeEtcd,
		"zk":        TypeZookeeper,
		"zookeeper": TypeZookeeper,
	} {
		got, err := ParseType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseType("vault")
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.False(t, TypeFile.IsRemote())
	assert.True(t, TypeEtcd.IsRemote())
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hectorkb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: acme\n"), 0o600))

	p, err := New(ProviderConfig{Path: path})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, TypeFile, p.Type())
	data, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "name: acme\n", string(data))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(ProviderConfig{Type: TypeFile})
	assert.ErrorContains(t, err, "config path is required")

	_, err = New(ProviderConfig{Type: "vault", Path: "kb"})
	assert.ErrorIs(t, err, ErrUnknownType)

	t.Setenv("ETCD_ENDPOINTS", "")
	_, err = New(ProviderConfig{Type: TypeEtcd, Path: "/hectorkb/config"})
	assert.ErrorContains(t, err, "etcd endpoints are required")
}

func TestEnvEndpoints(t *testing.T) {
	t.Setenv("ZOOKEEPER_ENDPOINTS", "zk1:2181, zk2:2181,,")
	assert.Equal(t, []string{"zk1:2181", "zk2:2181"}, envEndpoints("ZOOKEEPER_ENDPOINTS"))
	assert.Nil(t, envEndpoints(""))
}

func TestFileProvider_PutIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hectorkb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: old\n"), 0o640))

	p, err := NewFileProvider(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	var pub Publisher = p
	require.NoError(t, pub.Put(context.Background(), []byte("name: new\n")))

	data, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "name: new\n", string(data))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), fi.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is cleaned up")
}
