package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hectorkb/pkg/config"
)

type fakeS3 struct {
	pages   [][]string
	objects map[string][]byte
	gets    int
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := 0
	if tok := aws.ToString(in.ContinuationToken); tok != "" {
		page, _ = strconv.Atoi(tok)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range f.pages[page] {
		if !strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			continue
		}
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(f.objects[key]))),
			LastModified: aws.Time(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)),
			ETag:         aws.String(`"etag-` + key + `"`),
		})
	}
	if page+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(strconv.Itoa(page + 1))
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets++
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, fmt.Errorf("no such key %s", aws.ToString(in.Key))
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		pages: [][]string{
			{"kb/", "kb/reports/", "kb/reports/q1.txt"},
			{"kb/reports/q2.txt", "kb/recipes/thai.txt"},
		},
		objects: map[string][]byte{
			"kb/reports/q1.txt":   []byte("revenue went up"),
			"kb/reports/q2.txt":   []byte("revenue went down"),
			"kb/recipes/thai.txt": []byte("green curry"),
		},
	}
}

func TestS3Config_ListAndRead(t *testing.T) {
	fake := newFakeS3()
	src := &S3Config{ID: "s3-docs", Name: "S3 Documents", BucketName: "acme", Prefix: "kb", client: fake}
	ctx := context.Background()

	ref := src.Folder("reports")
	assert.Equal(t, Content{SourceID: "s3-docs", Kind: KindFolder, Path: "reports"}, ref)

	objects, err := src.List(ctx, ref)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "kb/reports/q1.txt", objects[0].Path)
	assert.Equal(t, "kb/reports/q2.txt", objects[1].Path)
	assert.Equal(t, "q2.txt", objects[1].Name())
	assert.Equal(t, "etag-kb/reports/q1.txt", objects[0].ETag)
	assert.Equal(t, int64(len("revenue went up")), objects[0].Size)

	data, err := src.Read(ctx, objects[0])
	require.NoError(t, err)
	assert.Equal(t, "revenue went up", string(data))

	all, err := src.List(ctx, src.Folder(""))
	require.NoError(t, err)
	assert.Len(t, all, 3)

	one, err := src.List(ctx, src.File("recipes/thai.txt"))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "kb/recipes/thai.txt", one[0].Path)

	_, err = src.List(ctx, src.File("reports/q3.txt"))
	assert.ErrorContains(t, err, "not found")
}

func TestS3Config_Validate(t *testing.T) {
	assert.NoError(t, (&S3Config{ID: "a", BucketName: "b"}).Validate())
	assert.Error(t, (&S3Config{ID: "a"}).Validate())
	assert.Error(t, (&S3Config{BucketName: "b"}).Validate())
	assert.Error(t, (&S3Config{ID: "a", BucketName: "b", AccessKeyID: "x"}).Validate())
}

const listBucketXML = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>acme-ml-data</Name>
  <Prefix>%s</Prefix>
  <KeyCount>2</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents><Key>training-data/</Key><LastModified>2024-01-02T03:04:05.000Z</LastModified><ETag>"d0"</ETag><Size>0</Size></Contents>
  <Contents><Key>training-data/a.txt</Key><LastModified>2024-01-02T03:04:05.000Z</LastModified><ETag>"d1"</ETag><Size>5</Size></Contents>
  <Contents><Key>training-data/nested/b.txt</Key><LastModified>2024-01-02T03:04:05.000Z</LastModified><ETag>"d2"</ETag><Size>6</Size></Contents>
</ListBucketResult>`

func newGCSServer(t *testing.T) *httptest.Server {
	t.Helper()

	objects := map[string]string{
		"/acme-ml-data/training-data/a.txt":        "alpha",
		"/acme-ml-data/training-data/nested/b.txt": "bravo!",
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("list-type") == "2" {
			w.Header().Set("Content-Type", "application/xml")
			_, _ = fmt.Fprintf(w, listBucketXML, r.URL.Query().Get("prefix"))
			return
		}
		body, ok := objects[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("ETag", `"etag"`)
		w.Header().Set("Last-Modified", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGCSConfig_ListAndRead(t *testing.T) {
	srv := newGCSServer(t)
	src := &GCSConfig{
		ID:            "gcs-data",
		Name:          "GCS Training Data",
		BucketName:    "acme-ml-data",
		Project:       "acme-ml",
		HMACAccessKey: "key",
		HMACSecret:    "secret",
		Endpoint:      srv.URL,
	}
	require.NoError(t, src.Validate())
	ctx := context.Background()

	objects, err := src.List(ctx, src.Folder("training-data/"))
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "training-data/a.txt", objects[0].Path)
	assert.Equal(t, "d1", objects[0].ETag)
	assert.Equal(t, "training-data/nested/b.txt", objects[1].Path)

	data, err := src.Read(ctx, objects[1])
	require.NoError(t, err)
	assert.Equal(t, "bravo!", string(data))

	_, err = src.List(ctx, src.File("training-data/missing.txt"))
	assert.ErrorContains(t, err, "not found")
}

func newSharePointServer(t *testing.T) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tenant-1/oauth2/v2.0/token" {
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			assert.Equal(t, graphScope, r.PostForm.Get("scope"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"access_token":"graph-token","token_type":"Bearer","expires_in":3600}`)
			return
		}

		if r.Header.Get("Authorization") != "Bearer graph-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		file := func(id, name string, size int) map[string]any {
			return map[string]any{
				"id":                   id, "name": name, "size": size, "eTag": id + "-v1",
				"lastModifiedDateTime": "2024-01-02T03:04:05Z",
				"file":                 map[string]any{"mimeType": "text/plain"},
			}
		}

		var body any
		switch r.URL.Path {
		case "/v1.0/sites/acme.sharepoint.com:/sites/marketing":
			body = map[string]any{"id": "site-1"}
		case "/v1.0/sites/site-1/drive/root:/Documents:/children":
			body = map[string]any{
				"value": []any{
					file("item-1", "memo.txt", 4),
					map[string]any{"id": "folder-1", "name": "archive", "folder": map[string]any{"childCount": 1}},
				},
				"@odata.nextLink": srv.URL + "/v1.0/next-page",
			}
		case "/v1.0/next-page":
			body = map[string]any{"value": []any{file("item-2", "plan.txt", 4)}}
		case "/v1.0/sites/site-1/drive/root:/Documents/archive:/children":
			body = map[string]any{"value": []any{file("item-3", "old.txt", 3)}}
		case "/v1.0/sites/site-1/drive/root:/Documents/memo.txt:":
			body = file("item-1", "memo.txt", 4)
		case "/v1.0/sites/site-1/drive/items/item-1/content":
			_, _ = io.WriteString(w, "memo")
			return
		default:
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSharePointConfig_ListAndRead(t *testing.T) {
	srv := newSharePointServer(t)
	src := &SharePointConfig{
		ID:           "sharepoint",
		Name:         "Product Data",
		TenantID:     "tenant-1",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		Hostname:     "acme.sharepoint.com",
		SitePath:     "/sites/marketing",
		GraphURL:     srv.URL + "/v1.0",
		LoginURL:     srv.URL,
	}
	require.NoError(t, src.Validate())
	ctx := context.Background()

	objects, err := src.List(ctx, src.Folder("Documents"))
	require.NoError(t, err)
	paths := make([]string, len(objects))
	for i, o := range objects {
		paths[i] = o.Path
	}
	assert.Equal(t, []string{"Documents/memo.txt", "Documents/plan.txt", "Documents/archive/old.txt"}, paths)

	one, err := src.List(ctx, src.File("Documents/memo.txt"))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "Documents/memo.txt", one[0].Path)
	assert.Equal(t, "item-1-v1", one[0].ETag)

	data, err := src.Read(ctx, one[0])
	require.NoError(t, err)
	assert.Equal(t, "memo", string(data))

	_, err = src.List(ctx, src.File("Documents/missing.txt"))
	assert.Error(t, err)
}

func newGitHubServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))

		switch {
		case r.URL.Path == "/repos/acme/dealer-sync/git/trees/main":
			assert.Equal(t, "1", r.URL.Query().Get("recursive"))
			_, _ = io.WriteString(w, `{"sha":"t1","truncated":false,"tree":[
				{"path":"README.md","type":"blob","sha":"s1","size":5},
				{"path":"docs","type":"tree","sha":"s2"},
				{"path":"docs/setup.md","type":"blob","sha":"s3","size":8},
				{"path":"docs/usage.md","type":"blob","sha":"s4","size":9},
				{"path":"docsextra.md","type":"blob","sha":"s5","size":2}]}`)
		case r.URL.Path == "/repos/acme/dealer-sync/contents/README.md":
			ref := r.URL.Query().Get("ref")
			if r.Header.Get("Accept") == "application/vnd.github.raw" {
				_, _ = io.WriteString(w, "hello from "+ref)
				return
			}
			_, _ = io.WriteString(w, `{"type":"file","path":"README.md","sha":"s1","size":5}`)
		case r.URL.Path == "/repos/acme/dealer-sync/contents/docs":
			_, _ = io.WriteString(w, `{"type":"dir","path":"docs","sha":"s2","size":0}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGitHubConfig_ListAndRead(t *testing.T) {
	srv := newGitHubServer(t)
	src := &GitHubConfig{
		ID:     "dealer-sync",
		Name:   "Dealer Sync",
		Repo:   "acme/dealer-sync",
		Token:  "gh-token",
		Branch: "main",
		APIURL: srv.URL,
	}
	require.NoError(t, src.Validate())
	ctx := context.Background()

	objects, err := src.List(ctx, src.Folder("docs"))
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "docs/setup.md", objects[0].Path)
	assert.Equal(t, "docs/usage.md", objects[1].Path)
	assert.Equal(t, "main", objects[0].Branch)

	ref := src.File("README.md", WithBranch("release"))
	assert.Equal(t, "release", ref.Branch)

	one, err := src.List(ctx, ref)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "release", one[0].Branch)
	assert.Equal(t, "s1", one[0].ETag)

	data, err := src.Read(ctx, one[0])
	require.NoError(t, err)
	assert.Equal(t, "hello from release", string(data))

	capped := one[0]
	capped.MaxSize = 4
	data, err = src.Read(ctx, capped)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = src.List(ctx, src.File("docs"))
	assert.ErrorContains(t, err, "not a file")
}

func TestReadBody_StopsPastMaxSize(t *testing.T) {
	body := strings.Repeat("x", 100)

	data, err := readBody(strings.NewReader(body), 10)
	require.NoError(t, err)
	assert.Len(t, data, 11)

	data, err = readBody(strings.NewReader(body), 0)
	require.NoError(t, err)
	assert.Len(t, data, 100)
}

func TestGitHubConfig_Validate(t *testing.T) {
	assert.NoError(t, (&GitHubConfig{ID: "gh", Repo: "a/b"}).Validate())
	assert.Error(t, (&GitHubConfig{ID: "gh", Repo: "ab"}).Validate())
	assert.Error(t, (&GitHubConfig{ID: "gh", Repo: "a/b/c"}).Validate())
	assert.Error(t, (&GitHubConfig{Repo: "a/b"}).Validate())
}

func TestContent_Validate(t *testing.T) {
	assert.NoError(t, Content{SourceID: "s", Kind: KindFile, Path: "a.txt"}.Validate())
	assert.NoError(t, Content{SourceID: "s", Kind: KindFolder}.Validate())
	assert.Error(t, Content{Kind: KindFile, Path: "a.txt"}.Validate())
	assert.Error(t, Content{SourceID: "s", Kind: KindFile}.Validate())
	assert.Error(t, Content{SourceID: "s", Kind: "blob", Path: "a"}.Validate())
}

func TestRegistry(t *testing.T) {
	s3src := &S3Config{ID: "s3-docs", BucketName: "acme"}
	gh := &GitHubConfig{ID: "dealer-sync", Repo: "acme/dealer-sync"}

	r, err := NewRegistry(s3src, gh)
	require.NoError(t, err)

	assert.Error(t, r.Register(&S3Config{ID: "s3-docs", BucketName: "other"}))
	assert.Error(t, r.Register(&S3Config{ID: "broken"}))

	got, err := r.Resolve(gh.File("README.md"))
	require.NoError(t, err)
	assert.Same(t, gh, got)

	_, err = r.Resolve(Content{SourceID: "nope", Kind: KindFolder})
	assert.ErrorIs(t, err, ErrUnknownSource)
	assert.ErrorContains(t, err, "dealer-sync")

	_, err = r.Resolve(Content{SourceID: "s3-docs", Kind: KindFile})
	assert.Error(t, err)

	ids := []string{}
	for _, s := range r.List() {
		ids = append(ids, s.SourceID())
	}
	assert.Equal(t, []string{"dealer-sync", "s3-docs"}, ids)

	var empty *Registry
	_, ok := empty.Get("x")
	assert.False(t, ok)
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfgs := []*config.ContentSourceConfig{
		{Type: config.SourceS3, ID: "s3-docs", Name: "S3 Documents", BucketName: "acme-company-docs"},
		{Type: config.SourceGCS, ID: "gcs-data", BucketName: "acme-ml-data", Project: "acme-ml"},
		{Type: config.SourceSharePoint, ID: "sharepoint", TenantID: "t", ClientID: "c", ClientSecret: "s", Hostname: "h"},
		{Type: config.SourceGitHub, ID: "dealer-sync", Repo: "acme/dealer-sync", Branch: "main"},
	}

	r, err := NewRegistryFromConfig(cfgs)
	require.NoError(t, err)

	kinds := map[string]string{}
	for _, s := range r.List() {
		kinds[s.SourceID()] = s.Type()
	}
	assert.Equal(t, map[string]string{
		"s3-docs":     "s3",
		"gcs-data":    "gcs",
		"sharepoint":  "sharepoint",
		"dealer-sync": "github",
	}, kinds)

	s, ok := r.Get("s3-docs")
	require.True(t, ok)
	assert.Equal(t, "S3 Documents", s.SourceName())

	_, err = NewRegistryFromConfig([]*config.ContentSourceConfig{{Type: "dropbox", ID: "x"}})
	assert.Error(t, err)

	_, err = NewRegistryFromConfig(append(cfgs, cfgs[0]))
	assert.ErrorContains(t, err, "already registered")
}
