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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/hectorkb/pkg/contentsdb"
	"github.com/kadirpekel/hectorkb/pkg/filter"
	"github.com/kadirpekel/hectorkb/pkg/httpclient"
	"github.com/kadirpekel/hectorkb/pkg/knowledge/remote"
	"github.com/kadirpekel/hectorkb/pkg/observability"
)

// InsertRequest adds content to a knowledge base. Exactly one of Text,
// Path, URL, Topics or RemoteContent must be set.
type InsertRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	Text          string          `json:"text,omitempty"`
	Path          string          `json:"path,omitempty"`
	URL           string          `json:"url,omitempty"`
	Topics        []string        `json:"topics,omitempty"`
	RemoteContent *remote.Content `json:"remote_content,omitempty"`

	// Crawl follows the links of the URL page within its host and inserts
	// every page read.
	Crawl *CrawlOptions `json:"crawl,omitempty"`

	// Metadata is attached to every chunk and becomes filterable.
	Metadata map[string]any `json:"metadata,omitempty"`

	// SkipIfExists leaves content alone when identical content was already
	// ingested.
	SkipIfExists bool `json:"skip_if_exists,omitempty"`

	// Upsert replaces a previous copy of identical content instead of
	// adding a second one.
	Upsert bool `json:"upsert,omitempty"`
}

// Validate checks that the request names exactly one kind of content.
func (r InsertRequest) Validate() error {
	n := 0
	if r.Text != "" {
		n++
	}
	if r.Path != "" {
		n++
	}
	if r.URL != "" {
		n++
	}
	if len(r.Topics) > 0 {
		n++
	}
	if r.RemoteContent != nil {
		n++
		if err := r.RemoteContent.Validate(); err != nil {
			return fmt.Errorf("remote_content: %w", err)
		}
	}

	switch {
	case n == 0:
		return ErrNoSource
	case n > 1:
		return ErrMultipleSources
	case r.Crawl != nil && r.URL == "":
		return errors.New("crawl requires url")
	}
	return nil
}

// Kind names the kind of content the request carries.
func (r InsertRequest) Kind() string {
	switch {
	case r.Text != "":
		return "text"
	case r.Path != "":
		return "path"
	case r.URL != "":
		return "url"
	case len(r.Topics) > 0:
		return "topics"
	case r.RemoteContent != nil:
		return "remote"
	default:
		return ""
	}
}

// InsertResult reports what happened to each content item of a request.
type InsertResult struct {
	Contents []*contentsdb.Content `json:"contents"`
	Inserted int                   `json:"inserted"`
	Skipped  int                   `json:"skipped"`
	Failed   int                   `json:"failed"`
	Errors   []string              `json:"errors,omitempty"`

	errs []error
}

// Err joins the per-item errors, or returns nil when every item succeeded.
func (r *InsertResult) Err() error {
	return errors.Join(r.errs...)
}

func (r *InsertResult) merge(other *InsertResult) {
	r.Contents = append(r.Contents, other.Contents...)
	r.Inserted += other.Inserted
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
	r.errs = append(r.errs, other.errs...)
}

func (r *InsertResult) addError(err error) {
	r.Failed++
	r.Errors = append(r.Errors, err.Error())
	r.errs = append(r.errs, err)
}

// item is one document waiting to be ingested.
type item struct {
	name string

	// file selects the reader by extension.
	file     string
	source   string // identity used in the content hash
	metadata map[string]any

	// plain skips the extension based readers.
	plain bool
	load  func(ctx context.Context) ([]byte, error)
}

type outcomeKind int

const (
	outcomeInserted outcomeKind = iota
	outcomeSkipped
	outcomeFailed
)

type outcome struct {
	kind    outcomeKind
	content *contentsdb.Content
	err     error
}

// Insert ingests the content named by req. Request level problems such as
// an unknown remote source are returned as an error; failures of single
// items are reported in the result and never stop the remaining items.
func (k *Knowledge) Insert(ctx context.Context, req InsertRequest) (*InsertResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := k.tracer.StartInsert(ctx, k.name, req.Kind())
	defer span.End()

	items, skipped, err := k.collect(ctx, req)
	if err != nil {
		k.tracer.RecordError(span, err)
		return nil, err
	}

	result := k.process(ctx, items, req)
	result.Skipped += skipped
	span.SetAttributes(
		attribute.Int("knowledge.contents.inserted", result.Inserted),
		attribute.Int("knowledge.contents.skipped", result.Skipped),
		attribute.Int("knowledge.contents.failed", result.Failed),
	)
	if err := result.Err(); err != nil {
		k.tracer.RecordError(span, err)
	}

	k.log.Info("Inserted content",
		"kind", req.Kind(),
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result, nil
}

// InsertMany runs every request and collects their results. A request
// that fails as a whole is recorded as one failed item.
func (k *Knowledge) InsertMany(ctx context.Context, reqs []InsertRequest) *InsertResult {
	total := &InsertResult{Contents: []*contentsdb.Content{}}
	for i, req := range reqs {
		result, err := k.Insert(ctx, req)
		if err != nil {
			total.addError(fmt.Errorf("request %d: %w", i, err))
			continue
		}
		total.merge(result)
	}
	return total
}

// process ingests items with bounded concurrency. Every item is visited;
// results keep the order of items.
func (k *Knowledge) process(ctx context.Context, items []item, req InsertRequest) *InsertResult {
	outcomes := make([]outcome, len(items))
	locks := &hashLocks{}

	var g errgroup.Group
	g.SetLimit(k.concurrency)
	for i, it := range items {
		g.Go(func() error {
			outcomes[i] = k.ingest(ctx, it, req, locks)
			return nil
		})
	}
	_ = g.Wait()

	result := &InsertResult{Contents: make([]*contentsdb.Content, 0, len(items))}
	for _, o := range outcomes {
		switch o.kind {
		case outcomeInserted:
			result.Inserted++
		case outcomeSkipped:
			result.Skipped++
		case outcomeFailed:
			result.addError(o.err)
		}
		if o.content != nil {
			result.Contents = append(result.Contents, o.content)
		}
	}
	return result
}

// hashLocks serializes the items of one batch that carry the same
// content, so a repeated item sees the record of its twin once it is final.
type hashLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *hashLocks) lock(hash string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	m, ok := l.m[hash]
	if !ok {
		m = &sync.Mutex{}
		l.m[hash] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// ingest reads, chunks, embeds and stores one item.
func (k *Knowledge) ingest(ctx context.Context, it item, req InsertRequest, locks *hashLocks) outcome {
	data, err := it.load(ctx)
	if err != nil {
		return k.fail(it, "read", err)
	}
	if int64(len(data)) > k.maxFileSize {
		return k.fail(it, "read", fmt.Errorf("size %d exceeds max file size %d", len(data), k.maxFileSize))
	}

	text := string(data)
	if !it.plain {
		if text, err = k.readers.Read(ctx, it.file, data); err != nil {
			return k.fail(it, "read", err)
		}
	}
	if strings.TrimSpace(text) == "" {
		return k.fail(it, "read", ErrEmptyContent)
	}

	hash := ContentHash(it.name, it.source, text)
	id := uuid.NewString()

	unlock := locks.lock(hash)
	defer unlock()

	if req.SkipIfExists || req.Upsert {
		existing, err := k.contents.GetByHash(ctx, k.name, hash)
		switch {
		case err == nil && req.SkipIfExists && existing.Status == contentsdb.StatusCompleted:
			k.log.Info("Skipping existing content", "name", it.name, "content_id", existing.ID)
			k.stats.RecordSkipped()
			k.metrics.RecordContent(k.name, observability.OutcomeSkipped, 0)
			return outcome{kind: outcomeSkipped, content: existing}
		case err == nil:
			id = existing.ID
			if err := k.deleteVectors(ctx, id); err != nil {
				return k.fail(it, "store", err)
			}
		case !errors.Is(err, contentsdb.ErrNotFound):
			return k.fail(it, "store", err)
		}
	}

	rec := &contentsdb.Content{
		ID:          id,
		Knowledge:   k.name,
		Name:        it.name,
		Description: req.Description,
		Source:      it.source,
		Hash:        hash,
		Metadata:    mergeMetadata(req.Metadata, it.metadata),
		Status:      contentsdb.StatusProcessing,
		Size:        int64(len(data)),
	}
	if err := k.contents.Upsert(ctx, rec); err != nil {
		return k.fail(it, "store", err)
	}

	chunks, stage, err := k.store(ctx, rec, text)
	if err != nil {
		rec.Status = contentsdb.StatusFailed
		rec.StatusMessage = err.Error()
		if uerr := k.contents.Upsert(ctx, rec); uerr != nil {
			k.log.Warn("Failed to record content failure", "content_id", rec.ID, "error", uerr)
		}
		out := k.fail(it, stage, err)
		out.content = rec
		return out
	}

	rec.Status = contentsdb.StatusCompleted
	rec.ChunkCount = chunks
	if err := k.contents.Upsert(ctx, rec); err != nil {
		return k.fail(it, "store", err)
	}

	k.log.Debug("Ingested content", "name", it.name, "content_id", rec.ID, "chunks", chunks)
	k.stats.RecordInserted(chunks)
	k.metrics.RecordContent(k.name, observability.OutcomeInserted, chunks)
	return outcome{kind: outcomeInserted, content: rec}
}

// store chunks and embeds text and writes the chunks to the vector
// provider. It returns the failing stage along with any error.
func (k *Knowledge) store(ctx context.Context, rec *contentsdb.Content, text string) (int, string, error) {
	chunks := k.chunker.Chunk(text)
	if len(chunks) == 0 {
		return 0, "chunk", ErrEmptyContent
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := k.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, "embed", err
	}
	if len(vectors) != len(chunks) {
		return 0, "embed", fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	if err := k.ensureCollection(ctx, len(vectors[0])); err != nil {
		return 0, "store", err
	}

	for i, c := range chunks {
		meta := make(map[string]any, len(rec.Metadata)+4)
		for key, v := range rec.Metadata {
			meta[key] = v
		}
		meta[MetaContentID] = rec.ID
		meta[MetaContentName] = rec.Name
		meta[MetaChunk] = c.Index
		meta[MetaContent] = c.Content

		if err := k.vector.Upsert(ctx, k.collection, chunkID(rec.ID, c.Index), vectors[i], meta); err != nil {
			return 0, "store", err
		}
	}
	return len(chunks), "", nil
}

func (k *Knowledge) fail(it item, stage string, err error) outcome {
	cerr := &ContentError{Knowledge: k.name, Content: it.name, Stage: stage, Err: err}
	k.log.Warn("Failed to ingest content", "name", it.name, "stage", stage, "error", err)
	k.stats.RecordFailed()
	k.metrics.RecordContent(k.name, observability.OutcomeFailed, 0)
	return outcome{kind: outcomeFailed, err: cerr}
}

func (k *Knowledge) deleteVectors(ctx context.Context, contentID string) error {
	return k.vector.DeleteByFilter(ctx, k.collection, filter.FromMap(filter.NewMap(filter.P(MetaContentID, contentID))))
}

// ContentHash identifies content by name, source and text.
func ContentHash(name, source, text string) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// chunkID derives a stable UUID for a chunk so providers that only accept
// UUID point IDs can store it.
func chunkID(contentID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", contentID, index))).String()
}

func mergeMetadata(user, source map[string]any) map[string]any {
	out := make(map[string]any, len(user)+len(source))
	for k, v := range user {
		out[k] = v
	}
	for k, v := range source {
		out[k] = v
	}
	return out
}

// collect turns a request into items. The second result counts entries of
// a listing that were left out.
func (k *Knowledge) collect(ctx context.Context, req InsertRequest) ([]item, int, error) {
	switch req.Kind() {
	case "text":
		return []item{k.textItem(req)}, 0, nil
	case "path":
		return k.pathItems(req)
	case "url":
		if req.Crawl != nil {
			return k.crawlItems(ctx, req)
		}
		it, err := k.urlItem(req)
		if err != nil {
			return nil, 0, err
		}
		return []item{it}, 0, nil
	case "topics":
		return k.topicItems(req), 0, nil
	case "remote":
		return k.remoteItems(ctx, req)
	default:
		return nil, 0, ErrNoSource
	}
}

func (k *Knowledge) textItem(req InsertRequest) item {
	name := req.Name
	if name == "" {
		sum := sha256.Sum256([]byte(req.Text))
		name = "text-" + hex.EncodeToString(sum[:4])
	}
	data := []byte(req.Text)
	return item{
		name:   name,
		file:   name,
		source: "text",
		plain:  true,
		load: func(context.Context) ([]byte, error) {
			return data, nil
		},
	}
}

func (k *Knowledge) fileItem(p, name string) item {
	return item{
		name:     name,
		file:     p,
		source:   "file://" + p,
		metadata: map[string]any{MetaSourceType: "file", MetaPath: p},
		load: func(context.Context) ([]byte, error) {
			return os.ReadFile(p)
		},
	}
}

// pathItems expands a local file or directory.
func (k *Knowledge) pathItems(req InsertRequest) ([]item, int, error) {
	root, err := filepath.Abs(req.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid path %q: %w", req.Path, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat %q: %w", req.Path, err)
	}

	if !info.IsDir() {
		name := req.Name
		if name == "" {
			name = filepath.Base(root)
		}
		return []item{k.fileItem(root, name)}, 0, nil
	}

	var items []item
	skipped := 0
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			k.log.Warn("Skipping unreadable path", "path", p, "error", err)
			skipped++
			return nil
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		var size int64
		if fi, err := d.Info(); err == nil {
			size = fi.Size()
		}
		keep, reason := k.admit(d.Name(), size)
		if !keep {
			if reason != "" {
				k.log.Info("Skipping file", "path", p, "reason", reason)
				skipped++
			}
			return nil
		}

		rel, _ := filepath.Rel(root, p)
		items = append(items, k.fileItem(p, filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to walk %q: %w", req.Path, err)
	}
	return items, skipped, nil
}

// admit decides whether a listed file is ingested. Hidden files and
// unsupported types are left out quietly; an empty reason means the entry
// is not counted as skipped.
func (k *Knowledge) admit(name string, size int64) (bool, string) {
	base := path.Base(name)
	switch {
	case strings.HasPrefix(base, "."):
		return false, ""
	case !k.supported(base):
		return false, ""
	case size > k.maxFileSize:
		return false, fmt.Sprintf("size %d exceeds max file size %d", size, k.maxFileSize)
	default:
		return true, ""
	}
}

func (k *Knowledge) supported(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range k.readers.Extensions() {
		if e == ext {
			return true
		}
	}
	return false
}

func (k *Knowledge) urlItem(req InsertRequest) (item, error) {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return item{}, fmt.Errorf("invalid url %q", req.URL)
	}

	name := req.Name
	if name == "" {
		name = path.Base(u.Path)
		if name == "." || name == "/" {
			name = u.Host
		}
	}

	target := u.String()
	return item{
		name:     name,
		file:     path.Base(u.Path),
		source:   target,
		metadata: map[string]any{MetaSourceType: "url", MetaURL: target},
		load: func(ctx context.Context) ([]byte, error) {
			return k.fetch(ctx, target)
		},
	}, nil
}

// crawlItems crawls the site of the request URL; each page read becomes
// an item.
func (k *Knowledge) crawlItems(ctx context.Context, req InsertRequest) ([]item, int, error) {
	reader := &WebsiteReader{Options: *req.Crawl, Fetch: k.fetch, Logger: k.log}
	pages, failed, err := reader.Crawl(ctx, req.URL)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to crawl %s: %w", req.URL, err)
	}

	items := make([]item, 0, len(pages))
	for _, page := range pages {
		text := page.Text
		if page.Title != "" && !strings.HasPrefix(text, page.Title) {
			text = page.Title + "\n" + text
		}
		name := page.Title
		if name == "" {
			name = page.URL
		}
		data := []byte(text)
		items = append(items, item{
			name:   name,
			file:   page.URL,
			source: page.URL,
			metadata: map[string]any{
				MetaSourceType: "url",
				MetaURL:        page.URL,
				MetaCrawlDepth: page.Depth,
			},
			plain: true,
			load: func(context.Context) ([]byte, error) {
				return data, nil
			},
		})
	}
	k.log.Info("Crawled website", "url", req.URL, "pages", len(pages), "failed", failed)
	return items, failed, nil
}

func (k *Knowledge) fetch(ctx context.Context, target string) ([]byte, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", target, err)
	}
	if err := urlPolicyFrom(ctx).Check(ctx, u); err != nil {
		return nil, err
	}

	resp, err := k.http.DoContext(ctx, http.MethodGet, target, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpclient.ReadError(resp)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, k.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

// topicItems makes one item per topic. Blank topics are skipped.
func (k *Knowledge) topicItems(req InsertRequest) []item {
	items := make([]item, 0, len(req.Topics))
	for _, topic := range req.Topics {
		topic := strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		items = append(items, item{
			name:     topic,
			file:     topic,
			source:   "topic:" + topic,
			metadata: map[string]any{MetaSourceType: "topic", MetaTopic: topic},
			plain:    true,
			load: func(ctx context.Context) ([]byte, error) {
				text, err := k.topicReader(ctx, topic)
				return []byte(text), err
			},
		})
	}
	return items
}

// remoteItems lists a remote content reference.
func (k *Knowledge) remoteItems(ctx context.Context, req InsertRequest) ([]item, int, error) {
	c := *req.RemoteContent
	src, err := k.sources.Resolve(c)
	if err != nil {
		return nil, 0, err
	}

	objects, err := src.List(ctx, c)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list %s content %q: %w", src.SourceID(), c.Path, err)
	}

	items := make([]item, 0, len(objects))
	skipped := 0
	for _, o := range objects {
		if c.Kind == remote.KindFolder {
			keep, reason := k.admit(o.Path, o.Size)
			if !keep {
				if reason != "" {
					k.log.Info("Skipping remote object", "source", src.SourceID(), "path", o.Path, "reason", reason)
					skipped++
				}
				continue
			}
		}
		o.MaxSize = k.maxFileSize
		items = append(items, k.remoteItem(src, c, o, req.Name))
	}
	return items, skipped, nil
}

func (k *Knowledge) remoteItem(src remote.Source, c remote.Content, o remote.Object, name string) item {
	if name == "" || c.Kind == remote.KindFolder {
		name = o.Path
	}

	meta := map[string]any{
		MetaSourceType: src.Type(),
		MetaSourceID:   src.SourceID(),
		MetaPath:       o.Path,
	}
	if o.Branch != "" {
		meta[MetaBranch] = o.Branch
	}

	return item{
		name:     name,
		file:     o.Path,
		source:   fmt.Sprintf("%s://%s/%s", src.Type(), src.SourceID(), o.Path),
		metadata: meta,
		load: func(ctx context.Context) ([]byte, error) {
			return src.Read(ctx, o)
		},
	}
}
