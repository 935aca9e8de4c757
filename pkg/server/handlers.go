// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/hectorkb/pkg/config"
	"github.com/kadirpekel/hectorkb/pkg/contentsdb"
	"github.com/kadirpekel/hectorkb/pkg/filter"
	"github.com/kadirpekel/hectorkb/pkg/knowledge"
	"github.com/kadirpekel/hectorkb/pkg/knowledge/remote"
	"github.com/kadirpekel/hectorkb/pkg/runtime"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 10 << 20

type ctxKey struct{}

type handlers struct {
	rt      *runtime.Runtime
	version string
	urls    *knowledge.URLPolicy
}

// KnowledgeInfo describes a knowledge base.
type KnowledgeInfo struct {
	Name           string                   `json:"name"`
	Description    string                   `json:"description,omitempty"`
	Collection     string                   `json:"collection"`
	AgenticFilters bool                     `json:"agentic_filters"`
	Tools          []string                 `json:"tools,omitempty"`
	Sources        []SourceInfo             `json:"content_sources"`
	Stats          *knowledge.StatsSnapshot `json:"stats,omitempty"`
}

// SourceInfo describes a remote content source.
type SourceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// SearchRequest is the body of POST /knowledge/{kb}/search.
type SearchRequest struct {
	Query   string `json:"query"`
	Limit   int    `json:"limit,omitempty"`
	Filters any    `json:"filters,omitempty"`
}

// ContentList is the response of GET /knowledge/{kb}/content.
type ContentList struct {
	Contents []*contentsdb.Content `json:"contents"`
	Total    int                   `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   h.version,
		"knowledge": len(h.rt.KnowledgeNames()),
	})
}

func (h *handlers) schema(w http.ResponseWriter, _ *http.Request) {
	data, err := config.SchemaJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = w.Write(data)
}

// knowledgeCtx resolves {kb} and stores the knowledge base in the request
// context.
func (h *handlers) knowledgeCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "kb")
		kb, ok := h.rt.Knowledge(name)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("knowledge %q not found", name))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, kb)))
	})
}

func knowledgeFrom(r *http.Request) *knowledge.Knowledge {
	kb, _ := r.Context().Value(ctxKey{}).(*knowledge.Knowledge)
	return kb
}

func (h *handlers) info(kb *knowledge.Knowledge, withStats bool) KnowledgeInfo {
	info := KnowledgeInfo{
		Name:        kb.Name(),
		Description: kb.Description(),
		Collection:  kb.Collection(),
		Sources:     sourceInfos(kb.Sources()),
	}
	if t, ok := h.rt.SearchTool(kb.Name()); ok {
		info.AgenticFilters = t.AgenticFilters()
		info.Tools = append(info.Tools, t.Name())
	}
	if withStats {
		stats := kb.Stats()
		info.Stats = &stats
	}
	return info
}

func sourceInfos(sources []remote.Source) []SourceInfo {
	out := make([]SourceInfo, 0, len(sources))
	for _, src := range sources {
		out = append(out, SourceInfo{ID: src.SourceID(), Name: src.SourceName(), Type: src.Type()})
	}
	return out
}

func (h *handlers) listKnowledge(w http.ResponseWriter, _ *http.Request) {
	out := []KnowledgeInfo{}
	for _, name := range h.rt.KnowledgeNames() {
		kb, _ := h.rt.Knowledge(name)
		out = append(out, h.info(kb, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"knowledge": out})
}

func (h *handlers) getKnowledge(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.info(knowledgeFrom(r), true))
}

func (h *handlers) listSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"content_sources": sourceInfos(knowledgeFrom(r).Sources())})
}

func (h *handlers) listFilters(w http.ResponseWriter, r *http.Request) {
	kb := knowledgeFrom(r)
	keys, err := kb.ValidFilterKeys(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"knowledge": kb.Name(), "keys": keys.Sorted()})
}

// search runs the request through the knowledge base's search tool with
// the body filters as caller filters.
func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	kb := knowledgeFrom(r)

	var req SearchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, errors.New("query is required"))
		return
	}

	st, ok := h.rt.SearchTool(kb.Name())
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("knowledge %q has no search tool", kb.Name()))
		return
	}
	requested, dropped := filter.Parse(req.Filters, h.rt.Logger())

	resp, err := st.Search(r.Context(), req.Query, req.Limit, requested)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp.DroppedFilters = dropped
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) listContent(w http.ResponseWriter, r *http.Request) {
	opts := contentsdb.ListOptions{Status: contentsdb.Status(r.URL.Query().Get("status"))}
	var err error
	if opts.Limit, err = intParam(r, "limit"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if opts.Offset, err = intParam(r, "offset"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	contents, total, err := knowledgeFrom(r).Contents(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if contents == nil {
		contents = []*contentsdb.Content{}
	}
	writeJSON(w, http.StatusOK, ContentList{Contents: contents, Total: total})
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (h *handlers) getContent(w http.ResponseWriter, r *http.Request) {
	c, err := knowledgeFrom(r).Content(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handlers) insertContent(w http.ResponseWriter, r *http.Request) {
	var req knowledge.InsertRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Path != "" {
		writeError(w, http.StatusBadRequest, errors.New("path content can only be inserted from the command line"))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := knowledge.WithURLPolicy(r.Context(), h.urls)
	if req.URL != "" {
		u, err := url.Parse(req.URL)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid url: %w", err))
			return
		}
		if err := h.urls.Check(ctx, u); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, knowledge.ErrURLNotAllowed) {
				status = http.StatusForbidden
			}
			writeError(w, status, err)
			return
		}
	}

	result, err := knowledgeFrom(r).Insert(ctx, req)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}

	status := http.StatusOK
	if result.Inserted > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

func (h *handlers) removeContent(w http.ResponseWriter, r *http.Request) {
	if err := knowledgeFrom(r).RemoveContent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) removeAllContent(w http.ResponseWriter, r *http.Request) {
	if err := knowledgeFrom(r).RemoveAll(r.Context()); err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, contentsdb.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, knowledge.ErrURLNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, knowledge.ErrNoSource),
		errors.Is(err, knowledge.ErrMultipleSources),
		errors.Is(err, remote.ErrUnknownSource):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
