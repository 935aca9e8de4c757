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

package embedder

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kadirpekel/hectorkb/pkg/httpclient"
)

// Cohere input types. Documents and queries are embedded into the same
// space but tuned for their side of retrieval.
const (
	cohereDocument = "search_document"
	cohereQuery    = "search_query"
)

// cohereMaxBatch is the most texts Cohere accepts per call.
const cohereMaxBatch = 96

// CohereEmbedder calls the Cohere embed API.
type CohereEmbedder struct {
	identity
	client    *httpclient.Client
	apiKey    string
	endpoint  string
	batchSize int
}

// CohereConfig configures the Cohere embedder.
type CohereConfig struct {
	APIKey string

	// BaseURL defaults to https://api.cohere.ai/v1.
	BaseURL string

	// Model defaults to embed-english-v3.0.
	Model     string
	Dimension int
	BatchSize int
	Client    *httpclient.Client
}

var cohereDimensions = map[string]int{
	"embed-english-v3.0":            1024,
	"embed-multilingual-v3.0":       1024,
	"embed-english-light-v3.0":      384,
	"embed-multilingual-light-v3.0": 384,
}

func NewCohereEmbedder(cfg CohereConfig) (*CohereEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required for Cohere embedder")
	}
	e := &CohereEmbedder{
		identity: identity{model: cmp.Or(cfg.Model, "embed-english-v3.0"), dimension: cfg.Dimension},
		client:   cfg.Client,
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimRight(cmp.Or(cfg.BaseURL, "https://api.cohere.ai/v1"), "/") + "/embed",
	}
	if e.dimension == 0 {
		e.dimension = cmp.Or(cohereDimensions[e.model], 1024)
	}
	e.batchSize = cfg.BatchSize
	if e.batchSize <= 0 || e.batchSize > cohereMaxBatch {
		e.batchSize = cohereMaxBatch
	}
	if e.client == nil {
		e.client = httpclient.New(httpclient.WithName("cohere"))
	}
	return e, nil
}

// Embed embeds a search query.
func (e *CohereEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.request(ctx, []string{text}, cohereQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds documents for indexing.
func (e *CohereEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return inBatches(ctx, texts, e.batchSize, func(ctx context.Context, batch []string) ([][]float32, error) {
		return e.request(ctx, batch, cohereDocument)
	})
}

func (e *CohereEmbedder) request(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	req := struct {
		Texts     []string `json:"texts"`
		Model     string   `json:"model"`
		InputType string   `json:"input_type"`
		Truncate  string   `json:"truncate"`
	}{texts, e.model, inputType, "END"}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	header := http.Header{
		"Authorization": []string{"Bearer " + e.apiKey},
		"Accept":        []string{"application/json"},
	}
	if err := postJSON(ctx, e.client, e.endpoint, header, req, &resp, cohereError); err != nil {
		return nil, fmt.Errorf("cohere embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("cohere embed: got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func cohereError(body []byte) error {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) != nil || e.Message == "" {
		return nil
	}
	return errors.New(e.Message)
}

var _ Embedder = (*CohereEmbedder)(nil)
