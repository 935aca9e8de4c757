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
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kadirpekel/hectorkb/pkg/httpclient"
)

// ollamaMu serializes embedding calls process-wide; the Ollama runner can
// crash under concurrent embed requests.
var ollamaMu sync.Mutex

// OllamaEmbedder calls Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	identity
	client   *httpclient.Client
	endpoint string
}

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// BaseURL defaults to http://localhost:11434.
	BaseURL string

	// Model defaults to nomic-embed-text.
	Model string

	// Dimension is guessed from the model name when zero.
	Dimension int

	Client *httpclient.Client
}

type ollamaRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

var ollamaDimensions = map[string]int{
	"all-minilm":        384,
	"all-minilm:l6-v2":  384,
	"bge-small-en-v1.5": 384,
	"mxbai-embed-large": 1024,
	"bge-large-en-v1.5": 1024,
}

// NewOllamaEmbedder creates an Ollama embedder.
func NewOllamaEmbedder(cfg OllamaConfig) (*OllamaEmbedder, error) {
	e := &OllamaEmbedder{
		identity: identity{model: cmp.Or(cfg.Model, "nomic-embed-text"), dimension: cfg.Dimension},
		client:   cfg.Client,
		endpoint: strings.TrimRight(cmp.Or(cfg.BaseURL, "http://localhost:11434"), "/") + "/api/embed",
	}
	if e.dimension == 0 {
		e.dimension = cmp.Or(ollamaDimensions[e.model], 768)
	}
	if e.client == nil {
		e.client = httpclient.New(httpclient.WithName("ollama"))
	}
	return e, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e.EmbedBatch, text)
}

// EmbedBatch embeds all texts in one request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return inBatches(ctx, texts, 0, e.request)
}

func (e *OllamaEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	ollamaMu.Lock()
	defer ollamaMu.Unlock()

	slog.Debug("Ollama embed request", "model", e.model, "count", len(texts))

	var resp ollamaResponse
	if err := postJSON(ctx, e.client, e.endpoint, nil, ollamaRequest{Model: e.model, Input: texts}, &resp, nil); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return resp.Embeddings, nil
}

var _ Embedder = (*OllamaEmbedder)(nil)
