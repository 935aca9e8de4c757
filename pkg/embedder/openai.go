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

// OpenAIEmbedder calls the OpenAI embeddings API, or any server that
// speaks it.
type OpenAIEmbedder struct {
	identity
	client    *httpclient.Client
	apiKey    string
	endpoint  string
	batchSize int
}

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	APIKey string

	// BaseURL defaults to https://api.openai.com/v1.
	BaseURL string

	// Model defaults to text-embedding-3-small.
	Model string

	// Dimension is sent as "dimensions" to text-embedding-3 models.
	Dimension int

	// BatchSize caps inputs per request (default: 100).
	BatchSize int

	Client *httpclient.Client
}

type openaiRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	Dimensions     *int     `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type openaiResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// openaiDimensions lists the native sizes of known models.
var openaiDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required for OpenAI embedder")
	}

	e := &OpenAIEmbedder{
		identity:  identity{model: cmp.Or(cfg.Model, "text-embedding-3-small"), dimension: cfg.Dimension},
		client:    cfg.Client,
		apiKey:    cfg.APIKey,
		endpoint:  strings.TrimRight(cmp.Or(cfg.BaseURL, "https://api.openai.com/v1"), "/") + "/embeddings",
		batchSize: cfg.BatchSize,
	}
	if e.dimension == 0 {
		e.dimension = cmp.Or(openaiDimensions[e.model], 1536)
	}
	if e.batchSize <= 0 {
		e.batchSize = 100
	}
	if e.client == nil {
		e.client = httpclient.New(httpclient.WithName("openai"), httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders))
	}
	return e, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, e.EmbedBatch, text)
}

// EmbedBatch sends at most batchSize inputs per request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return inBatches(ctx, texts, e.batchSize, e.request)
}

func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	req := openaiRequest{Model: e.model, Input: texts, EncodingFormat: "float"}
	if strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = &e.dimension
	}

	var resp openaiResponse
	header := http.Header{"Authorization": []string{"Bearer " + e.apiKey}}
	if err := postJSON(ctx, e.client, e.endpoint, header, req, &resp, openaiError); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}

	// Items carry their input index and may arrive in any order.
	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index >= 0 && item.Index < len(out) {
			out[item.Index] = item.Embedding
		}
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("openai embed: response is missing embedding %d", i)
		}
	}
	return out, nil
}

func openaiError(body []byte) error {
	var e struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil || e.Error.Message == "" {
		return nil
	}
	return fmt.Errorf("%s (type: %s, code: %s)", e.Error.Message, e.Error.Type, e.Error.Code)
}

var _ Embedder = (*OpenAIEmbedder)(nil)
