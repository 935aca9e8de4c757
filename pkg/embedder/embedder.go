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

// Package embedder turns text into vectors for semantic search.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kadirpekel/hectorkb/pkg/httpclient"
)

// Embedder produces vector embeddings from text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimension() int
	Model() string
	Close() error
}

// identity implements the descriptive half of Embedder.
type identity struct {
	model     string
	dimension int
}

func (i identity) Model() string  { return i.model }
func (i identity) Dimension() int { return i.dimension }
func (i identity) Close() error   { return nil }

type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// embedOne embeds a single text through a batch call.
func embedOne(ctx context.Context, fn batchFunc, text string) ([]float32, error) {
	out, err := fn(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// inBatches calls fn on consecutive runs of at most size texts and checks
// that every run yields one vector per input.
func inBatches(ctx context.Context, texts []string, size int, fn batchFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if size <= 0 {
		size = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		run := texts[start:min(start+size, len(texts))]
		vecs, err := fn(ctx, run)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(run) {
			return nil, fmt.Errorf("got %d embeddings for %d inputs", len(vecs), len(run))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// postJSON sends body to url and decodes a 200 response into out. apiError
// may turn a provider error body into a readable error; it returns nil when
// the body is not one.
func postJSON(ctx context.Context, c *httpclient.Client, url string, header http.Header, body, out any, apiError func([]byte) error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/json")

	resp, err := c.DoContext(ctx, http.MethodPost, url, bytes.NewReader(payload), header)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		if apiError == nil {
			return httpclient.ReadError(resp)
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if err := apiError(raw); err != nil {
			return err
		}
		return &httpclient.StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}

	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
