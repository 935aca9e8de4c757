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

// Package testutils provides fixtures shared by the tests of the packages
// built on top of knowledge: a deterministic embedder and a small seeded
// knowledge base.
package testutils

import (
	"context"
	"hash/fnv"
	"io"
	"log/slog"
	"strings"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hectorkb/pkg/embedder"
	"github.com/kadirpekel/hectorkb/pkg/knowledge"
	"github.com/kadirpekel/hectorkb/pkg/vector"
)

// Dimension of the vectors produced by Embedder.
const Dimension = 32

// Embedder hashes lowercased words into a bag-of-words vector, so texts
// sharing words are similar. Err, when set, fails every call.
type Embedder struct {
	Err error
}

// Vector returns the embedding of text.
func Vector(text string) []float32 {
	v := make([]float32, Dimension)
	v[0] = 0.1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,;:!?")))
		v[1+int(h.Sum32()%(Dimension-1))]++
	}
	return v
}

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return Vector(text), nil
}

func (e *Embedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

func (e *Embedder) Dimension() int { return Dimension }
func (e *Embedder) Model() string  { return "bag-of-words" }
func (e *Embedder) Close() error   { return nil }

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewKnowledge creates an in-memory knowledge base named name.
func NewKnowledge(t require.TestingT, name string, mutate ...func(*knowledge.Options)) *knowledge.Knowledge {
	p, err := vector.NewChromemProvider(vector.ChromemConfig{})
	require.NoError(t, err)

	opts := knowledge.Options{
		Name:        name,
		Description: "Test documents",
		Vector:      p,
		Embedder:    &Embedder{},
		Chunker:     knowledge.NewLineChunker(128, 0, func(s string) int { return len(strings.Fields(s)) }),
		Logger:      QuietLogger(),
	}
	for _, m := range mutate {
		m(&opts)
	}

	k, err := knowledge.New(opts)
	require.NoError(t, err)
	return k
}

// Doc is a seeded document.
type Doc struct {
	Name     string
	Text     string
	Metadata map[string]any
}

// SalesDocs are three documents filterable on region, quarter and data_type.
var SalesDocs = []Doc{
	{"q1-us", "quarterly sales report revenue north america", map[string]any{"region": "us", "quarter": "Q1", "data_type": "sales"}},
	{"q2-eu", "quarterly sales report revenue europe", map[string]any{"region": "eu", "quarter": "Q2", "data_type": "sales"}},
	{"handbook", "employee handbook vacation policy", map[string]any{"region": "us", "data_type": "policy"}},
}

// Seed inserts docs as text contents.
func Seed(t require.TestingT, k *knowledge.Knowledge, docs ...Doc) {
	for _, d := range docs {
		res, err := k.Insert(context.Background(), knowledge.InsertRequest{Name: d.Name, Text: d.Text, Metadata: d.Metadata})
		require.NoError(t, err)
		require.Equal(t, 1, res.Inserted, res.Errors)
	}
}

// Names returns the names of documents in order.
func Names(docs []knowledge.Document) []string {
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	return names
}

var _ embedder.Embedder = (*Embedder)(nil)
