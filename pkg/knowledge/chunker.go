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
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk is a piece of a document small enough to embed.
type Chunk struct {
	Content   string
	Index     int
	StartLine int
	EndLine   int
	Tokens    int
}

// Chunker splits document text into chunks.
type Chunker interface {
	Chunk(text string) []Chunk
}

// TokenCounter counts the tokens of a piece of text.
type TokenCounter func(string) int

var encodingsMu sync.Mutex

var encodings = make(map[string]*tiktoken.Tiktoken)

// EncodingApprox sizes text at four characters per token without loading
// a tiktoken encoding.
const EncodingApprox = "approx"

// TiktokenCounter returns a counter for a tiktoken encoding. If the
// encoding cannot be loaded, text is sized at four characters per token.
func TiktokenCounter(encoding string) TokenCounter {
	if encoding == EncodingApprox {
		return approxTokens
	}

	encodingsMu.Lock()
	defer encodingsMu.Unlock()

	enc, ok := encodings[encoding]
	if !ok {
		var err error
		enc, err = tiktoken.GetEncoding(encoding)
		if err != nil {
			slog.Warn("Falling back to character based chunk sizing",
				"encoding", encoding,
				"error", err)
			return approxTokens
		}
		encodings[encoding] = enc
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}
}

func approxTokens(s string) int {
	return (len(s) + 3) / 4
}

// LineChunker accumulates whole lines until the next line would push the
// chunk past Size tokens. A single line longer than Size becomes its own
// chunk.
type LineChunker struct {
	Size int

	// Overlap repeats this many trailing lines of a chunk at the start of
	// the next one.
	Overlap int
	Count   TokenCounter
}

// NewLineChunker creates a chunker sized by count.
func NewLineChunker(size, overlap int, count TokenCounter) *LineChunker {
	if size <= 0 {
		size = 512
	}
	if count == nil {
		count = approxTokens
	}
	return &LineChunker{Size: size, Overlap: overlap, Count: count}
}

// Chunk splits text. Blank input yields no chunks.
func (c *LineChunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	tokens := make([]int, len(lines))
	for i, line := range lines {
		tokens[i] = c.Count(line + "\n")
	}

	var chunks []Chunk
	start, sum := 0, 0
	emit := func(end int) {
		content := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, Chunk{
				Content:   content,
				Index:     len(chunks),
				StartLine: start + 1,
				EndLine:   end,
				Tokens:    sum,
			})
		}
	}

	for i := range lines {
		if i > start && sum+tokens[i] > c.Size {
			emit(i)
			next := i - c.Overlap
			if next <= start {
				next = start + 1
			}
			if next > i {
				next = i
			}
			start, sum = next, 0
			for j := start; j < i; j++ {
				sum += tokens[j]
			}
		}
		sum += tokens[i]
	}
	emit(len(lines))

	return chunks
}

var _ Chunker = (*LineChunker)(nil)
