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

// Package contentsdb persists metadata about the contents loaded into a
// knowledge base: what was inserted, from where, its hash, its status and
// the metadata keys later used to validate search filters.
package contentsdb

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a content record does not exist.
var ErrNotFound = errors.New("content not found")

// Status is the processing state of a content record.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// Content describes one inserted document (a text, file, URL, topic or
// remote object).
type Content struct {
	ID            string         `json:"id"`
	Knowledge     string         `json:"knowledge"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Source        string         `json:"source,omitempty"`
	Hash          string         `json:"hash"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Status        Status         `json:"status"`
	StatusMessage string         `json:"status_message,omitempty"`
	ChunkCount    int            `json:"chunk_count"`
	Size          int64          `json:"size"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ListOptions selects a page of contents.
type ListOptions struct {
	// Limit caps the number of records; zero means no limit.
	Limit  int
	Offset int

	// Status restricts results to one status when set.
	Status Status
}

// Store persists content records for any number of knowledge bases.
// Records are scoped by Content.Knowledge.
type Store interface {
	// Upsert inserts or replaces a record by ID.
	Upsert(ctx context.Context, c *Content) error

	// Get returns ErrNotFound for unknown IDs.
	Get(ctx context.Context, knowledge, id string) (*Content, error)

	// GetByHash returns the most recently updated record with the hash.
	GetByHash(ctx context.Context, knowledge, hash string) (*Content, error)

	// List returns records ordered by creation time, plus the total count
	// matching opts before paging.
	List(ctx context.Context, knowledge string, opts ListOptions) ([]*Content, int, error)

	Delete(ctx context.Context, knowledge, id string) error
	DeleteAll(ctx context.Context, knowledge string) error

	// MetadataKeys returns the union of metadata keys across records.
	MetadataKeys(ctx context.Context, knowledge string) ([]string, error)

	Close() error
}

func clone(c *Content) *Content {
	out := *c
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func page(items []*Content, opts ListOptions) []*Content {
	if opts.Offset >= len(items) {
		return []*Content{}
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
