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

package contentsdb

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps content records in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	contents map[string]map[string]*Content
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contents: make(map[string]map[string]*Content)}
}

func (s *MemoryStore) Upsert(_ context.Context, c *Content) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec := clone(c)
	kb := s.contents[rec.Knowledge]
	if kb == nil {
		kb = make(map[string]*Content)
		s.contents[rec.Knowledge] = kb
	}
	if existing, ok := kb[rec.ID]; ok && rec.CreatedAt.IsZero() {
		rec.CreatedAt = existing.CreatedAt
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	kb[rec.ID] = rec

	c.CreatedAt, c.UpdatedAt = rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (s *MemoryStore) Get(_ context.Context, knowledge, id string) (*Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contents[knowledge][id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(c), nil
}

func (s *MemoryStore) GetByHash(_ context.Context, knowledge, hash string) (*Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *Content
	for _, c := range s.contents[knowledge] {
		if c.Hash != hash {
			continue
		}
		if found == nil || c.UpdatedAt.After(found.UpdatedAt) {
			found = c
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return clone(found), nil
}

func (s *MemoryStore) List(_ context.Context, knowledge string, opts ListOptions) ([]*Content, int, error) {
	s.mu.RLock()
	items := make([]*Content, 0, len(s.contents[knowledge]))
	for _, c := range s.contents[knowledge] {
		if opts.Status != "" && c.Status != opts.Status {
			continue
		}
		items = append(items, clone(c))
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	return page(items, opts), len(items), nil
}

func (s *MemoryStore) Delete(_ context.Context, knowledge, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contents[knowledge][id]; !ok {
		return ErrNotFound
	}
	delete(s.contents[knowledge], id)
	return nil
}

func (s *MemoryStore) DeleteAll(_ context.Context, knowledge string) error {
	s.mu.Lock()
	delete(s.contents, knowledge)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) MetadataKeys(_ context.Context, knowledge string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, c := range s.contents[knowledge] {
		for k := range c.Metadata {
			seen[k] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Store = (*MemoryStore)(nil)
