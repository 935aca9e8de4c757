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

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Key identifies one usage counter.
type Key struct {
	Scope      Scope
	Identifier string
	LimitType  LimitType
	Window     TimeWindow
}

// Store persists usage counters. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the amount used in the window that contains now. A
	// missing or expired counter reads as zero in a window starting now.
	Get(ctx context.Context, key Key, now time.Time) (int64, time.Time, error)

	// Add charges amount to the current window and returns the new total.
	Add(ctx context.Context, key Key, amount int64, now time.Time) (int64, time.Time, error)

	// DeleteExpired drops counters whose window ended before t.
	DeleteExpired(ctx context.Context, t time.Time) error
}

type counter struct {
	amount    int64
	windowEnd time.Time
}

// MemoryStore keeps counters in process memory. Counters do not survive
// restarts and are not shared between replicas.
type MemoryStore struct {
	mu   sync.Mutex
	data map[Key]*counter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Key]*counter)}
}

func (s *MemoryStore) Get(_ context.Context, key Key, now time.Time) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[key]
	if !ok || !c.windowEnd.After(now) {
		return 0, now.Add(key.Window.Duration()), nil
	}
	return c.amount, c.windowEnd, nil
}

func (s *MemoryStore) Add(_ context.Context, key Key, amount int64, now time.Time) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[key]
	if !ok || !c.windowEnd.After(now) {
		c = &counter{windowEnd: now.Add(key.Window.Duration())}
		s.data[key] = c
	}
	c.amount += amount
	return c.amount, c.windowEnd, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.data {
		if c.windowEnd.Before(t) {
			delete(s.data, k)
		}
	}
	return nil
}

// Len returns the number of live and expired counters held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

var _ Store = (*MemoryStore)(nil)
