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
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks ingestion and search counters of one knowledge base. It is
// safe for concurrent use.
type Stats struct {
	knowledge string

	totalContents    int64
	insertedContents int64
	skippedContents  int64
	failedContents   int64
	chunks           int64

	searchCount      int64
	searchErrors     int64
	searchLatencySum int64 // nanoseconds
	searchLatencyMax int64

	mu           sync.RWMutex
	lastInsertAt time.Time
}

// NewStats creates counters for a knowledge base.
func NewStats(knowledge string) *Stats {
	return &Stats{knowledge: knowledge}
}

// RecordInserted counts a content item stored with its chunks.
func (s *Stats) RecordInserted(chunks int) {
	atomic.AddInt64(&s.totalContents, 1)
	atomic.AddInt64(&s.insertedContents, 1)
	atomic.AddInt64(&s.chunks, int64(chunks))
	s.touch()
}

// RecordSkipped counts a content item that was already ingested.
func (s *Stats) RecordSkipped() {
	atomic.AddInt64(&s.totalContents, 1)
	atomic.AddInt64(&s.skippedContents, 1)
}

// RecordFailed counts a content item that could not be ingested.
func (s *Stats) RecordFailed() {
	atomic.AddInt64(&s.totalContents, 1)
	atomic.AddInt64(&s.failedContents, 1)
}

// RecordSearch records a search and its latency.
func (s *Stats) RecordSearch(latency time.Duration, err error) {
	if err != nil {
		atomic.AddInt64(&s.searchErrors, 1)
	}
	ns := latency.Nanoseconds()
	atomic.AddInt64(&s.searchCount, 1)
	atomic.AddInt64(&s.searchLatencySum, ns)

	// CAS loop for atomic max
	for {
		current := atomic.LoadInt64(&s.searchLatencyMax)
		if ns <= current {
			break
		}
		if atomic.CompareAndSwapInt64(&s.searchLatencyMax, current, ns) {
			break
		}
	}
}

func (s *Stats) touch() {
	s.mu.Lock()
	s.lastInsertAt = time.Now()
	s.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	last := s.lastInsertAt
	s.mu.RUnlock()

	searches := atomic.LoadInt64(&s.searchCount)
	var avg time.Duration
	if searches > 0 {
		avg = time.Duration(atomic.LoadInt64(&s.searchLatencySum) / searches)
	}

	return StatsSnapshot{
		Knowledge:        s.knowledge,
		TotalContents:    atomic.LoadInt64(&s.totalContents),
		InsertedContents: atomic.LoadInt64(&s.insertedContents),
		SkippedContents:  atomic.LoadInt64(&s.skippedContents),
		FailedContents:   atomic.LoadInt64(&s.failedContents),
		Chunks:           atomic.LoadInt64(&s.chunks),
		SearchCount:      searches,
		SearchErrors:     atomic.LoadInt64(&s.searchErrors),
		AvgSearchLatency: avg,
		MaxSearchLatency: time.Duration(atomic.LoadInt64(&s.searchLatencyMax)),
		LastInsertAt:     last,
	}
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Knowledge        string        `json:"knowledge"`
	TotalContents    int64         `json:"total_contents"`
	InsertedContents int64         `json:"inserted_contents"`
	SkippedContents  int64         `json:"skipped_contents"`
	FailedContents   int64         `json:"failed_contents"`
	Chunks           int64         `json:"chunks"`
	SearchCount      int64         `json:"search_count"`
	SearchErrors     int64         `json:"search_errors"`
	AvgSearchLatency time.Duration `json:"avg_search_latency_ns"`
	MaxSearchLatency time.Duration `json:"max_search_latency_ns"`
	LastInsertAt     time.Time     `json:"last_insert_at,omitempty"`
}
