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

package filter

import (
	"sort"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Pair is one entry of a mapping filter.
type Pair struct {
	Key   string
	Value any
}

// P is shorthand for Pair{Key: key, Value: value}.
func P(key string, value any) Pair { return Pair{Key: key, Value: value} }

// Map is an insertion-ordered field -> value mapping. A Map is not modified
// after construction; every operation that changes entries builds a new one.
type Map struct {
	om *orderedmap.OrderedMap[string, any]
}

// NewMap builds a map from pairs in order. A repeated key keeps its first
// position and takes the last value.
func NewMap(pairs ...Pair) *Map {
	m := newMap(len(pairs))
	for _, p := range pairs {
		m.om.Set(p.Key, p.Value)
	}
	return m
}

// MapFrom builds a map from a Go map. Go maps carry no order, so keys are
// sorted to keep results deterministic.
func MapFrom(values map[string]any) *Map {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := newMap(len(keys))
	for _, k := range keys {
		m.om.Set(k, values[k])
	}
	return m
}

func newMap(capacity int) *Map {
	return &Map{om: orderedmap.New[string, any](orderedmap.WithCapacity[string, any](capacity))}
}

// Len returns the number of entries. A nil map is empty.
func (m *Map) Len() int {
	if m == nil || m.om == nil {
		return 0
	}
	return m.om.Len()
}

// Get returns the value stored for key.
func (m *Map) Get(key string) (any, bool) {
	if m == nil || m.om == nil {
		return nil, false
	}
	return m.om.Get(key)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	keys := make([]string, 0, m.Len())
	m.Each(func(k string, _ any) {
		keys = append(keys, k)
	})
	return keys
}

// Pairs returns the entries in insertion order.
func (m *Map) Pairs() []Pair {
	pairs := make([]Pair, 0, m.Len())
	m.Each(func(k string, v any) {
		pairs = append(pairs, Pair{Key: k, Value: v})
	})
	return pairs
}

// ToMap copies the entries into a plain Go map (order is lost).
func (m *Map) ToMap() map[string]any {
	out := make(map[string]any, m.Len())
	m.Each(func(k string, v any) {
		out[k] = v
	})
	return out
}

// MarshalJSON encodes the map as a JSON object in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil || m.om == nil {
		return []byte("{}"), nil
	}
	return m.om.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object keeping the document's key order.
func (m *Map) UnmarshalJSON(data []byte) error {
	om := orderedmap.New[string, any]()
	if err := om.UnmarshalJSON(data); err != nil {
		return err
	}
	m.om = om
	return nil
}

func (m *Map) clone() *Map {
	out := newMap(m.Len())
	m.Each(func(k string, v any) {
		out.om.Set(k, v)
	})
	return out
}

// Each calls fn for every entry in insertion order.
func (m *Map) Each(fn func(key string, value any)) {
	if m == nil || m.om == nil {
		return
	}
	for pair := m.om.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}
