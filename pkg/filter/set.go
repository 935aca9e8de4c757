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
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies the shape of a filter set.
type Kind int

const (
	KindAbsent Kind = iota
	KindMap
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Set is a filter set: absent, a mapping, or a list of predicates.
// The zero value is absent.
type Set struct {
	kind  Kind
	m     *Map
	exprs []Expr
}

// Absent returns the empty filter set.
func Absent() Set { return Set{} }

// FromMap returns a mapping-shaped set holding a copy of m. A nil map gives
// an empty mapping, not an absent set.
func FromMap(m *Map) Set {
	return Set{kind: KindMap, m: m.clone()}
}

// FromList returns a list-shaped set holding a copy of exprs.
func FromList(exprs []Expr) Set {
	return Set{kind: KindList, exprs: append([]Expr{}, exprs...)}
}

// Kind returns the shape of the set.
func (s Set) Kind() Kind { return s.kind }

// IsAbsent reports whether no filter was given.
func (s Set) IsAbsent() bool { return s.kind == KindAbsent }

// Len returns the number of entries (map pairs or predicates).
func (s Set) Len() int {
	switch s.kind {
	case KindAbsent:
		return 0
	case KindMap:
		return s.m.Len()
	case KindList:
		return len(s.exprs)
	default:
		panic(fmt.Sprintf("filter: unknown set kind %d", s.kind))
	}
}

// Keys returns the referenced field names in order, with repeats for lists.
func (s Set) Keys() []string {
	switch s.kind {
	case KindAbsent:
		return nil
	case KindMap:
		return s.m.Keys()
	case KindList:
		keys := make([]string, len(s.exprs))
		for i, e := range s.exprs {
			keys[i] = e.Key
		}
		return keys
	default:
		panic(fmt.Sprintf("filter: unknown set kind %d", s.kind))
	}
}

// Map returns the mapping of a map-shaped set, or nil.
func (s Set) Map() *Map {
	if s.kind != KindMap {
		return nil
	}
	return s.m.clone()
}

// Exprs returns the set as predicates. A mapping becomes one equality
// predicate per entry in insertion order.
func (s Set) Exprs() []Expr {
	switch s.kind {
	case KindAbsent:
		return nil
	case KindMap:
		exprs := make([]Expr, 0, s.m.Len())
		s.m.Each(func(k string, v any) {
			exprs = append(exprs, EQ(k, v))
		})
		return exprs
	case KindList:
		return append([]Expr{}, s.exprs...)
	default:
		panic(fmt.Sprintf("filter: unknown set kind %d", s.kind))
	}
}

// AsMap returns an equivalent mapping when every predicate is an equality
// on a distinct key. Providers that only understand equality use it.
func (s Set) AsMap() (*Map, bool) {
	switch s.kind {
	case KindAbsent:
		return newMap(0), true
	case KindMap:
		return s.m.clone(), true
	case KindList:
		m := newMap(len(s.exprs))
		for _, e := range s.exprs {
			if !e.IsEquality() {
				return nil, false
			}
			if _, dup := m.Get(e.Key); dup {
				return nil, false
			}
			m.om.Set(e.Key, e.Value)
		}
		return m, true
	default:
		panic(fmt.Sprintf("filter: unknown set kind %d", s.kind))
	}
}

func (s Set) String() string {
	switch s.kind {
	case KindAbsent:
		return "<absent>"
	case KindMap:
		parts := make([]string, 0, s.m.Len())
		s.m.Each(func(k string, v any) {
			parts = append(parts, fmt.Sprintf("%s: %s", k, formatValue(v)))
		})
		return "{" + strings.Join(parts, ", ") + "}"
	case KindList:
		parts := make([]string, len(s.exprs))
		for i, e := range s.exprs {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		panic(fmt.Sprintf("filter: unknown set kind %d", s.kind))
	}
}

// MarshalJSON encodes absent as null, a map as an object and a list as an
// array of {"key","op","value"} objects.
func (s Set) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case KindAbsent:
		return []byte("null"), nil
	case KindMap:
		return s.m.MarshalJSON()
	case KindList:
		return json.Marshal(s.exprs)
	default:
		return nil, fmt.Errorf("filter: unknown set kind %d", s.kind)
	}
}

// UnmarshalJSON is the strict counterpart of MarshalJSON. Tool arguments,
// which are looser, go through Parse instead.
func (s *Set) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*s = Absent()
		return nil
	case trimmed[0] == '{':
		m := newMap(0)
		if err := m.UnmarshalJSON(trimmed); err != nil {
			return fmt.Errorf("failed to decode filter map: %w", err)
		}
		*s = FromMap(m)
		return nil
	case trimmed[0] == '[':
		var exprs []Expr
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&exprs); err != nil {
			return fmt.Errorf("failed to decode filter list: %w", err)
		}
		for i := range exprs {
			if exprs[i].Key == "" {
				return fmt.Errorf("filter entry %d: missing key", i)
			}
			if exprs[i].Op == "" {
				exprs[i].Op = OpEq
			}
			if !exprs[i].Op.IsValid() {
				return fmt.Errorf("filter entry %d: unsupported operator %q", i, exprs[i].Op)
			}
		}
		*s = FromList(exprs)
		return nil
	default:
		return fmt.Errorf("filter must be an object, an array or null, got %s", string(trimmed))
	}
}
