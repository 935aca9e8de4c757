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
	"log/slog"
	"reflect"
	"sort"
	"strings"
)

// Dropped records an input entry Parse could not classify.
type Dropped struct {
	// Index is the position in a list input, or -1 for mapping entries and
	// for inputs rejected as a whole.
	Index  int    `json:"index"`
	Key    string `json:"key,omitempty"`
	Entry  string `json:"entry"`
	Reason string `json:"reason"`
}

// Parse turns loosely typed filter input (decoded tool-call JSON, a raw
// JSON string, or already typed values) into a Set.
//
// Objects become mappings and arrays become predicate lists, except that a
// lone {"key","op","value"} object is read as a one-predicate list. Array items may
// be {"key","op","value"} objects, Expr values or plain {"field": value}
// objects, which are folded into equality predicates. Every entry that fits
// none of these is dropped, logged at warn level on log and returned.
func Parse(raw any, log *slog.Logger) (Set, []Dropped) {
	if log == nil {
		log = slog.Default()
	}
	p := &parser{log: log}
	set := p.parse(raw)
	return set, p.dropped
}

type parser struct {
	log     *slog.Logger
	dropped []Dropped
}

func (p *parser) drop(index int, key string, entry any, reason string) {
	d := Dropped{Index: index, Key: key, Entry: describe(entry), Reason: reason}
	p.dropped = append(p.dropped, d)
	p.log.Warn("Dropping unrecognized filter entry",
		"index", d.Index,
		"key", d.Key,
		"entry", d.Entry,
		"reason", d.Reason)
}

func (p *parser) parse(raw any) Set {
	switch v := raw.(type) {
	case nil:
		return Absent()
	case Set:
		return v
	case *Set:
		if v == nil {
			return Absent()
		}
		return *v
	case *Map:
		return p.object(v)
	case map[string]any:
		return p.object(MapFrom(v))
	case map[string]string:
		pairs := make([]Pair, 0, len(v))
		for _, k := range sortedKeys(v) {
			pairs = append(pairs, P(k, v[k]))
		}
		return p.mapping(pairs)
	case []Expr:
		return p.list(toAnySlice(v))
	case []map[string]any:
		return p.list(toAnySlice(v))
	case []any:
		return p.list(v)
	case json.RawMessage:
		return p.fromJSON([]byte(v))
	case []byte:
		return p.fromJSON(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return Absent()
		}
		return p.fromJSON([]byte(v))
	default:
		p.drop(-1, "", raw, fmt.Sprintf("unsupported filter type %T", raw))
		return Absent()
	}
}

func (p *parser) fromJSON(data []byte) Set {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Absent()
	}
	switch trimmed[0] {
	case '{':
		m := newMap(0)
		if err := m.UnmarshalJSON(trimmed); err != nil {
			p.drop(-1, "", string(trimmed), "invalid JSON object: "+err.Error())
			return Absent()
		}
		return p.object(m)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			p.drop(-1, "", string(trimmed), "invalid JSON array: "+err.Error())
			return Absent()
		}
		decoded := make([]any, len(items))
		for i, item := range items {
			decoded[i] = decodeItem(item)
		}
		return p.list(decoded)
	default:
		p.drop(-1, "", string(trimmed), "filters must be a JSON object or array")
		return Absent()
	}
}

// decodeItem keeps object key order so plain {"field": value} items fold
// into predicates in document order.
func decodeItem(item json.RawMessage) any {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		m := newMap(0)
		if err := m.UnmarshalJSON(trimmed); err == nil {
			return m
		}
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(trimmed)
	}
	return v
}

// object reads a lone {"key","op","value"} object as a one-predicate list;
// any other object is a mapping.
func (p *parser) object(m *Map) Set {
	if isPredicate(m.Pairs()) {
		return p.list([]any{m})
	}
	return p.mapping(m.Pairs())
}

func isPredicate(pairs []Pair) bool {
	hasKey, hasValue := false, false
	for _, pair := range pairs {
		switch pair.Key {
		case "key":
			hasKey = isString(pair.Value)
		case "value":
			hasValue = true
		case "op":
		default:
			return false
		}
	}
	return hasKey && hasValue
}

func (p *parser) mapping(pairs []Pair) Set {
	kept := newMap(len(pairs))
	for _, pair := range pairs {
		if !isScalar(pair.Value) {
			p.drop(-1, pair.Key, pair.Value, "mapping filter values must be scalars")
			continue
		}
		kept.om.Set(pair.Key, pair.Value)
	}
	return Set{kind: KindMap, m: kept}
}

func (p *parser) list(items []any) Set {
	exprs := make([]Expr, 0, len(items))
	for i, item := range items {
		exprs = append(exprs, p.item(i, item)...)
	}
	return Set{kind: KindList, exprs: exprs}
}

// item classifies one list entry. It returns no predicates when the entry
// was dropped.
func (p *parser) item(index int, item any) []Expr {
	switch v := item.(type) {
	case Expr:
		if !v.Op.IsValid() {
			p.drop(index, v.Key, v, fmt.Sprintf("unsupported operator %q", v.Op))
			return nil
		}
		return []Expr{v}
	case *Map:
		return p.fields(index, v.Pairs())
	case map[string]any:
		return p.fields(index, MapFrom(v).Pairs())
	default:
		p.drop(index, "", item, fmt.Sprintf("expected a predicate object, got %T", item))
		return nil
	}
}

func (p *parser) fields(index int, pairs []Pair) []Expr {
	if len(pairs) == 0 {
		p.drop(index, "", "{}", "empty predicate object")
		return nil
	}

	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		fields[pair.Key] = pair.Value
	}

	if rawKey, ok := fields["key"]; ok {
		key, ok := rawKey.(string)
		if !ok || key == "" {
			p.drop(index, "", fields, "predicate key must be a non-empty string")
			return nil
		}
		opName, _ := fields["op"].(string)
		if rawOp, has := fields["op"]; has && !isString(rawOp) {
			p.drop(index, key, fields, "predicate op must be a string")
			return nil
		}
		op, known := ParseOp(opName)
		if !known {
			p.drop(index, key, fields, fmt.Sprintf("unsupported operator %q", opName))
			return nil
		}
		value, hasValue := fields["value"]
		if !hasValue {
			p.drop(index, key, fields, "predicate has no value")
			return nil
		}
		if op == OpIn {
			values, isList := asList(value)
			if !isList {
				values = []any{value}
			}
			return []Expr{IN(key, values...)}
		}
		return []Expr{{Key: key, Op: op, Value: value}}
	}

	exprs := make([]Expr, 0, len(pairs))
	for _, pair := range pairs {
		if !isScalar(pair.Value) {
			p.drop(index, pair.Key, pair.Value, "plain filter object values must be scalars")
			continue
		}
		exprs = append(exprs, EQ(pair.Key, pair.Value))
	}
	return exprs
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

func asList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if _, isBytes := v.([]byte); isBytes {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toAnySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func describe(entry any) string {
	switch v := entry.(type) {
	case string:
		return v
	case *Map:
		b, err := v.MarshalJSON()
		if err == nil {
			return string(b)
		}
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf("%v", entry)
	}
	return string(b)
}
