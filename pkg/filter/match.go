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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Match evaluates set against a document's metadata. Every predicate must
// hold; an absent set matches everything. A missing field fails every
// operator except ne.
func Match(set Set, metadata map[string]any) bool {
	for _, e := range set.Exprs() {
		if !MatchExpr(e, metadata) {
			return false
		}
	}
	return true
}

// MatchExpr evaluates a single predicate.
func MatchExpr(e Expr, metadata map[string]any) bool {
	actual, ok := metadata[e.Key]
	if !ok {
		return e.Op == OpNe
	}

	switch e.Op {
	case OpEq:
		return equalValues(actual, e.Value)
	case OpNe:
		return !equalValues(actual, e.Value)
	case OpGt:
		c, ok := compareValues(actual, e.Value)
		return ok && c > 0
	case OpGte:
		c, ok := compareValues(actual, e.Value)
		return ok && c >= 0
	case OpLt:
		c, ok := compareValues(actual, e.Value)
		return ok && c < 0
	case OpLte:
		c, ok := compareValues(actual, e.Value)
		return ok && c <= 0
	case OpIn:
		candidates, isList := asList(e.Value)
		if !isList {
			return equalValues(actual, e.Value)
		}
		for _, c := range candidates {
			if equalValues(actual, c) {
				return true
			}
		}
		return false
	case OpContains:
		if items, isList := asList(actual); isList {
			for _, item := range items {
				if equalValues(item, e.Value) {
					return true
				}
			}
			return false
		}
		s, isStr := actual.(string)
		return isStr && strings.Contains(s, fmt.Sprint(e.Value))
	default:
		return false
	}
}

// equalValues compares across the representations metadata goes through:
// numbers from JSON, numbers stored as strings, booleans stored as strings.
func equalValues(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	if ab, ok := toBool(a); ok {
		if bb, ok := toBool(b); ok {
			return ab == bb
		}
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareValues(a, b any) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	default:
		return false, false
	}
}
