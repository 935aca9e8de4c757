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

// Package filter models knowledge search filters.
//
// A filter set is a tagged union with three shapes:
//
//   - absent: no filtering
//   - map: field -> required value (equality only, one entry per field)
//   - list: predicate expressions combined with AND
//
// The shapes never change implicitly. Validate removes entries whose keys are
// unknown to the corpus and keeps the shape; Reconcile combines the filters
// inferred by an agent with the filters supplied by the caller and normalizes
// a map into equality predicates only when the two shapes differ.
//
// Example:
//
//	agentic := filter.FromMap(filter.NewMap(filter.P("quarter", "Q1")))
//	user := filter.FromList([]filter.Expr{filter.EQ("region", "north_america")})
//	merged := filter.Reconcile(agentic, user)
//	// merged: [quarter == "Q1", region == "north_america"]
package filter

import (
	"fmt"
	"strings"
)

// Op is a comparison operator of a predicate expression.
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
)

// IsValid reports whether op is a supported operator.
func (op Op) IsValid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpContains:
		return true
	}
	return false
}

// Symbol returns the infix form used by String.
func (op Op) Symbol() string {
	switch op {
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpIn:
		return "in"
	case OpContains:
		return "contains"
	default:
		return string(op)
	}
}

// ParseOp accepts the canonical names plus the common aliases agents tend to
// emit ("==", "$eq", "EQ", ...). An empty string means equality.
func ParseOp(s string) (Op, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "eq", "=", "==", "$eq", "equals":
		return OpEq, true
	case "ne", "!=", "<>", "$ne", "not_equals":
		return OpNe, true
	case "gt", ">", "$gt":
		return OpGt, true
	case "gte", ">=", "$gte", "ge":
		return OpGte, true
	case "lt", "<", "$lt":
		return OpLt, true
	case "lte", "<=", "$lte", "le":
		return OpLte, true
	case "in", "$in":
		return OpIn, true
	case "contains", "$contains":
		return OpContains, true
	default:
		return "", false
	}
}

// Expr is a single predicate over a metadata field. Values of Expr are
// immutable; the constructors below are the intended way to build them.
type Expr struct {
	Key   string `json:"key"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// EQ matches documents whose field equals value.
func EQ(key string, value any) Expr { return Expr{Key: key, Op: OpEq, Value: value} }

// NE matches documents whose field differs from value.
func NE(key string, value any) Expr { return Expr{Key: key, Op: OpNe, Value: value} }

// GT matches documents whose field is greater than value.
func GT(key string, value any) Expr { return Expr{Key: key, Op: OpGt, Value: value} }

// GTE matches documents whose field is greater than or equal to value.
func GTE(key string, value any) Expr { return Expr{Key: key, Op: OpGte, Value: value} }

// LT matches documents whose field is less than value.
func LT(key string, value any) Expr { return Expr{Key: key, Op: OpLt, Value: value} }

// LTE matches documents whose field is less than or equal to value.
func LTE(key string, value any) Expr { return Expr{Key: key, Op: OpLte, Value: value} }

// IN matches documents whose field equals one of values.
func IN(key string, values ...any) Expr { return Expr{Key: key, Op: OpIn, Value: values} }

// Contains matches documents whose field (string or list) contains value.
func Contains(key string, value any) Expr { return Expr{Key: key, Op: OpContains, Value: value} }

// IsEquality reports whether the predicate is a plain equality test.
func (e Expr) IsEquality() bool { return e.Op == OpEq }

func (e Expr) String() string {
	return fmt.Sprintf("%s %s %s", e.Key, e.Op.Symbol(), formatValue(e.Value))
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case nil:
		return "null"
	default:
		return fmt.Sprint(val)
	}
}
