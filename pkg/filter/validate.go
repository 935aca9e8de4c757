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

import "fmt"

// Validate keeps the entries of set whose key is in valid and reports the
// rest. The result always has the shape of the input and is freshly
// allocated. Invalid keys are listed once each, in first-seen order.
func Validate(set Set, valid Keys) (Set, []string) {
	invalid := []string{}
	seen := make(map[string]struct{})
	reject := func(key string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		invalid = append(invalid, key)
	}

	switch set.kind {
	case KindAbsent:
		return Absent(), invalid
	case KindMap:
		kept := newMap(set.m.Len())
		set.m.Each(func(k string, v any) {
			if valid.Has(k) {
				kept.om.Set(k, v)
				return
			}
			reject(k)
		})
		return Set{kind: KindMap, m: kept}, invalid
	case KindList:
		kept := make([]Expr, 0, len(set.exprs))
		for _, e := range set.exprs {
			if valid.Has(e.Key) {
				kept = append(kept, e)
				continue
			}
			reject(e.Key)
		}
		return Set{kind: KindList, exprs: kept}, invalid
	default:
		panic(fmt.Sprintf("filter: unknown set kind %d", set.kind))
	}
}
