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

// Reconcile combines the filters inferred by an agent with the filters
// supplied by the caller.
//
//   - one side absent: the other side is returned as is
//   - map + map: merged mapping, the user value wins on a shared key
//   - list + list: agentic predicates followed by user predicates
//   - map + list: the mapping becomes equality predicates and the two are
//     concatenated agentic-first, giving a list
//
// Reconcile never fails.
func Reconcile(agentic, user Set) Set {
	if agentic.IsAbsent() {
		return user
	}
	if user.IsAbsent() {
		return agentic
	}

	switch agentic.kind {
	case KindMap:
		switch user.kind {
		case KindMap:
			merged := agentic.m.clone()
			user.m.Each(func(k string, v any) {
				merged.om.Set(k, v)
			})
			return Set{kind: KindMap, m: merged}
		case KindList:
			return concat(agentic, user)
		default:
			panic(fmt.Sprintf("filter: unknown set kind %d", user.kind))
		}
	case KindList:
		switch user.kind {
		case KindMap, KindList:
			return concat(agentic, user)
		default:
			panic(fmt.Sprintf("filter: unknown set kind %d", user.kind))
		}
	default:
		panic(fmt.Sprintf("filter: unknown set kind %d", agentic.kind))
	}
}

func concat(first, second Set) Set {
	a, b := first.Exprs(), second.Exprs()
	out := make([]Expr, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return Set{kind: KindList, exprs: out}
}
