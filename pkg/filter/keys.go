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

import "sort"

// Keys is the set of metadata field names known to exist in a corpus.
type Keys map[string]struct{}

// NewKeys returns a set holding names.
func NewKeys(names ...string) Keys {
	k := make(Keys, len(names))
	for _, n := range names {
		k[n] = struct{}{}
	}
	return k
}

// Has reports whether name is in the set. A nil set has no members.
func (k Keys) Has(name string) bool {
	_, ok := k[name]
	return ok
}

// Add inserts names into the set.
func (k Keys) Add(names ...string) {
	for _, n := range names {
		k[n] = struct{}{}
	}
}

// Len returns the number of keys.
func (k Keys) Len() int { return len(k) }

// Sorted returns the keys in lexical order.
func (k Keys) Sorted() []string {
	out := make([]string, 0, len(k))
	for n := range k {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
