// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package knowledge

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSource is returned when an insert request names no content.
	ErrNoSource = errors.New("insert request has no content")

	// ErrMultipleSources is returned when an insert request names more
	// than one kind of content.
	ErrMultipleSources = errors.New("insert request must name exactly one of text, path, url, topics or remote_content")

	// ErrEmptyContent is returned when a document yields no text.
	ErrEmptyContent = errors.New("document has no text")
)

// ContentError describes a failure to ingest one content item.
type ContentError struct {
	Knowledge string
	Content   string // content name or path
	Stage     string // read, chunk, embed, store
	Err       error
}

func (e *ContentError) Error() string {
	return fmt.Sprintf("[%s] %s %s: %v", e.Knowledge, e.Stage, e.Content, e.Err)
}

func (e *ContentError) Unwrap() error {
	return e.Err
}

// SearchError describes a failed search.
type SearchError struct {
	Knowledge string
	Component string // embedder or vector_store
	Query     string
	Err       error
}

func (e *SearchError) Error() string {
	query := e.Query
	if len(query) > 50 {
		query = query[:50] + "..."
	}
	return fmt.Sprintf("[%s] %s search failed (query: %q): %v", e.Knowledge, e.Component, query, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// ReaderError is returned when a document cannot be converted to text.
type ReaderError struct {
	Reader string
	Name   string
	Err    error
}

func (e *ReaderError) Error() string {
	return fmt.Sprintf("%s reader failed for %s: %v", e.Reader, e.Name, e.Err)
}

func (e *ReaderError) Unwrap() error {
	return e.Err
}
