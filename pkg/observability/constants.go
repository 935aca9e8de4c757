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

package observability

const (
	DefaultServiceName  = "hectorkb"
	DefaultSamplingRate = 1.0
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultMetricsPath  = "/metrics"
)

// Span names.
const (
	SpanInsert      = "knowledge.insert"
	SpanInsertItem  = "knowledge.insert_item"
	SpanSearch      = "knowledge.search"
	SpanToolCall    = "tool.call"
	SpanHTTPRequest = "http.request"
)

// Attribute keys.
const (
	AttrKnowledgeName   = "knowledge.name"
	AttrContentID       = "knowledge.content.id"
	AttrContentName     = "knowledge.content.name"
	AttrContentSource   = "knowledge.content.source"
	AttrChunkCount      = "knowledge.chunk.count"
	AttrSearchQuery     = "knowledge.search.query"
	AttrSearchLimit     = "knowledge.search.limit"
	AttrSearchResults   = "knowledge.search.results"
	AttrFilterKind      = "knowledge.filter.kind"
	AttrFilterCount     = "knowledge.filter.count"
	AttrInvalidKeys     = "knowledge.filter.invalid_keys"
	AttrToolName        = "tool.name"
	AttrErrorType       = "error.type"
	AttrErrorMessage    = "error.message"
	AttrHTTPMethod      = "http.method"
	AttrHTTPPath        = "http.path"
	AttrHTTPStatusCode  = "http.status_code"
	AttrHTTPRequestSize = "http.request_size"
)
