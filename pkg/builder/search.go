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

package builder

import (
	"fmt"
	"log/slog"

	"github.com/kadirpekel/hectorkb/pkg/filter"
	"github.com/kadirpekel/hectorkb/pkg/observability"
	"github.com/kadirpekel/hectorkb/pkg/tool/searchtool"
)

// SearchToolBuilder provides a fluent API for building knowledge search
// tools.
//
// Example:
//
//	search, err := builder.NewSearchTool(kb).
//	    AgenticFilters(true).
//	    Filters(filter.FromMap(filter.NewMap(filter.P("region", "us")))).
//	    Build()
type SearchToolBuilder struct {
	cfg searchtool.Config
}

// NewSearchTool creates a search tool builder for kb.
func NewSearchTool(kb searchtool.Searcher) *SearchToolBuilder {
	if kb == nil {
		panic("knowledge cannot be nil")
	}
	return &SearchToolBuilder{cfg: searchtool.Config{Knowledge: kb}}
}

// Name overrides the tool name.
func (b *SearchToolBuilder) Name(name string) *SearchToolBuilder {
	b.cfg.Name = name
	return b
}

// Description overrides the generated tool description.
func (b *SearchToolBuilder) Description(desc string) *SearchToolBuilder {
	b.cfg.Description = desc
	return b
}

// Filters sets the user filters applied to every search.
func (b *SearchToolBuilder) Filters(set filter.Set) *SearchToolBuilder {
	b.cfg.Filters = set
	return b
}

// FiltersFrom parses user filters from a mapping or a list of
// {key, op, value} entries. Unrecognized entries are dropped.
func (b *SearchToolBuilder) FiltersFrom(raw any) *SearchToolBuilder {
	b.cfg.Filters, _ = filter.Parse(raw, b.cfg.Logger)
	return b
}

// AgenticFilters lets the model choose filters.
func (b *SearchToolBuilder) AgenticFilters(enabled bool) *SearchToolBuilder {
	b.cfg.AgenticFilters = enabled
	return b
}

// Limits overrides the knowledge base result limits. Zero keeps the
// knowledge base value.
func (b *SearchToolBuilder) Limits(defaultLimit, maxLimit int) *SearchToolBuilder {
	b.cfg.DefaultLimit = defaultLimit
	b.cfg.MaxLimit = maxLimit
	return b
}

// WithObservability sets the tracer and metrics. Either may be nil.
func (b *SearchToolBuilder) WithObservability(tracer *observability.Tracer, metrics *observability.Metrics) *SearchToolBuilder {
	b.cfg.Tracer = tracer
	b.cfg.Metrics = metrics
	return b
}

// WithLogger sets the logger.
func (b *SearchToolBuilder) WithLogger(log *slog.Logger) *SearchToolBuilder {
	b.cfg.Logger = log
	return b
}

// Build creates the search tool.
func (b *SearchToolBuilder) Build() (*searchtool.SearchTool, error) {
	return searchtool.New(b.cfg)
}

// MustBuild creates the search tool or panics on error.
func (b *SearchToolBuilder) MustBuild() *searchtool.SearchTool {
	t, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build search tool: %v", err))
	}
	return t
}
