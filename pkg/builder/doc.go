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

// Package builder provides fluent builder APIs for assembling knowledge
// bases in code.
//
// The builders wrap the config structs of the underlying packages, so the
// same defaults and validation apply whether a knowledge base comes from a
// YAML file or from Go:
//
//	provider := builder.NewVectorProvider("chromem").MustBuild()
//	emb := builder.NewEmbedder("ollama").Model("nomic-embed-text").MustBuild()
//
//	kb := builder.NewKnowledge("company").
//	    Description("Sales reports and policies").
//	    WithVectorProvider(provider).
//	    WithEmbedder(emb).
//	    MustBuild()
//
//	search := builder.NewSearchTool(kb).
//	    AgenticFilters(true).
//	    MustBuild()
//
//	srv, err := builder.NewMCPServer().WithTools(search).Build()
package builder
