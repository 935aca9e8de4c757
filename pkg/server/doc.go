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

// Package server exposes knowledge bases over a JSON HTTP API.
//
// Routes:
//
//	GET    /health
//	GET    /metrics                          (when metrics are enabled)
//	GET    /schema                           configuration JSON Schema
//	GET    /knowledge
//	GET    /knowledge/{kb}
//	GET    /knowledge/{kb}/sources
//	GET    /knowledge/{kb}/filters
//	POST   /knowledge/{kb}/search
//	GET    /knowledge/{kb}/content
//	POST   /knowledge/{kb}/content           (write)
//	DELETE /knowledge/{kb}/content           (write)
//	GET    /knowledge/{kb}/content/{id}
//	DELETE /knowledge/{kb}/content/{id}      (write)
//	*      /mcp                              (when server.mcp.enabled)
//
// Server adds the process lifecycle: it builds a runtime from the
// configuration, serves it, and swaps in a fresh runtime when the
// configuration changes.
package server
