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

	"github.com/kadirpekel/hectorkb/pkg/mcpserver"
	"github.com/kadirpekel/hectorkb/pkg/tool"
)

// MCPServerBuilder provides a fluent API for serving tools over MCP.
//
// Example:
//
//	srv, err := builder.NewMCPServer().
//	    Transport("http").
//	    Address(":8081").
//	    WithTools(search).
//	    Build()
type MCPServerBuilder struct {
	cfg   mcpserver.Config
	tools []tool.CallableTool
	log   *slog.Logger
}

// NewMCPServer creates a new MCP server builder. It serves on stdio
// unless a transport is set.
func NewMCPServer() *MCPServerBuilder {
	return &MCPServerBuilder{}
}

// Name sets the server name reported to clients.
func (b *MCPServerBuilder) Name(name string) *MCPServerBuilder {
	b.cfg.Name = name
	return b
}

// Version sets the server version reported to clients.
func (b *MCPServerBuilder) Version(version string) *MCPServerBuilder {
	b.cfg.Version = version
	return b
}

// Transport sets "stdio" or "http".
func (b *MCPServerBuilder) Transport(transport string) *MCPServerBuilder {
	b.cfg.Transport = transport
	return b
}

// Address sets the HTTP listen address.
func (b *MCPServerBuilder) Address(addr string) *MCPServerBuilder {
	b.cfg.Address = addr
	return b
}

// Path sets the HTTP endpoint path.
func (b *MCPServerBuilder) Path(path string) *MCPServerBuilder {
	b.cfg.Path = path
	return b
}

// WithTools adds tools to serve.
func (b *MCPServerBuilder) WithTools(tools ...tool.CallableTool) *MCPServerBuilder {
	b.tools = append(b.tools, tools...)
	return b
}

// WithLogger sets the logger.
func (b *MCPServerBuilder) WithLogger(log *slog.Logger) *MCPServerBuilder {
	b.log = log
	return b
}

// Build creates the server.
func (b *MCPServerBuilder) Build() (*mcpserver.Server, error) {
	if len(b.tools) == 0 {
		return nil, fmt.Errorf("at least one tool is required")
	}
	return mcpserver.New(b.cfg, b.log, b.tools...)
}
