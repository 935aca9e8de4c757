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

// Package mcpserver serves knowledge base tools over the Model Context
// Protocol, on stdio or streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kadirpekel/hectorkb/pkg/tool"
)

// Transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config configures the MCP server.
type Config struct {
	// Name and Version are reported to clients during initialization.
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Transport is "stdio" (default) or "http".
	Transport string `yaml:"transport,omitempty" json:"transport,omitempty"`

	// Address is the listen address of the HTTP transport.
	Address string `yaml:"address,omitempty" json:"address,omitempty"`

	// Path is the endpoint path of the HTTP transport.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = "hectorkb"
	}
	if c.Version == "" {
		c.Version = "dev"
	}
	if c.Transport == "" {
		c.Transport = TransportStdio
	}
	if c.Address == "" {
		c.Address = ":8081"
	}
	if c.Path == "" {
		c.Path = "/mcp"
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportHTTP:
		return nil
	default:
		return fmt.Errorf("unsupported MCP transport %q (use stdio or http)", c.Transport)
	}
}

// TextCaller is implemented by tools that render their own text result,
// failures included.
type TextCaller interface {
	CallText(ctx context.Context, args map[string]any) string
}

// Server exposes tools to MCP clients.
type Server struct {
	cfg   Config
	mcp   *server.MCPServer
	names []string
	log   *slog.Logger
}

// New registers tools on a new MCP server.
func New(cfg Config, log *slog.Logger, tools ...tool.CallableTool) (*Server, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg: cfg,
		mcp: server.NewMCPServer(cfg.Name, cfg.Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		log: log.With("component", "mcp"),
	}

	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if seen[t.Name()] {
			return nil, fmt.Errorf("duplicate MCP tool %q", t.Name())
		}
		seen[t.Name()] = true

		def, err := definition(t)
		if err != nil {
			return nil, err
		}
		s.mcp.AddTool(def, s.handler(t))
		s.names = append(s.names, t.Name())
	}
	return s, nil
}

// Tools returns the registered tool names in registration order.
func (s *Server) Tools() []string { return s.names }

// MCP returns the underlying server, for in-process clients.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Handler returns the streamable HTTP handler, for mounting on another
// router.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(s.cfg.Path))
}

// Serve runs the configured transport until ctx is done.
func (s *Server) Serve(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	switch s.cfg.Transport {
	case TransportHTTP:
		return s.serveHTTP(ctx)
	default:
		s.log.Info("Serving MCP on stdio", "tools", s.names)
		err := server.NewStdioServer(s.mcp).Listen(ctx, stdin, stdout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

func (s *Server) serveHTTP(ctx context.Context) error {
	httpSrv := server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(s.cfg.Path))

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Serving MCP over HTTP", "address", s.cfg.Address, "path", s.cfg.Path, "tools", s.names)
		errCh <- httpSrv.Start(s.cfg.Address)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func definition(t tool.CallableTool) (mcp.Tool, error) {
	schema := t.Schema()
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return mcp.Tool{}, fmt.Errorf("failed to encode schema of %s: %w", t.Name(), err)
	}
	def := mcp.NewToolWithRawSchema(t.Name(), t.Description(), raw)
	def.Annotations = mcp.ToolAnnotation{
		ReadOnlyHint:  mcp.ToBoolPtr(!t.RequiresApproval()),
		OpenWorldHint: mcp.ToBoolPtr(false),
	}
	return def, nil
}

func (s *Server) handler(t tool.CallableTool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		if tc, ok := t.(TextCaller); ok {
			return mcp.NewToolResultText(tc.CallText(ctx, args)), nil
		}

		out, err := t.Call(ctx, args)
		if err != nil {
			s.log.Warn("MCP tool call failed", "tool", t.Name(), "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}
