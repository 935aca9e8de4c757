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

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kadirpekel/hectorkb/pkg/builder"
)

// MCPCmd serves the search and filter key tools of every knowledge base to
// MCP clients. Logs go to stderr or the log file, never to stdout.
type MCPCmd struct {
	Transport string `help:"MCP transport." default:"stdio" enum:"stdio,http"`
	Address   string `help:"Listen address of the HTTP transport." default:":8090"`
	Path      string `help:"Endpoint path of the HTTP transport." default:"/mcp"`
}

func (c *MCPCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	rt, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close()

	name := rt.Config().Name
	if name == "" {
		name = "hectorkb"
	}
	srv, err := builder.NewMCPServer().
		Name(name).
		Version(buildVersion()).
		Transport(c.Transport).
		Address(c.Address).
		Path(c.Path).
		WithTools(rt.Tools()...).
		WithLogger(slog.Default()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	return srv.Serve(ctx, os.Stdin, os.Stdout)
}
