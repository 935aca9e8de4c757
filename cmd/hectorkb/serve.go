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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kadirpekel/hectorkb/pkg/config"
	"github.com/kadirpekel/hectorkb/pkg/server"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Host  string `help:"Host to bind. Overrides the config."`
	Port  int    `help:"Port to listen on. Overrides the config."`
	Watch bool   `help:"Reload when the config changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srv *server.Server
	cfg, loader, err := cli.loadConfig(ctx, config.WithOnChange(func(next *config.Config) {
		c.override(next)
		if srv != nil {
			srv.Reload(next)
		}
	}))
	if err != nil {
		return err
	}
	c.override(cfg)

	opts := server.Options{
		Config:      cfg,
		HTTPOptions: []server.HTTPServerOption{server.WithVersion(buildVersion())},
	}
	if c.Watch {
		opts.ConfigLoader = loader
	} else {
		defer loader.Close()
	}

	srv, err = server.New(opts)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}

	printBanner(cfg, srv)

	waitErr := make(chan error, 1)
	go func() { waitErr <- srv.Wait() }()

	select {
	case err := <-waitErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return srv.Wait()
}

func (c *ServeCmd) override(cfg *config.Config) {
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
}

func printBanner(cfg *config.Config, srv *server.Server) {
	addr := cfg.Server.Address()
	rt := srv.Runtime()

	fmt.Printf("\nhectorkb %s ready\n", buildVersion())
	fmt.Printf("   API:        http://%s/knowledge\n", addr)
	fmt.Printf("   Health:     http://%s/health\n", addr)
	if cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:    http://%s%s\n", addr, cfg.Observability.Metrics.Endpoint)
	}
	if cfg.Observability.Tracing.Enabled {
		fmt.Printf("   Tracing:    %s (%s)\n", cfg.Observability.Tracing.Exporter, cfg.Observability.Tracing.Endpoint)
	}
	if cfg.Server.MCP.Enabled {
		fmt.Printf("   MCP:        http://%s%s\n", addr, cfg.Server.MCP.Path)
	}
	if rt != nil {
		fmt.Println("\n   Knowledge bases:")
		for _, name := range rt.KnowledgeNames() {
			kb, _ := rt.Knowledge(name)
			fmt.Printf("     - %s (%d content sources)\n", name, len(kb.Sources()))
		}
		slog.Debug("Tools registered", "tools", rt.ToolNames())
	}
	fmt.Println("\nPress Ctrl+C to stop")
}
