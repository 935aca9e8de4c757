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

// Command hectorkb serves and manages knowledge bases.
//
// Usage:
//
//	hectorkb serve --config hectorkb.yaml
//	hectorkb insert --knowledge company --path ./docs
//	hectorkb search "quarterly revenue" --filters '{"region": "eu"}'
//	hectorkb mcp --transport stdio
//	hectorkb push prod.yaml --config-provider etcd --config /hectorkb/config
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/hectorkb"
	"github.com/kadirpekel/hectorkb/pkg/config"
	"github.com/kadirpekel/hectorkb/pkg/config/provider"
	"github.com/kadirpekel/hectorkb/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the knowledge HTTP server."`
	Insert   InsertCmd   `cmd:"" help:"Insert content into a knowledge base."`
	Search   SearchCmd   `cmd:"" help:"Search a knowledge base."`
	Filters  FiltersCmd  `cmd:"" help:"List the filter keys of a knowledge base."`
	MCP      MCPCmd      `cmd:"" name:"mcp" help:"Serve the search tools over MCP."`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration."`
	Schema   SchemaCmd   `cmd:"" help:"Print the JSON Schema of the configuration."`
	Push     PushCmd     `cmd:"" help:"Publish a config file to the config source."`

	Config          string   `short:"c" help:"Config file path, or KV key for remote providers." default:"hectorkb.yaml" env:"HECTORKB_CONFIG"`
	ConfigProvider  string   `name:"config-provider" help:"Config source (file, consul, etcd, zookeeper)." default:"file" enum:"file,consul,etcd,zookeeper,zk"`
	ConfigEndpoints []string `name:"config-endpoints" help:"Addresses of the consul, etcd or zookeeper config source." sep:","`

	LogLevel  string `help:"Log level (debug, info, warn, error). Overrides the config." env:"LOG_LEVEL"`
	LogFile   string `help:"Log file path (empty = stderr). Overrides the config." env:"LOG_FILE"`
	LogFormat string `help:"Log format (simple, verbose). Overrides the config." env:"LOG_FORMAT"`

	logCleanup func()
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(hectorkb.GetVersion())
	return nil
}

func buildVersion() string {
	return hectorkb.GetVersion().Version
}

// loadConfig reads the configuration and re-initializes the logger from its
// logger section, with command-line flags taking precedence.
func (c *CLI) loadConfig(ctx context.Context, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	pt, err := provider.ParseType(c.ConfigProvider)
	if err != nil {
		return nil, nil, err
	}

	cfg, loader, err := config.LoadConfig(ctx, provider.ProviderConfig{
		Type:      pt,
		Path:      c.Config,
		Endpoints: c.ConfigEndpoints,
	}, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config %s: %w", c.Config, err)
	}

	if err := c.initLogger(&cfg.Logger); err != nil {
		_ = loader.Close()
		return nil, nil, err
	}
	slog.Debug("Loaded configuration", "source", pt, "path", c.Config)
	return cfg, loader, nil
}

func (c *CLI) initLogger(base *config.LoggerConfig) error {
	lc := config.LoggerConfig{}
	if base != nil {
		lc = *base
	}
	if c.LogLevel != "" {
		lc.Level = c.LogLevel
	}
	if c.LogFile != "" {
		lc.File = c.LogFile
	}
	if c.LogFormat != "" {
		lc.Format = c.LogFormat
	}

	_, cleanup, err := logger.FromConfig(&lc)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.closeLog()
	c.logCleanup = cleanup
	return nil
}

func (c *CLI) closeLog() {
	if c.logCleanup != nil {
		c.logCleanup()
		c.logCleanup = nil
	}
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("hectorkb"),
		kong.Description("Knowledge bases with metadata-filtered search for agents."),
		kong.UsageOnError(),
	)

	if err := cli.initLogger(nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	err := ctx.Run(&cli)
	cli.closeLog()
	ctx.FatalIfErrorf(err)
}
