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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/hectorkb/pkg/config"
)

// ValidateCmd validates the configuration.
type ValidateCmd struct {
	Format      string `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`
	Strict      bool   `help:"Reject unknown fields and type mismatches."`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, loader, err := cli.loadConfig(context.Background(), config.WithStrict(c.Strict))
	if err != nil {
		return printLoadError(c.Format, cli.Config, err)
	}
	defer loader.Close()

	if c.PrintConfig {
		return printExpandedConfig(c.Format, cli.Config, cfg)
	}

	printSuccess(c.Format, cli.Config, cfg)
	return nil
}

// ValidationError is one entry of the JSON output.
type ValidationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type jsonOutput struct {
	Valid     bool              `json:"valid"`
	File      string            `json:"file"`
	Knowledge []string          `json:"knowledge,omitempty"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

func printLoadError(format, file string, err error) error {
	switch format {
	case "json":
		_ = printJSON(jsonOutput{File: file, Errors: []ValidationError{{Type: "load", Message: err.Error()}}})
	case "verbose":
		fmt.Fprintf(os.Stderr, "Configuration Load Error\n")
		fmt.Fprintf(os.Stderr, "========================\n\n")
		fmt.Fprintf(os.Stderr, "File:    %s\n", file)
		fmt.Fprintf(os.Stderr, "Error:   %s\n", err.Error())
	default:
		fmt.Fprintf(os.Stderr, "%s: load error: %s\n", file, err.Error())
	}
	return fmt.Errorf("config load failed")
}

func printSuccess(format, file string, cfg *config.Config) {
	names := cfg.KnowledgeNames()
	switch format {
	case "json":
		_ = printJSON(jsonOutput{Valid: true, File: file, Knowledge: names})
	case "verbose":
		fmt.Printf("Configuration Validation Successful\n")
		fmt.Printf("===================================\n\n")
		fmt.Printf("File:      %s\n", file)
		fmt.Printf("Knowledge: %d\n", len(names))
		for _, name := range names {
			kc := cfg.Knowledge[name]
			fmt.Printf("  - %s (vector store %s, embedder %s, %d content sources)\n",
				name, kc.VectorStore, kc.Embedder, len(kc.ContentSources))
		}
		fmt.Printf("Status:    OK Valid\n")
	default:
		fmt.Printf("%s: valid\n", file)
	}
}

func printExpandedConfig(format, file string, cfg *config.Config) error {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config as JSON: %w", err)
		}
		return nil
	}

	fmt.Printf("# Expanded configuration from: %s\n", file)
	fmt.Printf("# (defaults applied, env vars resolved)\n\n")
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config as YAML: %w", err)
	}
	return nil
}
