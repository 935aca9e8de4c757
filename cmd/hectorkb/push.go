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
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kadirpekel/hectorkb/pkg/config"
	"github.com/kadirpekel/hectorkb/pkg/config/provider"
)

// PushCmd publishes a local config file to the configured source. Servers
// watching that source reload it.
type PushCmd struct {
	File    string        `arg:"" type:"existingfile" help:"Local config file to publish."`
	DryRun  bool          `help:"Validate only."`
	Timeout time.Duration `default:"30s" help:"Time allowed for the write."`
}

func (c *PushCmd) Run(cli *CLI) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", c.File, err)
	}
	cfg, err := config.ParseConfig(data)
	if err != nil {
		return fmt.Errorf("%s is not a valid config: %w", c.File, err)
	}
	if c.DryRun {
		fmt.Printf("%s: valid (%d knowledge bases), not pushed\n", c.File, len(cfg.Knowledge))
		return nil
	}

	pt, err := provider.ParseType(cli.ConfigProvider)
	if err != nil {
		return err
	}
	src, err := provider.New(provider.ProviderConfig{Type: pt, Path: cli.Config, Endpoints: cli.ConfigEndpoints})
	if err != nil {
		return err
	}
	defer src.Close()

	pub, ok := src.(provider.Publisher)
	if !ok {
		return errors.New(string(pt) + " config source is read-only")
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()
	if err := pub.Put(ctx, data); err != nil {
		return err
	}
	fmt.Printf("Pushed %s to %s %s\n", c.File, pt, cli.Config)
	return nil
}
