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

package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/hectorkb/pkg/config/provider"
)

// Loader reads a Config from a provider and reloads it on change.
type Loader struct {
	provider provider.Provider
	onChange func(*Config)
	strict   bool
	log      *slog.Logger

	// last is the digest of the bytes behind the current config; a change
	// signal with identical bytes does not reload.
	last [sha256.Size]byte
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOnChange sets the callback that receives every reloaded config.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) { l.onChange = fn }
}

// WithStrict rejects unknown fields and type mismatches instead of
// ignoring or coercing them.
func WithStrict(strict bool) LoaderOption {
	return func(l *Loader) { l.strict = strict }
}

// WithLoaderLogger sets the logger reload events go to.
func WithLoaderLogger(log *slog.Logger) LoaderOption {
	return func(l *Loader) { l.log = log }
}

// NewLoader creates a Loader reading from p.
func NewLoader(p provider.Provider, opts ...LoaderOption) *Loader {
	l := &Loader{provider: p}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

// Load reads and parses the configuration.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	data, err := l.provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := l.parse(data)
	if err != nil {
		return nil, err
	}
	l.last = sha256.Sum256(data)
	return cfg, nil
}

// parse turns raw YAML or JSON into a defaulted, validated Config:
// ${VAR} expansion, optional strict structure check, decode, defaults.
func (l *Loader) parse(data []byte) (*Config, error) {
	raw, err := parseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	expanded, _ := ExpandEnvVarsInData(raw).(map[string]any)

	if l.strict {
		result, err := ValidateConfigStructure(expanded)
		if err != nil {
			return nil, err
		}
		if !result.Valid() {
			return nil, fmt.Errorf("config structure invalid:\n%s", result.FormatErrors())
		}
	}

	cfg := &Config{}
	if err := decodeConfig(expanded, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ParseConfig parses YAML or JSON bytes into a processed Config.
func ParseConfig(data []byte) (*Config, error) {
	return NewLoader(nil).parse(data)
}

// Watch reloads the config on every change signal from the provider and
// hands valid configs to the OnChange callback. An invalid config is
// logged and the previous one stays in effect. Watch blocks until ctx is
// cancelled.
func (l *Loader) Watch(ctx context.Context) error {
	changes, err := l.provider.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}
	if changes == nil {
		l.log.Info("Config watching not supported by provider", "type", l.provider.Type())
		<-ctx.Done()
		return ctx.Err()
	}

	l.log.Info("Watching config for changes", "type", l.provider.Type())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			l.reload(ctx)
		}
	}
}

func (l *Loader) reload(ctx context.Context) {
	data, err := l.provider.Load(ctx)
	if err != nil {
		l.log.Error("Failed to read changed config", "error", err)
		return
	}
	sum := sha256.Sum256(data)
	if sum == l.last {
		l.log.Debug("Config unchanged, skipping reload")
		return
	}

	cfg, err := l.parse(data)
	if err != nil {
		l.log.Error("Rejected changed config, keeping the current one", "error", err)
		return
	}
	l.last = sum

	l.log.Info("Configuration reloaded", "knowledge", cfg.KnowledgeNames())
	if l.onChange != nil {
		l.onChange(cfg)
	}
}

// Close releases the provider.
func (l *Loader) Close() error {
	return l.provider.Close()
}

// parseBytes reads YAML, falling back to JSON for error reporting on
// inputs YAML rejects.
func parseBytes(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	var out map[string]any
	yamlErr := yaml.Unmarshal(data, &out)
	if yamlErr == nil {
		if out == nil {
			out = map[string]any{}
		}
		return out, nil
	}
	if jsonErr := json.Unmarshal(data, &out); jsonErr != nil {
		return nil, errors.Join(fmt.Errorf("yaml: %w", yamlErr), fmt.Errorf("json: %w", jsonErr))
	}
	return out, nil
}

// decodeConfig maps the expanded document onto Config by yaml tag, parsing
// durations and comma-separated lists from strings.
func decodeConfig(input map[string]any, out *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// LoadConfig creates the provider described by pc and loads from it. The
// returned Loader owns the provider; close it when done.
func LoadConfig(ctx context.Context, pc provider.ProviderConfig, opts ...LoaderOption) (*Config, *Loader, error) {
	p, err := provider.New(pc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create provider: %w", err)
	}

	loader := NewLoader(p, opts...)
	cfg, err := loader.Load(ctx)
	if err != nil {
		_ = p.Close()
		return nil, nil, err
	}
	return cfg, loader, nil
}

// LoadConfigFile loads the config file at path.
func LoadConfigFile(ctx context.Context, path string, opts ...LoaderOption) (*Config, *Loader, error) {
	return LoadConfig(ctx, provider.ProviderConfig{Type: provider.TypeFile, Path: path}, opts...)
}
