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
	"errors"
	"fmt"
	"slices"
)

// Rate limit scopes, windows and limit types accepted in configuration.
var (
	RateLimitScopes  = []string{"all", "search", "write"}
	RateLimitWindows = []string{"second", "minute", "hour", "day"}
	RateLimitTypes   = []string{"count", "bytes"}
)

// RateLimitConfig throttles knowledge API callers. Callers are identified by
// token subject when authentication is on, otherwise by client address.
type RateLimitConfig struct {
	Enabled bool            `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Limits  []RateLimitRule `yaml:"limits,omitempty" json:"limits,omitempty"`
}

// RateLimitRule caps one kind of usage per caller and window.
type RateLimitRule struct {
	// Scope is search, write or all. Default: all
	Scope string `yaml:"scope,omitempty" json:"scope,omitempty" jsonschema:"enum=all,enum=search,enum=write"`

	// Type counts requests (count) or request body bytes (bytes).
	// Default: count
	Type string `yaml:"type,omitempty" json:"type,omitempty" jsonschema:"enum=count,enum=bytes"`

	// Window is second, minute, hour or day. Default: minute
	Window string `yaml:"window,omitempty" json:"window,omitempty"`

	Limit int64 `yaml:"limit" json:"limit" jsonschema:"minimum=1"`
}

func (c *RateLimitConfig) SetDefaults() {
	for i := range c.Limits {
		r := &c.Limits[i]
		if r.Scope == "" {
			r.Scope = "all"
		}
		if r.Type == "" {
			r.Type = "count"
		}
		if r.Window == "" {
			r.Window = "minute"
		}
	}
}

func (c *RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Limits) == 0 {
		return errors.New("at least one limit is required when rate limiting is enabled")
	}
	var errs []error
	for i, r := range c.Limits {
		if !slices.Contains(RateLimitScopes, r.Scope) {
			errs = append(errs, fmt.Errorf("limits[%d]: invalid scope %q", i, r.Scope))
		}
		if !slices.Contains(RateLimitTypes, r.Type) {
			errs = append(errs, fmt.Errorf("limits[%d]: invalid type %q", i, r.Type))
		}
		if !slices.Contains(RateLimitWindows, r.Window) {
			errs = append(errs, fmt.Errorf("limits[%d]: invalid window %q", i, r.Window))
		}
		if r.Limit <= 0 {
			errs = append(errs, fmt.Errorf("limits[%d]: limit must be positive", i))
		}
	}
	return errors.Join(errs...)
}
