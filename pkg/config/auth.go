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

package config

import (
	"errors"
	"time"
)

const minJWKSRefresh = time.Minute

// AuthConfig configures JWT bearer authentication for the HTTP API. Tokens
// are checked against a remote JWKS; claims flow into request contexts.
type AuthConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	JWKSURL  string `yaml:"jwks_url,omitempty" json:"jwks_url,omitempty"`
	Issuer   string `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty"`

	// RefreshInterval bounds how stale the cached key set may get. Default 15m.
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty" json:"refresh_interval,omitempty"`

	// ExcludedPaths skip authentication entirely.
	ExcludedPaths []string `yaml:"excluded_paths,omitempty" json:"excluded_paths,omitempty"`

	// Optional admits anonymous callers. Tokens that are present must
	// still verify.
	Optional bool `yaml:"optional,omitempty" json:"optional,omitempty"`

	// WriteRoles may insert and delete content. Empty lets any
	// authenticated caller write.
	WriteRoles []string `yaml:"write_roles,omitempty" json:"write_roles,omitempty"`
}

func (c *AuthConfig) SetDefaults() {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 15 * time.Minute
	}
	if len(c.ExcludedPaths) == 0 {
		c.ExcludedPaths = []string{"/health", "/metrics"}
	}
}

func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	for _, f := range [][2]string{{"jwks_url", c.JWKSURL}, {"issuer", c.Issuer}, {"audience", c.Audience}} {
		if f[1] == "" {
			errs = append(errs, errors.New("auth."+f[0]+" is required when auth is enabled"))
		}
	}
	if c.RefreshInterval < minJWKSRefresh {
		errs = append(errs, errors.New("auth.refresh_interval must be at least 1m"))
	}
	return errors.Join(errs...)
}

// IsEnabled reports whether the section is switched on and complete.
func (c *AuthConfig) IsEnabled() bool {
	return c != nil && c.Enabled && c.JWKSURL != "" && c.Issuer != "" && c.Audience != ""
}

// IsRequireAuth reports whether requests without a token are rejected.
func (c *AuthConfig) IsRequireAuth() bool {
	return c == nil || !c.Optional
}
