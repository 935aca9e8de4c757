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
	"strings"
	"time"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Host to bind. Default: 0.0.0.0
	Host string `yaml:"host,omitempty" json:"host,omitempty"`

	// Port to listen on. Default: 8080
	Port int `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"minimum=1,maximum=65535,default=8080"`

	// CORSOrigins lists allowed origins. Empty disables CORS headers.
	CORSOrigins []string `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty"`

	ReadTimeout     time.Duration `yaml:"read_timeout,omitempty" json:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `yaml:"write_timeout,omitempty" json:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty"`

	Auth      *AuthConfig      `yaml:"auth,omitempty" json:"auth,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	MCP       MCPConfig        `yaml:"mcp,omitempty" json:"mcp,omitempty"`

	// URLFetch restricts the hosts URL inserts may fetch from.
	URLFetch URLFetchConfig `yaml:"url_fetch,omitempty" json:"url_fetch,omitempty"`
}

// URLFetchConfig restricts URL inserts made over HTTP. Host patterns are
// exact names or "*.example.com" wildcards; denied hosts win. Loopback,
// private and link-local addresses are refused unless AllowPrivate is set.
type URLFetchConfig struct {
	AllowedHosts []string `yaml:"allowed_hosts,omitempty" json:"allowed_hosts,omitempty"`
	DeniedHosts  []string `yaml:"denied_hosts,omitempty" json:"denied_hosts,omitempty"`
	AllowPrivate bool     `yaml:"allow_private,omitempty" json:"allow_private,omitempty"`
}

// Validate rejects empty host patterns.
func (c *URLFetchConfig) Validate() error {
	for _, list := range [][]string{c.AllowedHosts, c.DeniedHosts} {
		for _, pattern := range list {
			if strings.TrimSpace(pattern) == "" {
				return errors.New("host patterns must not be empty")
			}
		}
	}
	return nil
}

// MCPConfig mounts the MCP streamable HTTP endpoint on the server.
type MCPConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Path of the endpoint. Default: /mcp
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.MCP.Path == "" {
		c.MCP.Path = "/mcp"
	}
	if c.Auth != nil {
		c.Auth.SetDefaults()
	}
	if c.RateLimit != nil {
		c.RateLimit.SetDefaults()
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.Auth != nil {
		if err := c.Auth.Validate(); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if c.RateLimit != nil {
		if err := c.RateLimit.Validate(); err != nil {
			return fmt.Errorf("rate_limit: %w", err)
		}
	}
	if err := c.URLFetch.Validate(); err != nil {
		return fmt.Errorf("url_fetch: %w", err)
	}
	return nil
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
