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

package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

// TLSConfig holds TLS options for self-hosted endpoints such as local
// embedding servers behind a private CA.
type TLSConfig struct {
	// CACertificate is a PEM file added to the system roots.
	CACertificate string `yaml:"ca_certificate,omitempty" mapstructure:"ca_certificate" json:"ca_certificate,omitempty"`

	// ServerName overrides the name checked against the certificate.
	ServerName string `yaml:"server_name,omitempty" mapstructure:"server_name" json:"server_name,omitempty"`

	// InsecureSkipVerify disables certificate checks. Development only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty" mapstructure:"insecure_skip_verify" json:"insecure_skip_verify,omitempty"`
}

// ClientConfig builds the crypto/tls configuration. TLS 1.2 is the floor.
func (c *TLSConfig) ClientConfig() (*tls.Config, error) {
	out := &tls.Config{MinVersion: tls.VersionTLS12}
	if c == nil {
		return out, nil
	}
	out.ServerName = c.ServerName
	out.InsecureSkipVerify = c.InsecureSkipVerify

	if c.CACertificate != "" {
		pem, err := os.ReadFile(c.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate %s: %w", c.CACertificate, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", c.CACertificate)
		}
		out.RootCAs = pool
	}
	return out, nil
}

// Transport clones the default transport with c applied.
func (c *TLSConfig) Transport() (*http.Transport, error) {
	tlsCfg, err := c.ClientConfig()
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsCfg
	return transport, nil
}

// WithTLSConfig installs a transport built from cfg. A config that cannot
// be loaded is logged and the default transport stays.
func WithTLSConfig(cfg *TLSConfig) Option {
	return func(c *Client) {
		if cfg == nil {
			return
		}
		transport, err := cfg.Transport()
		if err != nil {
			slog.Warn("Failed to configure TLS, using default transport", "client", c.name, "error", err)
			return
		}
		c.client.Transport = transport
	}
}
