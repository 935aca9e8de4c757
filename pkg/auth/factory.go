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

package auth

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/kadirpekel/hectorkb/pkg/config"
)

// NewValidatorFromConfig creates a JWTValidator from configuration. It
// returns nil when authentication is disabled.
func NewValidatorFromConfig(cfg *config.AuthConfig) (*JWTValidator, error) {
	if cfg == nil || !cfg.IsEnabled() {
		return nil, nil
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}

	validator, err := NewJWTValidator(JWTValidatorConfig{
		JWKSURL:         cfg.JWKSURL,
		Issuer:          cfg.Issuer,
		Audience:        cfg.Audience,
		RefreshInterval: cfg.RefreshInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT validator: %w", err)
	}

	return validator, nil
}

// MiddlewareFromConfig creates the HTTP middleware validating tokens with v,
// or nil when v is nil. extraExcluded are served without a token next to
// cfg.ExcludedPaths. A nil cfg requires a token everywhere else.
func MiddlewareFromConfig(cfg *config.AuthConfig, v TokenValidator, extraExcluded ...string) func(http.Handler) http.Handler {
	if v == nil {
		return nil
	}

	mc := MiddlewareConfig{RequireAuth: true}
	if cfg != nil {
		mc.ExcludedPaths = slices.Clone(cfg.ExcludedPaths)
		mc.RequireAuth = cfg.IsRequireAuth()
	}
	for _, p := range extraExcluded {
		if p != "" && !slices.Contains(mc.ExcludedPaths, p) {
			mc.ExcludedPaths = append(mc.ExcludedPaths, p)
		}
	}
	return Middleware(v, mc)
}
