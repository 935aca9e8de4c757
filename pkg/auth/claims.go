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

// Package auth validates JWT bearer tokens for the HTTP API.
//
// Tokens are checked against a JSON Web Key Set fetched from the identity
// provider and refreshed in the background:
//
//	server:
//	  auth:
//	    enabled: true
//	    jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	    issuer: "https://auth.example.com"
//	    audience: "hectorkb"
//	    write_roles: [editor, admin]
//
// Validated claims are stored in the request context and can be read with
// ClaimsFromContext.
package auth

import (
	"context"
	"slices"
)

type claimsKey struct{}

// Claims are the validated claims of a token.
type Claims struct {
	Subject  string `json:"sub"`
	Email    string `json:"email,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`

	// Role and Roles come from the "role" and "roles" claims. Either one
	// grants access to write routes.
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`

	// Custom holds every other private claim.
	Custom map[string]any `json:"-"`
}

// Claim returns a private claim.
func (c *Claims) Claim(key string) (any, bool) {
	v, ok := c.Custom[key]
	return v, ok
}

// StringClaim returns a private claim when it is a string.
func (c *Claims) StringClaim(key string) string {
	s, _ := c.Custom[key].(string)
	return s
}

// HasAnyRole reports whether the token carries one of roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	if c.Role != "" && slices.Contains(roles, c.Role) {
		return true
	}
	for _, r := range c.Roles {
		if slices.Contains(roles, r) {
			return true
		}
	}
	return false
}

// ClaimsFromContext returns the claims stored in ctx, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}

// ContextWithClaims returns a copy of ctx carrying claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}
