package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTValidator_UnreachableJWKS(t *testing.T) {
	idp := newTestIdP(t)
	_, err := NewJWTValidator(JWTValidatorConfig{JWKSURL: idp.jwksURL + "/missing", Issuer: testIssuer, Audience: testAudience})
	assert.Error(t, err)
}

func TestJWTValidator_ValidateToken(t *testing.T) {
	idp := newTestIdP(t)
	v := idp.validator(t)

	token := idp.token(t, tokenOpts{
		subject: "user-1",
		claims: map[string]any{
			"email":     "ada@example.com",
			"role":      "editor",
			"tenant_id": "acme",
			"team":      "sales",
			"roles":     []string{"reviewer", "auditor"},
		},
	})

	claims, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "editor", claims.Role)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "sales", claims.StringClaim("team"))
	assert.Equal(t, []string{"reviewer", "auditor"}, claims.Roles)
	assert.NotContains(t, claims.Custom, "role")
	assert.NotContains(t, claims.Custom, "roles")
	assert.True(t, claims.HasAnyRole("admin", "editor"))
	assert.True(t, claims.HasAnyRole("auditor"))
	assert.False(t, claims.HasAnyRole("admin"))
}

func TestJWTValidator_RejectsBadTokens(t *testing.T) {
	idp := newTestIdP(t)
	v := idp.validator(t)
	other := newTestIdP(t)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"wrong_issuer", idp.token(t, tokenOpts{subject: "u", issuer: "https://evil.example"}), ErrInvalidToken},
		{"wrong_audience", idp.token(t, tokenOpts{subject: "u", audience: "other"}), ErrInvalidToken},
		{"foreign_key", other.token(t, tokenOpts{subject: "u"}), ErrInvalidToken},
		{"expired", idp.token(t, tokenOpts{subject: "u", expires: time.Now().Add(-time.Hour)}), ErrTokenExpired},
		{"no_subject", idp.token(t, tokenOpts{}), ErrMissingClaims},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateToken(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClaimsContext(t *testing.T) {
	assert.Nil(t, ClaimsFromContext(context.Background()))

	c := &Claims{Subject: "u"}
	assert.Same(t, c, ClaimsFromContext(ContextWithClaims(context.Background(), c)))

	_, ok := (&Claims{}).Claim("x")
	assert.False(t, ok)
	assert.Empty(t, (&Claims{Custom: map[string]any{"n": 1}}).StringClaim("n"))
	assert.False(t, (&Claims{}).HasAnyRole(""))
}
