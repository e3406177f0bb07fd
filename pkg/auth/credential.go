// Package auth holds the core-banking session credential shared by all
// orchestration calls.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is an authenticated core-banking session.
type Credential struct {
	Token     string
	Username  string
	TenantID  string
	IssuedAt  time.Time
	ExpiresAt time.Time // zero when the token carries no expiry
}

// NewCredential builds a credential for token. When the token is a JWT with
// an exp claim the expiry is taken from it; opaque tokens never expire.
// The signature is not verified, the token belongs to the remote system.
func NewCredential(token, username, tenantID string, issuedAt time.Time) *Credential {
	c := &Credential{
		Token:    strings.TrimSpace(token),
		Username: username,
		TenantID: tenantID,
		IssuedAt: issuedAt,
	}
	if exp, ok := jwtExpiry(c.Token); ok {
		c.ExpiresAt = exp
	}
	return c
}

// Expired reports whether the credential has an expiry at or before now.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !c.ExpiresAt.After(now)
}

// Valid reports whether the credential can authorize a call at now.
func (c *Credential) Valid(now time.Time) bool {
	return c != nil && c.Token != "" && !c.Expired(now)
}

func jwtExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
