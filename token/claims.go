// Package token inspects the JWTs issued by the auth service.
//
// Signatures are never verified here: the probe does not hold the signing
// key and only reports what the service put in the token.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned for opaque tokens that are not three-part JWTs.
var ErrNotJWT = errors.New("token is not a JWT")

// Claims are the registered claims the probe cares about.
type Claims struct {
	Subject   string    `json:"subject,omitempty"`
	IssuedAt  time.Time `json:"issued_at,omitzero"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Inspect decodes raw without verifying its signature.
func Inspect(raw string) (*Claims, error) {
	if strings.Count(raw, ".") != 2 {
		return nil, ErrNotJWT
	}

	var registered jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &registered); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	claims := &Claims{Subject: registered.Subject}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}

// TTL is the time left before expiry. Tokens without an exp claim report 0.
func (c *Claims) TTL(now time.Time) time.Duration {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// Expired reports whether the token carries an exp claim in the past.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
