package token

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return raw
}

func TestInspect(t *testing.T) {
	issued := time.Now().Add(-time.Minute).Truncate(time.Second)
	expires := issued.Add(15 * time.Minute)

	raw := sign(t, jwt.RegisteredClaims{
		Subject:   "qa@example.com",
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(expires),
	})

	claims, err := Inspect(raw)
	require.NoError(t, err)
	assert.Equal(t, "qa@example.com", claims.Subject)
	assert.True(t, claims.IssuedAt.Equal(issued))
	assert.True(t, claims.ExpiresAt.Equal(expires))
	assert.Equal(t, 5*time.Minute, claims.TTL(expires.Add(-5*time.Minute)))
	assert.False(t, claims.Expired(issued))
	assert.True(t, claims.Expired(expires))
}

func TestInspect_ExpiredTokenStillDecodes(t *testing.T) {
	raw := sign(t, jwt.RegisteredClaims{
		Subject:   "old@example.com",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})

	claims, err := Inspect(raw)
	require.NoError(t, err)
	assert.Equal(t, "old@example.com", claims.Subject)
	assert.True(t, claims.Expired(time.Now()))
}

func TestInspect_NoExpiry(t *testing.T) {
	claims, err := Inspect(sign(t, jwt.RegisteredClaims{Subject: "x"}))
	require.NoError(t, err)
	assert.Zero(t, claims.TTL(time.Now()))
	assert.False(t, claims.Expired(time.Now()))
}

func TestInspect_Opaque(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"uuid", "5b1f7d3e-8c1a-4c59-9c1e-0f7f2f9d6a11"},
		{"empty", ""},
		{"garbage segments", "a.b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Inspect(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotJWT))
		})
	}
}
