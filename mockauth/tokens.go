package mockauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "authprobe-mock"

var errInvalidAccess = errors.New("invalid access token")

// accessIssuer signs and verifies HS256 access tokens whose subject is the email.
type accessIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (a *accessIssuer) issue(email string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// verify returns the subject of a valid access token.
func (a *accessIssuer) verify(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(
		raw,
		&claims,
		func(_ *jwt.Token) (any, error) {
			return a.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidAccess, err)
	}
	if claims.Subject == "" {
		return "", errInvalidAccess
	}
	return claims.Subject, nil
}
