// Package auth issues and checks the bearer tokens that scope attempt
// journal reads to a single user.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenFormat = errors.New("invalid token format")
	ErrTokenSig    = errors.New("invalid token signature")
	ErrTokenExp    = errors.New("token expired or not yet valid")
	ErrTokenUser   = errors.New("user id mismatch")
)

const issuer = "voiceask"

// GenerateUserToken signs an HS256 token whose subject is userID.
func GenerateUserToken(secret, userID string, exp time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ValidateUserToken parses the token and returns its subject. When
// expectUserID is set the subject must match it.
func ValidateUserToken(secret, token, expectUserID string, now time.Time, skew time.Duration) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(skew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return "", ErrTokenExp
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "", ErrTokenSig
	default:
		return "", ErrTokenFormat
	}
	if expectUserID != "" && claims.Subject != expectUserID {
		return "", ErrTokenUser
	}
	return claims.Subject, nil
}
