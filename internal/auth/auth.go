package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields the portal reads from an access token. The portal never
// holds the signing key, so claims are informational only.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ReadTokenClaims decodes a JWT-shaped access token without verifying it.
func ReadTokenClaims(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenExpiry decides when a freshly issued token lapses. expiresIn (seconds) from
// the login response wins; otherwise the exp claim is used. Zero means unknown.
func TokenExpiry(token string, expiresIn int64, issuedAt time.Time) time.Time {
	if expiresIn > 0 {
		return issuedAt.Add(time.Duration(expiresIn) * time.Second)
	}
	claims, err := ReadTokenClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
