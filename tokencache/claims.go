package tokencache

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PeekExpiry reads the exp claim of a JWT access token without verifying its
// signature. The result is informational only; the backend stays the judge of
// validity.
func PeekExpiry(raw string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
