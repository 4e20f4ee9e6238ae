package jwt

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jatinkumar-gitdev/happily-mart/token/keys"
	"github.com/jatinkumar-gitdev/happily-mart/users"
)

// TokenIntrospection describes an access token. When Active is false the
// other fields may not be populated.
type TokenIntrospection struct {
	Active bool
	Sub    string
	Email  string
	Role   users.RoleType
	Jti    string
	Exp    time.Time
}

// RevokedChecker is an interface for checking if a token has been revoked
type RevokedChecker interface {
	IsRevoked(jti string) bool
}

// Inspector validates access tokens
type Inspector struct {
	signer         keys.Signer
	revokedChecker RevokedChecker
}

func NewInspector(signer keys.Signer, revokedChecker RevokedChecker) *Inspector {
	return &Inspector{
		signer:         signer,
		revokedChecker: revokedChecker,
	}
}

// Introspect verifies rawToken for namespace. Expired, revoked, foreign
// namespace or badly signed tokens come back inactive with the reason.
func (i *Inspector) Introspect(rawToken, namespace string) (*TokenIntrospection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return &TokenIntrospection{Active: false}, nil
	}

	claims := &Claims{}
	token, err := jwtlib.ParseWithClaims(rawToken, claims, i.signer.GetVerificationKey,
		jwtlib.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
		jwtlib.WithAudience(namespace),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(NowTimeFunc),
	)
	if err != nil || !token.Valid {
		return &TokenIntrospection{Active: false}, err
	}

	result := &TokenIntrospection{
		Active: true,
		Sub:    claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
		Jti:    claims.ID,
		Exp:    claims.ExpiresAt.Time,
	}
	if result.Jti != "" && i.revokedChecker != nil && i.revokedChecker.IsRevoked(result.Jti) {
		result.Active = false
	}
	return result, nil
}
