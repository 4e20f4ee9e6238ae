package server

import (
	"context"
	"net/http"
	"strings"

	mterrors "github.com/jatinkumar-gitdev/happily-mart/internal/errors"
	"github.com/jatinkumar-gitdev/happily-mart/token/jwt"
	"github.com/jatinkumar-gitdev/happily-mart/users"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUser stores the authenticated *users.User
	ContextKeyUser ContextKey = "user"
	// ContextKeyClaims stores the introspected access token
	ContextKeyClaims ContextKey = "claims"
)

// RequireAuth validates the access token of ns, taken from the Authorization
// header or, failing that, the namespace access cookie. Deactivated accounts
// are refused with 403 and the ACCOUNT_DEACTIVATED code.
func (s *Server) RequireAuth(ns Namespace) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				if c, err := r.Cookie(ns.AccessCookie); err == nil {
					raw = c.Value
				}
			}
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "Not authorized, no token", "")
				return
			}

			info, err := s.inspector.Introspect(raw, ns.Name)
			if err != nil || !info.Active {
				log.Debug().Err(err).Str("namespace", ns.Name).Msg("Access token rejected")
				writeError(w, http.StatusUnauthorized, "Not authorized, token failed", "")
				return
			}

			user, err := s.repos.Users.GetByID(info.Sub)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Not authorized, user not found", "")
				return
			}
			if !user.IsActive {
				writeError(w, http.StatusForbidden, "Your account has been deactivated", mterrors.CodeAccountDeactivated)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, user)
			ctx = context.WithValue(ctx, ContextKeyClaims, info)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireRole refuses authenticated callers whose current role does not fit
// ns. The role is read from storage so a demoted admin loses access at once.
func (s *Server) RequireRole(ns Namespace) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user := userFromContext(r.Context())
			if user == nil {
				writeError(w, http.StatusUnauthorized, "Not authorized", "")
				return
			}
			if ns.AdminOnly && !user.IsAdmin() {
				writeError(w, http.StatusForbidden, "Admin access required", "")
				return
			}
			next(w, r)
		}
	}
}

func userFromContext(ctx context.Context) *users.User {
	user, _ := ctx.Value(ContextKeyUser).(*users.User)
	return user
}

func claimsFromContext(ctx context.Context) *jwt.TokenIntrospection {
	info, _ := ctx.Value(ContextKeyClaims).(*jwt.TokenIntrospection)
	return info
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
