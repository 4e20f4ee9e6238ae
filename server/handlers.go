package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	mterrors "github.com/jatinkumar-gitdev/happily-mart/internal/errors"
	"github.com/jatinkumar-gitdev/happily-mart/token/refresh"
	"github.com/jatinkumar-gitdev/happily-mart/users"
	"github.com/rs/zerolog/log"
)

type loginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RememberMe   bool   `json:"rememberMe"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

type authResponse struct {
	Success     bool           `json:"success"`
	User        *users.Profile `json:"user,omitempty"`
	AccessToken string         `json:"accessToken"`
}

// LoginHandler exchanges credentials for an access token and sets the
// namespace refresh cookie
func (s *Server) LoginHandler(ns Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", "")
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "Email and password are required", "")
			return
		}

		user, err := s.repos.Users.GetByEmail(req.Email)
		if err != nil || !user.CheckPassword(req.Password) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password", "")
			return
		}
		if !user.IsActive {
			writeError(w, http.StatusForbidden, "Your account has been deactivated. Please request reactivation.", mterrors.CodeAccountDeactivated)
			return
		}
		if ns.AdminOnly && !user.IsAdmin() {
			writeError(w, http.StatusForbidden, "Access denied. Admin privileges required.", "")
			return
		}

		accessToken, err := s.creator.CreateAccessToken(user, ns.Name)
		if err != nil {
			log.Err(err).Str("namespace", ns.Name).Msg("Failed to create access token")
			writeError(w, http.StatusInternalServerError, "Failed to create token", "")
			return
		}
		refreshToken, err := s.refresh.Create(user.ID, ns.Name, req.RememberMe)
		if err != nil {
			log.Err(err).Str("namespace", ns.Name).Msg("Failed to create refresh token")
			writeError(w, http.StatusInternalServerError, "Failed to create token", "")
			return
		}
		if err := s.repos.Users.SetLastLogin(user.Email); err != nil {
			log.Warn().Err(err).Str("user", user.Email).Msg("Failed to record last login")
		}

		s.SetRefreshCookie(w, r, ns, *refreshToken, req.RememberMe)
		profile := user.Profile
		writeJSON(w, http.StatusOK, authResponse{Success: true, User: &profile, AccessToken: *accessToken})
	}
}

// RefreshHandler rotates the refresh cookie and issues a new access token
func (s *Server) RefreshHandler(ns Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(ns.RefreshCookie)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "No refresh token", "")
			return
		}

		rt, next, err := s.refresh.Rotate(cookie.Value, ns.Name)
		if err != nil {
			if !errors.Is(err, refresh.ErrInvalidToken) {
				log.Err(err).Str("namespace", ns.Name).Msg("Refresh token rotation failed")
			}
			s.ClearRefreshCookie(w, r, ns)
			writeError(w, http.StatusUnauthorized, "Invalid refresh token", "")
			return
		}

		user, err := s.repos.Users.GetByID(rt.UserID)
		if err != nil || !user.IsActive || (ns.AdminOnly && !user.IsAdmin()) {
			_ = s.refresh.Delete(*next)
			s.ClearRefreshCookie(w, r, ns)
			writeError(w, http.StatusUnauthorized, "Invalid refresh token", "")
			return
		}

		accessToken, err := s.creator.CreateAccessToken(user, ns.Name)
		if err != nil {
			log.Err(err).Str("namespace", ns.Name).Msg("Failed to create access token")
			writeError(w, http.StatusInternalServerError, "Failed to create token", "")
			return
		}

		s.SetRefreshCookie(w, r, ns, *next, rt.Remember)
		writeJSON(w, http.StatusOK, authResponse{Success: true, AccessToken: *accessToken})
	}
}

// MeHandler returns the profile of the authenticated caller
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user.Profile})
	}
}

// LogoutHandler drops the refresh token and revokes the presented access
// token. It never requires authentication and always succeeds.
func (s *Server) LogoutHandler(ns Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(ns.RefreshCookie); err == nil && cookie.Value != "" {
			_ = s.refresh.Delete(cookie.Value)
		}
		if raw := bearerToken(r); raw != "" {
			if info, err := s.inspector.Introspect(raw, ns.Name); err == nil && info.Active {
				_ = s.revoked.Add(info.Jti, info.Exp)
			}
		}
		s.revoked.Cleanup()

		s.ClearRefreshCookie(w, r, ns)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
	}
}
