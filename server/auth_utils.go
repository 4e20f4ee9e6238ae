package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// errorResponse is the body of every failed API call
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Success: false, Message: message, Code: code})
}

// SetRefreshCookie stores the refresh token of ns in an HttpOnly cookie. A
// remembered login outlives the browser session; otherwise the cookie is a
// session cookie.
func (s *Server) SetRefreshCookie(w http.ResponseWriter, r *http.Request, ns Namespace, token string, rememberMe bool) {
	cookie := &http.Cookie{
		Name:     ns.RefreshCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.IsProduction() || getScheme(r) == "https",
		SameSite: http.SameSiteStrictMode,
	}
	if ns.AdminOnly {
		cookie.SameSite = http.SameSiteLaxMode
	}
	if rememberMe {
		cookie.MaxAge = int(s.config.GetRefreshTokenTTL() / time.Second)
	}
	http.SetCookie(w, cookie)
}

func (s *Server) ClearRefreshCookie(w http.ResponseWriter, r *http.Request, ns Namespace) {
	http.SetCookie(w, &http.Cookie{
		Name:     ns.RefreshCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.IsProduction() || getScheme(r) == "https",
		MaxAge:   -1,
	})
}
