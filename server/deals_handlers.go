package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jatinkumar-gitdev/happily-mart/users"
	"github.com/rs/zerolog/log"
)

// ListDealsHandler lists the caller's deals, or every deal when ownOnly is false
func (s *Server) ListDealsHandler(ownOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := ""
		if ownOnly {
			ownerID = userFromContext(r.Context()).ID
		}
		deals, err := s.repos.Deals.List(ownerID)
		if err != nil {
			log.Err(err).Msg("Failed to list deals")
			writeError(w, http.StatusInternalServerError, "Failed to list deals", "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "deals": deals})
	}
}

type createDealRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

func (s *Server) CreateDealHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createDealRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", "")
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" || req.Price < 0 {
			writeError(w, http.StatusBadRequest, "Title is required and price must not be negative", "")
			return
		}

		deal := &Deal{
			Title:       req.Title,
			Description: req.Description,
			Price:       req.Price,
			OwnerID:     userFromContext(r.Context()).ID,
		}
		if err := s.repos.Deals.Create(deal); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "deal": deal})
	}
}

// UpdateProfileHandler applies a partial profile update for the caller
func (s *Server) UpdateProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch users.ProfilePatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", "")
			return
		}
		user, err := s.repos.Users.UpdateProfile(userFromContext(r.Context()).ID, patch)
		if err != nil {
			writeError(w, http.StatusNotFound, "User not found", "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user.Profile})
	}
}

type userStatusRequest struct {
	Email    string `json:"email"`
	IsActive bool   `json:"isActive"`
}

// SetUserStatusHandler activates or deactivates an account. Deactivation
// drops the account's refresh token at its next use.
func (s *Server) SetUserStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req userStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
			writeError(w, http.StatusBadRequest, "Email is required", "")
			return
		}
		if caller := claimsFromContext(r.Context()); caller != nil && strings.EqualFold(caller.Email, req.Email) && !req.IsActive {
			writeError(w, http.StatusBadRequest, "Admins cannot deactivate themselves", "")
			return
		}
		if err := s.repos.Users.SetActive(req.Email, req.IsActive); err != nil {
			writeError(w, http.StatusNotFound, "User not found", "")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "email": req.Email, "isActive": req.IsActive})
	}
}
