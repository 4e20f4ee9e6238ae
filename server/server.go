// Package server is a development backend for the Happily Mart API. It issues
// JWT access tokens and rotating refresh cookies for the user and admin
// namespaces so the client packages can be exercised end to end.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jatinkumar-gitdev/happily-mart/internal/config"
	"github.com/jatinkumar-gitdev/happily-mart/internal/obs"
	"github.com/jatinkumar-gitdev/happily-mart/token"
	"github.com/jatinkumar-gitdev/happily-mart/token/jwt"
	"github.com/jatinkumar-gitdev/happily-mart/token/keys"
	"github.com/jatinkumar-gitdev/happily-mart/token/refresh"
	"github.com/jatinkumar-gitdev/happily-mart/users"
	"github.com/rs/zerolog/log"
)

// Repos holds the storage the server runs on
type Repos struct {
	Users         users.UserRepo
	RefreshTokens refresh.Repo
	Deals         DealRepo
}

type Server struct {
	env       string // Environment (e.g., "DEV", "production")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	repos     Repos
	creator   *jwt.Creator
	inspector *jwt.Inspector
	refresh   *refresh.Manager
	revoked   token.RevokedTokenCache
	metrics   *obs.ServerMetrics
}

func New(config config.Config, repos Repos) (*Server, error) {
	signer, err := keys.NewHMACSigner(config.GetJWTSecret())
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create token signer: %w", err)
	}
	revoked := token.NewInMemoryRevokedTokenCache()

	s := &Server{
		mux:       http.NewServeMux(),
		env:       config.GetEnv(),
		config:    config,
		repos:     repos,
		creator:   jwt.NewCreator(config, signer),
		inspector: jwt.NewInspector(signer, revoked),
		refresh:   refresh.NewManager(repos.RefreshTokens, config),
		revoked:   revoked,
		metrics:   obs.NewServerMetrics(),
	}

	if err := s.InitialiseSystem(config); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

func logRoute(method, path string) {
	log.Debug().Msgf("[%-19s] %s", colourMethod(method), path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
