package server

import "net/http"

func (s *Server) initRoutes() {
	for _, ns := range []Namespace{UserNamespace, AdminNamespace} {
		s.RegisterRouteHandler("POST "+ns.Route(RouteAuthLogin), ChainMiddleware(s.LoginHandler(ns), s.APIMiddleware()...))
		s.RegisterRouteHandler("POST "+ns.Route(RouteAuthRefresh), ChainMiddleware(s.RefreshHandler(ns), s.APIMiddleware()...))
		s.RegisterRouteHandler("POST "+ns.Route(RouteAuthLogout), ChainMiddleware(s.LogoutHandler(ns), s.APIMiddleware()...))
		s.RegisterRouteHandler("GET "+ns.Route(RouteAuthMe), ChainMiddleware(s.MeHandler(), s.APIMiddleware(s.RequireAuth(ns))...))
		s.RegisterRouteHandler("OPTIONS "+ns.Prefix+"/", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))
	}

	// User API
	s.RegisterRouteHandler("GET "+UserNamespace.Route(RouteDeals), ChainMiddleware(s.ListDealsHandler(true), s.APIMiddleware(s.RequireAuth(UserNamespace))...))
	s.RegisterRouteHandler("POST "+UserNamespace.Route(RouteDeals), ChainMiddleware(s.CreateDealHandler(), s.APIMiddleware(s.RequireAuth(UserNamespace))...))
	s.RegisterRouteHandler("PATCH "+UserNamespace.Route(RouteUserProfile), ChainMiddleware(s.UpdateProfileHandler(), s.APIMiddleware(s.RequireAuth(UserNamespace))...))

	// Admin API (admin role re-checked on every call)
	s.RegisterRouteHandler("GET "+AdminNamespace.Route(RouteAdminDeals), ChainMiddleware(s.ListDealsHandler(false), s.APIMiddleware(s.RequireAuth(AdminNamespace), s.RequireRole(AdminNamespace))...))
	s.RegisterRouteHandler("POST "+AdminNamespace.Route(RouteAdminUserStatus), ChainMiddleware(s.SetUserStatusHandler(), s.APIMiddleware(s.RequireAuth(AdminNamespace), s.RequireRole(AdminNamespace))...))

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
	}
}

// PreflightHandler answers CORS preflight requests; the CORS middleware sets the headers
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}
