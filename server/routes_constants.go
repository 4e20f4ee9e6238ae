package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Namespace prefixes
	PrefixUserAPI  = "/api"
	PrefixAdminAPI = "/api/admin"

	// Auth Routes (relative to a namespace prefix)
	RouteAuthLogin   = "/auth/login"
	RouteAuthRefresh = "/auth/refresh-token"
	RouteAuthMe      = "/auth/me"
	RouteAuthLogout  = "/auth/logout"

	// User API Routes
	RouteDeals       = "/deals"
	RouteUserProfile = "/users/profile"

	// Admin API Routes
	RouteAdminDeals      = "/deals"
	RouteAdminUserStatus = "/users/status"

	// Operational Routes
	RouteHealth  = "/health"
	RouteMetrics = "/metrics"
)

// Cookie names
const (
	CookieUserAccess   = "accessToken"
	CookieUserRefresh  = "refreshToken"
	CookieAdminAccess  = "adminToken"
	CookieAdminRefresh = "adminRefreshToken"
)

// Namespace describes one authentication realm of the API.
type Namespace struct {
	Name          string
	Prefix        string
	AccessCookie  string
	RefreshCookie string
	AdminOnly     bool
}

var (
	UserNamespace = Namespace{
		Name:          "user",
		Prefix:        PrefixUserAPI,
		AccessCookie:  CookieUserAccess,
		RefreshCookie: CookieUserRefresh,
	}
	AdminNamespace = Namespace{
		Name:          "admin",
		Prefix:        PrefixAdminAPI,
		AccessCookie:  CookieAdminAccess,
		RefreshCookie: CookieAdminRefresh,
		AdminOnly:     true,
	}
)

func (n Namespace) Route(path string) string {
	return n.Prefix + path
}
