package server_test

import (
	"io"
	"net/http"
	"testing"
	"time"

	mterrors "github.com/jatinkumar-gitdev/happily-mart/internal/errors"
	"github.com/jatinkumar-gitdev/happily-mart/server"
	"github.com/jatinkumar-gitdev/happily-mart/users"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("remembered login sets persistent refresh cookie", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
			"email": server.DefaultBuyerEmail, "password": seedPassword, "rememberMe": true, "captchaToken": "c-1",
		})
		require.Equal(t, http.StatusOK, resp.Status)
		user := resp.Body["user"].(map[string]any)
		require.Equal(t, server.DefaultBuyerEmail, user["email"])
		require.Equal(t, "user", user["role"])
		require.NotContains(t, user, "passwordHash")

		require.Len(t, resp.Cookies, 1)
		cookie := resp.Cookies[0]
		require.Equal(t, server.CookieUserRefresh, cookie.Name)
		require.True(t, cookie.HttpOnly)
		require.Equal(t, "/", cookie.Path)
		require.Equal(t, int((168 * time.Hour).Seconds()), cookie.MaxAge)
		require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	})

	t.Run("session login sets session cookie", func(t *testing.T) {
		_, cookie := env.login(t, server.PrefixUserAPI, server.DefaultBuyerEmail, false)
		require.Zero(t, cookie.MaxAge)
	})

	t.Run("admin namespace uses admin cookie", func(t *testing.T) {
		_, cookie := env.login(t, server.PrefixAdminAPI, server.DefaultAdminEmail, true)
		require.Equal(t, server.CookieAdminRefresh, cookie.Name)
		require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	})
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		name       string
		path       string
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing fields",
			path:       "/api/auth/login",
			body:       map[string]any{"email": server.DefaultBuyerEmail},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "wrong password",
			path:       "/api/auth/login",
			body:       map[string]any{"email": server.DefaultBuyerEmail, "password": "nope"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown user",
			path:       "/api/auth/login",
			body:       map[string]any{"email": "ghost@happilymart.local", "password": seedPassword},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "deactivated account",
			path:       "/api/auth/login",
			body:       map[string]any{"email": server.DefaultInactiveEmail, "password": seedPassword},
			wantStatus: http.StatusForbidden,
			wantCode:   mterrors.CodeAccountDeactivated,
		},
		{
			name:       "non admin on admin login",
			path:       "/api/admin/auth/login",
			body:       map[string]any{"email": server.DefaultBuyerEmail, "password": seedPassword},
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, tc.path, "", tc.body)
			require.Equal(t, tc.wantStatus, resp.Status)
			require.Equal(t, false, resp.Body["success"])
			require.NotEmpty(t, resp.Body["message"])
			if tc.wantCode != "" {
				require.Equal(t, tc.wantCode, resp.Body["code"])
			}
			require.Empty(t, resp.Cookies)
		})
	}
}

func TestRefresh_RotatesCookie(t *testing.T) {
	env := newTestEnv(t)
	_, cookie := env.login(t, server.PrefixUserAPI, server.DefaultBuyerEmail, true)

	resp := env.do(t, http.MethodPost, "/api/auth/refresh-token", "", nil, cookie)
	require.Equal(t, http.StatusOK, resp.Status)
	newToken := resp.Body["accessToken"].(string)
	require.Len(t, resp.Cookies, 1)
	rotated := resp.Cookies[0]
	require.NotEqual(t, cookie.Value, rotated.Value)
	require.Positive(t, rotated.MaxAge)

	me := env.do(t, http.MethodGet, "/api/auth/me", newToken, nil)
	require.Equal(t, http.StatusOK, me.Status)

	t.Run("spent cookie is rejected", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/refresh-token", "", nil, cookie)
		require.Equal(t, http.StatusUnauthorized, resp.Status)
	})

	t.Run("missing cookie is rejected", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/auth/refresh-token", "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.Status)
	})

	t.Run("user cookie does not refresh admin", func(t *testing.T) {
		adminCookie := *rotated
		adminCookie.Name = server.CookieAdminRefresh
		resp := env.do(t, http.MethodPost, "/api/admin/auth/refresh-token", "", nil, &adminCookie)
		require.Equal(t, http.StatusUnauthorized, resp.Status)
	})
}

func TestMe_NamespaceIsolation(t *testing.T) {
	env := newTestEnv(t)
	userToken, _ := env.login(t, server.PrefixUserAPI, server.DefaultAdminEmail, false)
	adminToken, _ := env.login(t, server.PrefixAdminAPI, server.DefaultAdminEmail, false)

	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/admin/auth/me", userToken, nil).Status)
	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/auth/me", adminToken, nil).Status)

	resp := env.do(t, http.MethodGet, "/api/admin/auth/me", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "admin", resp.Body["user"].(map[string]any)["role"])

	t.Run("access cookie is accepted", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/admin/auth/me", "", nil,
			&http.Cookie{Name: server.CookieAdminAccess, Value: adminToken})
		require.Equal(t, http.StatusOK, resp.Status)
	})

	t.Run("expired token", func(t *testing.T) {
		env.clock.Advance(16 * time.Minute)
		require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/admin/auth/me", adminToken, nil).Status)
	})
}

func TestAdminRoutes_RoleGate(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.login(t, server.PrefixAdminAPI, server.DefaultAdminEmail, false)

	resp := env.do(t, http.MethodGet, "/api/admin/deals", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.Status)

	env.setRole(t, server.DefaultAdminEmail, users.RoleUser)
	resp = env.do(t, http.MethodGet, "/api/admin/deals", adminToken, nil)
	require.Equal(t, http.StatusForbidden, resp.Status)
	require.Equal(t, "Admin access required", resp.Body["message"])
}

func TestDeactivation_BlocksActiveSessions(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.login(t, server.PrefixAdminAPI, server.DefaultAdminEmail, false)
	buyerToken, buyerCookie := env.login(t, server.PrefixUserAPI, server.DefaultBuyerEmail, true)

	resp := env.do(t, http.MethodPost, "/api/admin/users/status", adminToken,
		map[string]any{"email": server.DefaultBuyerEmail, "isActive": false})
	require.Equal(t, http.StatusOK, resp.Status)

	resp = env.do(t, http.MethodGet, "/api/deals", buyerToken, nil)
	require.Equal(t, http.StatusForbidden, resp.Status)
	require.Equal(t, mterrors.CodeAccountDeactivated, resp.Body["code"])

	resp = env.do(t, http.MethodPost, "/api/auth/refresh-token", "", nil, buyerCookie)
	require.Equal(t, http.StatusUnauthorized, resp.Status)

	t.Run("admin cannot deactivate self", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/admin/users/status", adminToken,
			map[string]any{"email": server.DefaultAdminEmail, "isActive": false})
		require.Equal(t, http.StatusBadRequest, resp.Status)
	})
}

func TestDealsAndProfile(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.login(t, server.PrefixUserAPI, server.DefaultBuyerEmail, false)

	resp := env.do(t, http.MethodPost, "/api/deals", token, map[string]any{"title": "Alphonso mangoes", "price": 499.0})
	require.Equal(t, http.StatusCreated, resp.Status)
	require.Equal(t, "Alphonso mangoes", resp.Body["deal"].(map[string]any)["title"])

	resp = env.do(t, http.MethodPost, "/api/deals", token, map[string]any{"title": " "})
	require.Equal(t, http.StatusBadRequest, resp.Status)

	resp = env.do(t, http.MethodGet, "/api/deals", token, nil)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, resp.Body["deals"], 1)

	resp = env.do(t, http.MethodPatch, "/api/users/profile", token, map[string]any{"city": "Pune", "companyName": "Mango Co"})
	require.Equal(t, http.StatusOK, resp.Status)
	user := resp.Body["user"].(map[string]any)
	require.Equal(t, "Pune", user["city"])
	require.Equal(t, "Mango Co", user["companyName"])
	require.Equal(t, "Demo Buyer", user["name"])
}

func TestLogout_RevokesTokens(t *testing.T) {
	env := newTestEnv(t)
	token, cookie := env.login(t, server.PrefixUserAPI, server.DefaultBuyerEmail, true)

	resp := env.do(t, http.MethodPost, "/api/auth/logout", token, nil, cookie)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, resp.Cookies, 1)
	require.Equal(t, -1, resp.Cookies[0].MaxAge)

	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/auth/me", token, nil).Status)
	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/auth/refresh-token", "", nil, cookie).Status)

	t.Run("logout without credentials still succeeds", func(t *testing.T) {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/auth/logout", "", nil).Status)
	})
}

func TestCorsPreflight(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodOptions, env.url("/api/auth/login"), nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	require.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-Request-ID")
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", "", nil).Status)
	env.login(t, server.PrefixUserAPI, server.DefaultBuyerEmail, false)

	resp, err := env.srv.Client().Get(env.url("/metrics"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `http_requests_total{method="POST",path="/api/auth/login",status="200"}`)
}
