package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jatinkumar-gitdev/happily-mart/internal/config"
	"github.com/jatinkumar-gitdev/happily-mart/server"
	"github.com/jatinkumar-gitdev/happily-mart/token/jwt"
	refreshrepofake "github.com/jatinkumar-gitdev/happily-mart/token/refresh/repofake"
	"github.com/jatinkumar-gitdev/happily-mart/users"
	fakeuserrepo "github.com/jatinkumar-gitdev/happily-mart/users/repofake"
	"github.com/stretchr/testify/require"
)

const seedPassword = "Mart@12345"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	srv   *httptest.Server
	users *fakeuserrepo.FakeUserRepo
	clock *clock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users: fakeuserrepo.NewFakeUserRepo(),
		clock: &clock{now: time.Now()},
	}
	jwt.NowTimeFunc = env.clock.Now
	t.Cleanup(func() { jwt.NowTimeFunc = time.Now })

	cfg, err := config.Load("")
	require.NoError(t, err)

	s, err := server.New(cfg, server.Repos{
		Users:         env.users,
		RefreshTokens: refreshrepofake.NewFakeRefreshTokenRepo(),
		Deals:         server.NewInMemoryDealRepo(),
	})
	require.NoError(t, err)

	env.srv = httptest.NewServer(s)
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) url(path string) string {
	return e.srv.URL + path
}

type response struct {
	Status  int
	Cookies []*http.Cookie
	Header  http.Header
	Body    map[string]any
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any, cookies ...*http.Cookie) response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.url(path), &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{Status: resp.StatusCode, Cookies: resp.Cookies(), Header: resp.Header}
	_ = json.NewDecoder(resp.Body).Decode(&out.Body)
	return out
}

// login signs in through the given namespace prefix and returns the access
// token and refresh cookie
func (e *testEnv) login(t *testing.T, prefix, email string, rememberMe bool) (string, *http.Cookie) {
	t.Helper()
	resp := e.do(t, http.MethodPost, prefix+server.RouteAuthLogin, "", map[string]any{
		"email": email, "password": seedPassword, "rememberMe": rememberMe,
	})
	require.Equal(t, http.StatusOK, resp.Status, resp.Body)
	token, _ := resp.Body["accessToken"].(string)
	require.NotEmpty(t, token)
	require.Len(t, resp.Cookies, 1)
	return token, resp.Cookies[0]
}

func (e *testEnv) setRole(t *testing.T, email string, role users.RoleType) {
	t.Helper()
	u, err := e.users.GetByEmail(email)
	require.NoError(t, err)
	u.Role = role
	require.NoError(t, e.users.Upsert(u))
}
