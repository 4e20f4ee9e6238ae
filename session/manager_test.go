package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jatinkumar-gitdev/happily-mart/apiclient"
	"github.com/jatinkumar-gitdev/happily-mart/cookies"
	mterrors "github.com/jatinkumar-gitdev/happily-mart/internal/errors"
	"github.com/jatinkumar-gitdev/happily-mart/internal/utils"
	"github.com/jatinkumar-gitdev/happily-mart/session"
	"github.com/jatinkumar-gitdev/happily-mart/tokencache"
	"github.com/jatinkumar-gitdev/happily-mart/users"
	"github.com/stretchr/testify/require"
)

type backend struct {
	mu        sync.Mutex
	profile   users.Profile
	token     string
	lastLogin map[string]any

	loginStatus  int
	loginError   map[string]any
	meStatus     int
	meBare       bool
	meGate       chan struct{}
	logoutStatus int

	meCalls      atomic.Int32
	logoutCalls  atomic.Int32
	refreshCalls atomic.Int32
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, apiclient.PathLogin):
		b.login(w, r)
	case strings.HasSuffix(r.URL.Path, apiclient.PathMe):
		b.me(w, r)
	case strings.HasSuffix(r.URL.Path, apiclient.PathLogout):
		b.logoutCalls.Add(1)
		if b.logoutStatus != 0 {
			writeJSON(w, b.logoutStatus, map[string]any{"success": false, "message": "boom"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case strings.HasSuffix(r.URL.Path, apiclient.PathRefresh):
		b.refreshCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "No refresh token"})
	default:
		http.NotFound(w, r)
	}
}

func (b *backend) login(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	b.mu.Lock()
	b.lastLogin = body
	profile, token := b.profile, b.token
	b.mu.Unlock()

	if b.loginStatus != 0 {
		writeJSON(w, b.loginStatus, b.loginError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": profile, "accessToken": token})
}

func (b *backend) me(w http.ResponseWriter, r *http.Request) {
	b.meCalls.Add(1)
	if b.meGate != nil {
		<-b.meGate
	}
	if b.meStatus != 0 {
		writeJSON(w, b.meStatus, map[string]any{"success": false, "message": "Server error"})
		return
	}
	b.mu.Lock()
	profile, token := b.profile, b.token
	b.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer "+token {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Token expired"})
		return
	}
	if b.meBare {
		writeJSON(w, http.StatusOK, profile)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": profile})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

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

type fixture struct {
	backend *backend
	jar     *cookies.Jar
	cache   *tokencache.Cache
	client  *apiclient.Client
	clock   *clock
	targets []string
	admin   bool
}

func buyer() users.Profile {
	return users.Profile{ID: "u-1", Name: "Asha", Email: "asha@happilymart.test", Role: users.RoleUser, IsActive: true}
}

func admin() users.Profile {
	return users.Profile{ID: "a-1", Name: "Ravi", Email: "ravi@happilymart.test", Role: users.RoleAdmin, IsActive: true}
}

func newFixture(t *testing.T, isAdmin bool) *fixture {
	t.Helper()
	f := &fixture{
		backend: &backend{profile: buyer(), token: "good-token"},
		jar:     cookies.New(),
		clock:   &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		admin:   isAdmin,
	}
	if isAdmin {
		f.backend.profile = admin()
	}
	srv := httptest.NewServer(f.backend)
	t.Cleanup(srv.Close)

	ns, cfg := tokencache.UserNamespace(), apiclient.UserConfig(srv.URL+"/api")
	if isAdmin {
		ns, cfg = tokencache.AdminNamespace(), apiclient.AdminConfig(srv.URL+"/api/admin")
	}
	cfg.Jar = f.jar
	f.cache = tokencache.New(ns, f.jar)

	var err error
	f.client, err = apiclient.New(cfg, f.cache,
		apiclient.WithHTTPClient(srv.Client()),
		apiclient.WithNavigator(apiclient.NavigatorFunc(func(target string) {
			f.targets = append(f.targets, target)
		})),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) manager() *session.Manager {
	policy := session.UserPolicy()
	if f.admin {
		policy = session.AdminPolicy()
	}
	return session.NewManager(policy, f.client, f.cache, session.WithNowFunc(f.clock.Now))
}

func TestManager_InitialState(t *testing.T) {
	f := newFixture(t, false)
	m := f.manager()
	require.Equal(t, session.LoggedOut, m.State())
	require.False(t, m.IsAuthenticated())

	f.cache.SetAccessToken("good-token", true)
	m = f.manager()
	require.Equal(t, session.LoggedIn, m.State())
	snap := m.Snapshot()
	require.True(t, snap.IsAuthenticated)
	require.True(t, snap.RememberMe)
	require.Nil(t, snap.User)
}

func TestManager_Login(t *testing.T) {
	f := newFixture(t, false)
	m := f.manager()

	var seen []session.State
	unsubscribe := m.Subscribe(func(s session.Session) { seen = append(seen, s.State) })
	defer unsubscribe()

	user, err := m.Login(context.Background(), session.Credentials{
		Email:        "asha@happilymart.test",
		Password:     "secret",
		RememberMe:   false,
		CaptchaToken: "captcha-1",
	})
	require.NoError(t, err)
	require.Equal(t, buyer(), *user)

	require.Equal(t, false, f.backend.lastLogin["rememberMe"])
	require.Equal(t, "captcha-1", f.backend.lastLogin["captchaToken"])

	snap := m.Snapshot()
	require.Equal(t, session.LoggedIn, snap.State)
	require.True(t, snap.IsAuthenticated)
	require.Equal(t, f.clock.Now(), snap.LastValidatedAt)
	require.Equal(t, "good-token", f.cache.GetAccessToken())
	require.False(t, f.cache.RememberMe())
	require.Equal(t, []session.State{session.LoggedIn}, seen)
}

func TestManager_LoginFailures(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    map[string]any
		wantErr error
	}{
		{
			name:    "invalid credentials",
			status:  http.StatusUnauthorized,
			body:    map[string]any{"success": false, "message": "Invalid email or password"},
			wantErr: mterrors.ErrInvalidCredentials,
		},
		{
			name:    "deactivated by code",
			status:  http.StatusForbidden,
			body:    map[string]any{"success": false, "message": "Please contact support", "code": mterrors.CodeAccountDeactivated},
			wantErr: mterrors.ErrAccountDeactivated,
		},
		{
			name:    "deactivated by message",
			status:  http.StatusUnauthorized,
			body:    map[string]any{"success": false, "message": "Your account has been deactivated"},
			wantErr: mterrors.ErrAccountDeactivated,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, false)
			f.backend.loginStatus = tc.status
			f.backend.loginError = tc.body
			m := f.manager()

			user, err := m.Login(context.Background(), session.Credentials{Email: "asha@happilymart.test", Password: "nope"})
			require.ErrorIs(t, err, tc.wantErr)
			require.Nil(t, user)
			require.Equal(t, session.LoggedOut, m.State())
			require.False(t, f.cache.HasToken())
			require.Equal(t, int32(0), f.backend.refreshCalls.Load())
		})
	}
}

func TestManager_AdminLoginRejectsNonAdmin(t *testing.T) {
	f := newFixture(t, true)
	f.backend.profile = buyer()
	m := f.manager()

	_, err := m.Login(context.Background(), session.Credentials{Email: "asha@happilymart.test", Password: "secret"})
	require.ErrorIs(t, err, mterrors.ErrNotAdmin)
	require.False(t, f.cache.HasToken())
	require.False(t, m.IsAuthenticated())
}

func TestManager_InitializeAuthRoleGate(t *testing.T) {
	f := newFixture(t, true)
	f.backend.profile = buyer()
	f.cache.SetAccessToken("good-token", true)
	m := f.manager()
	require.True(t, m.IsAuthenticated())

	require.False(t, m.InitializeAuth(context.Background()))
	require.False(t, m.IsAuthenticated())
	require.Nil(t, m.Snapshot().User)
	require.False(t, f.cache.HasToken())
	require.Equal(t, int32(1), f.backend.meCalls.Load())
	require.Equal(t, int32(1), f.backend.logoutCalls.Load())
}

func TestManager_InitializeAuthIgnoresFreshness(t *testing.T) {
	f := newFixture(t, true)
	m := f.manager()
	m.SetAuth(admin(), "good-token", true)

	require.True(t, m.Revalidate(context.Background()))
	require.Equal(t, int32(0), f.backend.meCalls.Load())

	require.True(t, m.InitializeAuth(context.Background()))
	require.Equal(t, int32(1), f.backend.meCalls.Load())
	require.Equal(t, admin(), *m.Snapshot().User)
}

func TestManager_RevalidateFreshnessWindow(t *testing.T) {
	f := newFixture(t, false)
	m := f.manager()
	m.SetAuth(buyer(), "good-token", false)

	f.clock.Advance(59 * time.Second)
	require.True(t, m.Revalidate(context.Background()))
	require.Equal(t, int32(0), f.backend.meCalls.Load())

	f.clock.Advance(2 * time.Second)
	f.backend.meBare = true
	require.True(t, m.Revalidate(context.Background()))
	require.Equal(t, int32(1), f.backend.meCalls.Load())
	require.Equal(t, f.clock.Now(), m.Snapshot().LastValidatedAt)
}

func TestManager_AlwaysRevalidatePolicy(t *testing.T) {
	f := newFixture(t, false)
	policy := session.UserPolicy()
	policy.AlwaysRevalidate = true
	m := session.NewManager(policy, f.client, f.cache, session.WithNowFunc(f.clock.Now))
	m.SetAuth(buyer(), "good-token", false)

	require.True(t, m.Revalidate(context.Background()))
	require.Equal(t, int32(1), f.backend.meCalls.Load())
}

func TestManager_RevalidateSharesInFlightCall(t *testing.T) {
	f := newFixture(t, false)
	f.backend.meGate = make(chan struct{})
	f.cache.SetAccessToken("good-token", true)
	m := f.manager()

	results := make(chan bool, 2)
	go func() { results <- m.Revalidate(context.Background()) }()
	require.Eventually(t, func() bool {
		return f.backend.meCalls.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, session.Validating, m.State())

	go func() { results <- m.Revalidate(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	close(f.backend.meGate)

	require.True(t, <-results)
	require.True(t, <-results)
	require.Equal(t, int32(1), f.backend.meCalls.Load())
	require.Equal(t, session.LoggedIn, m.State())
	require.Equal(t, buyer(), *m.Snapshot().User)
}

func TestManager_RevalidateWithoutToken(t *testing.T) {
	f := newFixture(t, false)
	m := f.manager()

	require.False(t, m.Revalidate(context.Background()))
	require.Equal(t, int32(0), f.backend.meCalls.Load())
	require.Equal(t, session.Session{State: session.LoggedOut}, m.Snapshot())
}

func TestManager_RevalidateFailureLogsOut(t *testing.T) {
	f := newFixture(t, false)
	f.backend.meStatus = http.StatusInternalServerError
	m := f.manager()
	m.SetAuth(buyer(), "good-token", true)
	f.clock.Advance(time.Hour)

	require.False(t, m.Revalidate(context.Background()))
	require.Equal(t, session.Session{State: session.LoggedOut}, m.Snapshot())
	require.False(t, f.cache.HasToken())
}

func TestManager_FailedRefreshResetsSession(t *testing.T) {
	f := newFixture(t, false)
	m := f.manager()
	m.SetAuth(buyer(), "stale-token", true)
	f.clock.Advance(time.Hour)

	require.False(t, m.Revalidate(context.Background()))
	require.Equal(t, int32(1), f.backend.refreshCalls.Load())
	require.Equal(t, []string{"/login?redirect=%2F"}, f.targets)
	require.Equal(t, session.Session{State: session.LoggedOut}, m.Snapshot())
	require.False(t, f.cache.HasToken())
}

func TestManager_LogoutIsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	f.backend.logoutStatus = http.StatusInternalServerError
	m := f.manager()
	m.SetAuth(buyer(), "good-token", true)

	m.Logout(context.Background())
	first := m.Snapshot()
	m.Logout(context.Background())
	second := m.Snapshot()

	require.Equal(t, session.Session{State: session.LoggedOut}, first)
	require.Equal(t, first, second)
	require.False(t, f.cache.HasToken())
	require.Equal(t, int32(2), f.backend.logoutCalls.Load())
}

func TestManager_UpdateUser(t *testing.T) {
	f := newFixture(t, false)
	m := f.manager()
	require.False(t, m.UpdateUser(users.ProfilePatch{Name: utils.Ptr("Nobody")}))

	m.SetAuth(buyer(), "good-token", false)
	require.True(t, m.UpdateUser(users.ProfilePatch{City: utils.Ptr("Pune"), Credits: utils.Ptr(12)}))

	user := m.Snapshot().User
	require.Equal(t, "Pune", user.City)
	require.Equal(t, 12, user.Credits)
	require.Equal(t, "Asha", user.Name)
	require.Equal(t, int32(0), f.backend.meCalls.Load())
}

func TestManager_SyncWithCookies(t *testing.T) {
	f := newFixture(t, true)
	m := f.manager()
	m.SetAuth(admin(), "good-token", true)

	f.jar.Delete(tokencache.AdminNamespace().CookieName)
	m.SyncWithCookies()
	require.False(t, m.IsAuthenticated())
	require.Nil(t, m.Snapshot().User)

	f.cache.SetAccessToken("good-token", true)
	m.SyncWithCookies()
	require.True(t, m.IsAuthenticated())
	require.Equal(t, session.LoggedIn, m.State())
}

func TestManager_Unsubscribe(t *testing.T) {
	f := newFixture(t, false)
	m := f.manager()

	var calls atomic.Int32
	unsubscribe := m.Subscribe(func(session.Session) { calls.Add(1) })
	m.SetAuth(buyer(), "good-token", false)
	unsubscribe()
	m.Logout(context.Background())

	require.Equal(t, int32(1), calls.Load())
}

func TestManager_LogoutDuringRevalidationWins(t *testing.T) {
	f := newFixture(t, false)
	f.backend.meGate = make(chan struct{})
	f.cache.SetAccessToken("good-token", true)
	m := f.manager()

	result := make(chan bool, 1)
	go func() { result <- m.Revalidate(context.Background()) }()
	require.Eventually(t, func() bool {
		return f.backend.meCalls.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	m.Logout(context.Background())
	close(f.backend.meGate)

	require.False(t, <-result)
	require.False(t, m.IsAuthenticated())
	require.Equal(t, session.Session{State: session.LoggedOut}, m.Snapshot())
	require.False(t, f.cache.HasToken())
}

func TestManager_LoginDuringRevalidationKeepsNewUser(t *testing.T) {
	f := newFixture(t, false)
	f.backend.meGate = make(chan struct{})
	f.backend.meStatus = http.StatusInternalServerError
	f.cache.SetAccessToken("good-token", true)
	m := f.manager()

	result := make(chan bool, 1)
	go func() { result <- m.Revalidate(context.Background()) }()
	require.Eventually(t, func() bool {
		return f.backend.meCalls.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	m.SetAuth(admin(), "good-token", false)
	close(f.backend.meGate)

	require.True(t, <-result)
	require.Equal(t, session.LoggedIn, m.State())
	require.Equal(t, admin(), *m.Snapshot().User)
	require.True(t, f.cache.HasToken())
	require.Equal(t, int32(0), f.backend.logoutCalls.Load())
}

func TestManager_InitializeAuthDoesNotJoinRevalidate(t *testing.T) {
	f := newFixture(t, false)
	f.backend.meGate = make(chan struct{})
	f.cache.SetAccessToken("good-token", true)
	m := f.manager()

	results := make(chan bool, 2)
	go func() { results <- m.Revalidate(context.Background()) }()
	require.Eventually(t, func() bool {
		return f.backend.meCalls.Load() == 1
	}, 5*time.Second, 5*time.Millisecond)

	go func() { results <- m.InitializeAuth(context.Background()) }()
	require.Eventually(t, func() bool {
		return f.backend.meCalls.Load() == 2
	}, 5*time.Second, 5*time.Millisecond)
	close(f.backend.meGate)

	require.True(t, <-results)
	require.True(t, <-results)
	require.Equal(t, session.LoggedIn, m.State())
}
