package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jatinkumar-gitdev/happily-mart/apiclient"
	mterrors "github.com/jatinkumar-gitdev/happily-mart/internal/errors"
	"github.com/jatinkumar-gitdev/happily-mart/internal/obs"
	"github.com/jatinkumar-gitdev/happily-mart/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	revalidateKey = "revalidate"
	initializeKey = "initialize"
)

// API is the part of the request client the manager needs.
type API interface {
	Do(ctx context.Context, method, path string, in, out any) error
	OnSessionLost(fn func())
}

var _ API = (*apiclient.Client)(nil)

// Manager owns the Session of one namespace. It is safe for concurrent use.
type Manager struct {
	policy  Policy
	api     API
	tokens  apiclient.TokenStore
	nowFunc func() time.Time
	logger  zerolog.Logger
	metrics *obs.ClientMetrics

	mu         sync.RWMutex
	session    Session
	generation uint64 // bumped whenever the session is replaced or reset

	group singleflight.Group

	subsMu  sync.Mutex
	subs    map[int]func(Session)
	nextSub int
}

type Option func(*Manager)

func WithNowFunc(now func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(metrics *obs.ClientMetrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// NewManager creates the manager and registers it with api so a failed silent
// refresh also resets the session. A token already present starts the session
// optimistically logged in, pending the first revalidation.
func NewManager(policy Policy, api API, tokens apiclient.TokenStore, opts ...Option) *Manager {
	if policy.FreshnessWindow <= 0 {
		policy.FreshnessWindow = DefaultFreshnessWindow
	}
	m := &Manager{
		policy:  policy,
		api:     api,
		tokens:  tokens,
		nowFunc: time.Now,
		logger:  log.Logger,
		subs:    make(map[int]func(Session)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("namespace", policy.Namespace).Logger()

	if _, ok := tokens.AccessToken(); ok {
		m.session = Session{IsAuthenticated: true, State: LoggedIn, RememberMe: tokens.RememberMe()}
	}
	api.OnSessionLost(m.reset)
	return m
}

func (m *Manager) Policy() Policy {
	return m.policy
}

// Login exchanges credentials for a token and profile and stores both.
func (m *Manager) Login(ctx context.Context, creds Credentials) (*users.Profile, error) {
	var resp authResponse
	if err := m.api.Do(ctx, http.MethodPost, m.policy.LoginPath, creds, &resp); err != nil {
		if apiErr, ok := mterrors.AsAPIError(err); ok && !apiErr.IsDeactivated() && apiErr.Status == http.StatusUnauthorized {
			return nil, fmt.Errorf("[Manager.Login] %w: %w", mterrors.ErrInvalidCredentials, err)
		}
		return nil, pkgerrors.Wrap(err, "[Manager.Login]")
	}
	if resp.AccessToken == "" {
		return nil, pkgerrors.Wrap(mterrors.ErrInternal, "[Manager.Login] response has no access token")
	}
	if m.policy.Validate != nil {
		if err := m.policy.Validate(resp.User); err != nil {
			m.tokens.Clear()
			return nil, pkgerrors.Wrap(err, "[Manager.Login]")
		}
	}

	m.SetAuth(resp.User, resp.AccessToken, creds.RememberMe)
	m.logger.Info().Str("user", resp.User.Email).Bool("rememberMe", creds.RememberMe).Msg("Logged in")
	user := resp.User
	return &user, nil
}

// SetAuth stores token with the remember-me preference and marks user as the
// freshly validated owner of the session.
func (m *Manager) SetAuth(user users.Profile, token string, rememberMe bool) {
	m.tokens.SetAccessToken(token, rememberMe)
	m.update(func(s *Session) {
		m.generation++
		s.User = &user
		s.IsAuthenticated = true
		s.LastValidatedAt = m.nowFunc()
		s.RememberMe = rememberMe
		s.State = LoggedIn
	})
}

// Logout tells the backend on a best-effort basis, then purges the tokens and
// resets the session. It always succeeds locally.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.api.Do(ctx, http.MethodPost, m.policy.LogoutPath, nil, nil); err != nil {
		m.logger.Debug().Err(err).Msg("Logout call failed, clearing locally")
	}
	m.tokens.Clear()
	m.reset()
}

// Revalidate confirms the session with the backend. A user validated within
// the freshness window is trusted without a call, and concurrent callers share
// one in-flight validation.
func (m *Manager) Revalidate(ctx context.Context) bool {
	return m.revalidate(ctx, m.policy.AlwaysRevalidate)
}

// InitializeAuth validates the session at startup. It always asks the backend
// and applies the policy's profile check.
func (m *Manager) InitializeAuth(ctx context.Context) bool {
	return m.revalidate(ctx, true)
}

func (m *Manager) revalidate(ctx context.Context, force bool) bool {
	if !force && m.fresh() {
		return true
	}
	key := revalidateKey
	if force {
		key = initializeKey
	}
	v, _, _ := m.group.Do(key, func() (interface{}, error) {
		// A flight that finished just before this one may have validated already.
		if !force && m.fresh() {
			return true, nil
		}
		return m.validate(context.WithoutCancel(ctx)), nil
	})
	return v.(bool)
}

func (m *Manager) validate(ctx context.Context) bool {
	if _, ok := m.tokens.AccessToken(); !ok {
		m.logger.Debug().Msg("No access token, logging out")
		m.Logout(ctx)
		return false
	}

	gen := m.currentGeneration()
	m.commit(gen, func(s *Session) {
		s.State = Validating
	})

	profile, err := m.fetchMe(ctx)
	if err == nil && m.policy.Validate != nil {
		err = m.policy.Validate(profile)
	}
	if err != nil {
		if m.currentGeneration() != gen {
			// A logout, lost refresh or new login already decided the session.
			return m.IsAuthenticated()
		}
		m.logger.Info().Err(err).Msg("Session validation failed")
		m.Logout(ctx)
		return false
	}

	if _, ok := m.tokens.AccessToken(); !ok {
		m.logger.Debug().Msg("Token removed during validation")
		m.reset()
		return false
	}
	rememberMe := m.tokens.RememberMe()
	committed := m.commit(gen, func(s *Session) {
		s.User = &profile
		s.IsAuthenticated = true
		s.LastValidatedAt = m.nowFunc()
		s.RememberMe = rememberMe
		s.State = LoggedIn
	})
	if !committed {
		m.logger.Debug().Msg("Session changed during validation, result dropped")
		return m.IsAuthenticated()
	}
	return true
}

// fetchMe accepts both {"user": {...}} and a bare profile.
func (m *Manager) fetchMe(ctx context.Context) (users.Profile, error) {
	var raw json.RawMessage
	if err := m.api.Do(ctx, http.MethodGet, m.policy.MePath, nil, &raw); err != nil {
		return users.Profile{}, pkgerrors.Wrap(err, "[Manager.fetchMe]")
	}

	var wrapped struct {
		User *users.Profile `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.User != nil {
		return *wrapped.User, nil
	}
	var profile users.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return users.Profile{}, pkgerrors.Wrap(err, "[Manager.fetchMe] decode profile")
	}
	if profile.ID == "" && profile.Email == "" {
		return users.Profile{}, pkgerrors.New("[Manager.fetchMe] empty profile")
	}
	return profile, nil
}

// UpdateUser merges patch into the cached user without calling the backend.
// It reports false when there is no user to update.
func (m *Manager) UpdateUser(patch users.ProfilePatch) bool {
	updated := false
	m.update(func(s *Session) {
		if s.User == nil {
			return
		}
		user := s.User.Apply(patch)
		s.User = &user
		updated = true
	})
	return updated
}

// SyncWithCookies forces IsAuthenticated to match whether the token cookie
// exists. A missing cookie also drops the cached user.
func (m *Manager) SyncWithCookies() {
	_, hasToken := m.tokens.AccessToken()
	m.update(func(s *Session) {
		if hasToken == s.IsAuthenticated {
			return
		}
		if !hasToken {
			m.generation++
			*s = Session{State: LoggedOut}
			return
		}
		s.IsAuthenticated = true
		s.State = LoggedIn
	})
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.State
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.IsAuthenticated
}

// Snapshot returns a copy of the session.
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.clone()
}

// Subscribe calls fn with a snapshot after every change until the returned
// function is called.
func (m *Manager) Subscribe(fn func(Session)) (unsubscribe func()) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		delete(m.subs, id)
	}
}

func (m *Manager) fresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.session
	if s.User == nil || s.LastValidatedAt.IsZero() {
		return false
	}
	return m.nowFunc().Sub(s.LastValidatedAt) < m.policy.FreshnessWindow
}

func (m *Manager) reset() {
	m.update(func(s *Session) {
		m.generation++
		*s = Session{State: LoggedOut}
	})
}

func (m *Manager) currentGeneration() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// update applies fn under the lock and notifies subscribers when the session
// changed.
func (m *Manager) update(fn func(*Session)) {
	m.apply(nil, fn)
}

// commit applies fn only while the session is still at generation gen.
func (m *Manager) commit(gen uint64, fn func(*Session)) bool {
	return m.apply(&gen, fn)
}

func (m *Manager) apply(gen *uint64, fn func(*Session)) bool {
	m.mu.Lock()
	if gen != nil && *gen != m.generation {
		m.mu.Unlock()
		return false
	}
	before := m.session.clone()
	fn(&m.session)
	after := m.session.clone()
	m.mu.Unlock()

	if equalSessions(before, after) {
		return true
	}
	if before.State != after.State {
		m.metrics.ObserveTransition(m.policy.Namespace, after.State.String())
	}
	m.notify(after)
	return true
}

func (m *Manager) notify(s Session) {
	m.subsMu.Lock()
	subs := make([]func(Session), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.subsMu.Unlock()

	for _, fn := range subs {
		fn(s.clone())
	}
}

func equalSessions(a, b Session) bool {
	if a.IsAuthenticated != b.IsAuthenticated || a.State != b.State ||
		a.RememberMe != b.RememberMe || !a.LastValidatedAt.Equal(b.LastValidatedAt) {
		return false
	}
	if (a.User == nil) != (b.User == nil) {
		return false
	}
	return a.User == nil || *a.User == *b.User
}
