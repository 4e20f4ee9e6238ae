// Package tokencache stores the bearer token of one session namespace.
//
// The token cookie is the single source of truth. For namespaces that mirror the
// token into storage, the mirror is always re-derived from the cookie: a token
// that only survives in storage is purged instead of being sent.
package tokencache

import (
	"net/http"
	"time"

	"github.com/jatinkumar-gitdev/happily-mart/cookies"
	mterrors "github.com/jatinkumar-gitdev/happily-mart/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	DefaultRememberedExpiry = 30 * 24 * time.Hour
	DefaultSessionExpiry    = 24 * time.Hour

	tokenTypeBearer = "Bearer"
)

var _ oauth2.TokenSource = (*Cache)(nil)

type Cache struct {
	ns               Namespace
	jar              *cookies.Jar
	local            Storage // survives restarts
	session          Storage // dies with the process
	secure           bool
	rememberedExpiry time.Duration
	sessionExpiry    time.Duration
	nowFunc          func() time.Time
	logger           zerolog.Logger
}

type Option func(*Cache)

// WithLocalStorage sets the storage used for remembered tokens and preferences
func WithLocalStorage(s Storage) Option {
	return func(c *Cache) {
		c.local = s
	}
}

// WithSessionStorage sets the storage used for non-remembered tokens
func WithSessionStorage(s Storage) Option {
	return func(c *Cache) {
		c.session = s
	}
}

// WithSecure marks token cookies Secure (production)
func WithSecure(secure bool) Option {
	return func(c *Cache) {
		c.secure = secure
	}
}

func WithExpiry(remembered, session time.Duration) Option {
	return func(c *Cache) {
		if remembered > 0 {
			c.rememberedExpiry = remembered
		}
		if session > 0 {
			c.sessionExpiry = session
		}
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a cache for ns on top of jar. Without storage options both
// storages are in-memory.
func New(ns Namespace, jar *cookies.Jar, opts ...Option) *Cache {
	c := &Cache{
		ns:               ns,
		jar:              jar,
		rememberedExpiry: DefaultRememberedExpiry,
		sessionExpiry:    DefaultSessionExpiry,
		nowFunc:          time.Now,
		logger:           log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.local == nil {
		c.local = NewMemoryStorage()
	}
	if c.session == nil {
		c.session = NewMemoryStorage()
	}
	c.logger = c.logger.With().Str("namespace", ns.Name).Logger()
	return c
}

func (c *Cache) Namespace() Namespace {
	return c.ns
}

// SetAccessToken stores token in the namespace cookie, expiring in 30 days when
// rememberMe is set and 1 day otherwise, and records the preference. An empty
// token clears the cache.
func (c *Cache) SetAccessToken(token string, rememberMe bool) {
	if token == "" {
		c.Clear()
		return
	}

	expiry := c.sessionExpiry
	if rememberMe {
		expiry = c.rememberedExpiry
	}
	c.jar.Set(&http.Cookie{
		Name:     c.ns.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  c.nowFunc().Add(expiry),
		Secure:   c.secure,
		SameSite: c.ns.SameSite,
	})

	c.storageSet(c.local, c.ns.RememberMeKey, formatBool(rememberMe))
	if c.ns.Mirror {
		c.mirror(token, rememberMe)
	}
}

// AccessToken returns the current token. The cookie is read first; the storage
// mirror is brought in line with it either way.
func (c *Cache) AccessToken() (*oauth2.Token, bool) {
	cookie, ok := c.jar.Get(c.ns.CookieName)
	if !ok || cookie.Value == "" {
		if c.ns.Mirror {
			c.purgeMirror()
		}
		return nil, false
	}
	if c.ns.Mirror {
		c.mirror(cookie.Value, c.RememberMe())
	}
	return &oauth2.Token{
		AccessToken: cookie.Value,
		TokenType:   tokenTypeBearer,
		Expiry:      cookie.Expires,
	}, true
}

// GetAccessToken returns the raw token or "" when absent.
func (c *Cache) GetAccessToken() string {
	tok, ok := c.AccessToken()
	if !ok {
		return ""
	}
	return tok.AccessToken
}

// HasToken reports whether the namespace cookie currently exists.
func (c *Cache) HasToken() bool {
	_, ok := c.jar.Get(c.ns.CookieName)
	return ok
}

// Token implements oauth2.TokenSource.
func (c *Cache) Token() (*oauth2.Token, error) {
	tok, ok := c.AccessToken()
	if !ok {
		return nil, mterrors.ErrNoToken
	}
	return tok, nil
}

// RememberMe returns the persisted remember-me preference.
func (c *Cache) RememberMe() bool {
	v, ok := c.local.Get(c.ns.RememberMeKey)
	return ok && v == "true"
}

// Clear removes the token cookies, every mirrored key and the preference.
// Calling it repeatedly is safe.
func (c *Cache) Clear() {
	c.jar.Delete(append([]string{c.ns.CookieName}, c.ns.ExtraCookies...)...)
	c.purgeMirror()
	c.storageRemove(c.local, c.ns.RememberMeKey)
}

// RemoveAll is an alias of Clear.
func (c *Cache) RemoveAll() {
	c.Clear()
}

func (c *Cache) mirror(token string, rememberMe bool) {
	if c.ns.StorageKey == "" {
		return
	}
	target, other := c.session, c.local
	if rememberMe {
		target, other = c.local, c.session
	}
	c.storageSet(target, c.ns.StorageKey, token)
	c.storageRemove(other, c.ns.StorageKey)
}

func (c *Cache) purgeMirror() {
	if c.ns.StorageKey == "" {
		return
	}
	c.storageRemove(c.local, c.ns.StorageKey)
	c.storageRemove(c.session, c.ns.StorageKey)
}

func (c *Cache) storageSet(s Storage, key, value string) {
	if current, ok := s.Get(key); ok && current == value {
		return
	}
	if err := s.Set(key, value); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("token cache: storage write failed")
	}
}

func (c *Cache) storageRemove(s Storage, key string) {
	if _, ok := s.Get(key); !ok {
		return
	}
	if err := s.Remove(key); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("token cache: storage remove failed")
	}
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
