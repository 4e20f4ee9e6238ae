// Package apiclient is the single choke point for calls to the Happily Mart
// API. It attaches the session token, and on a 401 refreshes the token once
// and re-issues the request. A failed refresh ends the session.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jatinkumar-gitdev/happily-mart/cookies"
	mterrors "github.com/jatinkumar-gitdev/happily-mart/internal/errors"
	"github.com/jatinkumar-gitdev/happily-mart/internal/obs"
	"github.com/jatinkumar-gitdev/happily-mart/tokencache"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	PathLogin   = "/auth/login"
	PathRefresh = "/auth/refresh-token"
	PathMe      = "/auth/me"
	PathLogout  = "/auth/logout"

	DefaultTimeout = 30 * time.Second

	maxErrorBody = 1 << 20
	refreshKey   = "refresh"
)

// TokenStore is the part of the token cache the client needs.
type TokenStore interface {
	AccessToken() (*oauth2.Token, bool)
	SetAccessToken(token string, rememberMe bool)
	RememberMe() bool
	Clear()
}

var _ TokenStore = (*tokencache.Cache)(nil)

// Config describes one API namespace.
type Config struct {
	BaseURL      string
	Namespace    string
	LoginPath    string
	RefreshPath  string
	LoginPage    string // page a lost session is sent to
	KeepRedirect bool   // append ?redirect=<current path> to LoginPage
	Timeout      time.Duration
	Jar          http.CookieJar // shared with the token cache
}

func UserConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		Namespace:    "user",
		LoginPath:    PathLogin,
		RefreshPath:  PathRefresh,
		LoginPage:    "/login",
		KeepRedirect: true,
		Timeout:      DefaultTimeout,
	}
}

func AdminConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		Namespace:   "admin",
		LoginPath:   PathLogin,
		RefreshPath: PathRefresh,
		LoginPage:   "/admin/login",
		Timeout:     DefaultTimeout,
	}
}

type Client struct {
	cfg         Config
	store       TokenStore
	http        *http.Client
	refreshHTTP *http.Client
	base        http.RoundTripper
	navigator   Navigator
	currentPath func() string
	limiter     *rate.Limiter
	metrics     *obs.ClientMetrics
	logger      zerolog.Logger
	nowFunc     func() time.Time

	refreshGroup singleflight.Group

	hooksMu       sync.RWMutex
	onSessionLost []func()
}

type Option func(*Client)

// WithHTTPClient reuses the transport, jar and timeout of hc. The client
// always wraps the transport with its own.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc == nil {
			return
		}
		if hc.Transport != nil {
			c.base = hc.Transport
		}
		if hc.Jar != nil && c.cfg.Jar == nil {
			c.cfg.Jar = hc.Jar
		}
		if hc.Timeout > 0 {
			c.cfg.Timeout = hc.Timeout
		}
	}
}

func WithNavigator(n Navigator) Option {
	return func(c *Client) {
		if n != nil {
			c.navigator = n
		}
	}
}

// WithCurrentPath supplies the path kept as the post-login redirect target.
func WithCurrentPath(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.currentPath = fn
		}
	}
}

func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

func WithMetrics(m *obs.ClientMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Client) {
		c.nowFunc = now
	}
}

func New(cfg Config, store TokenStore, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, pkgerrors.New("[apiclient.New] token store is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[apiclient.New] invalid base url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, pkgerrors.Errorf("[apiclient.New] base url %q must be absolute http(s)", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.LoginPath == "" {
		cfg.LoginPath = PathLogin
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = PathRefresh
	}
	if cfg.LoginPage == "" {
		cfg.LoginPage = "/login"
	}

	c := &Client{
		cfg:         cfg,
		store:       store,
		base:        http.DefaultTransport,
		navigator:   logNavigator{},
		currentPath: func() string { return "/" },
		logger:      log.Logger,
		nowFunc:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.Jar == nil {
		c.cfg.Jar = cookies.New()
	}
	if c.cfg.Timeout <= 0 {
		c.cfg.Timeout = DefaultTimeout
	}
	c.logger = c.logger.With().Str("namespace", c.cfg.Namespace).Logger()

	c.http = &http.Client{
		Transport: &Transport{base: c.base, client: c},
		Jar:       c.cfg.Jar,
		Timeout:   c.cfg.Timeout,
	}
	// The refresh call bypasses Transport so a failing refresh can never
	// trigger another refresh.
	c.refreshHTTP = &http.Client{
		Transport: c.base,
		Jar:       c.cfg.Jar,
		Timeout:   c.cfg.Timeout,
	}
	return c, nil
}

func (c *Client) Config() Config {
	return c.cfg
}

// HTTPClient returns the instrumented client for callers that need raw access.
// A request whose body cannot be replayed (no GetBody) still triggers the
// refresh on 401, but the 401 is returned instead of being re-sent.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// OnSessionLost registers fn to run after a failed refresh purged the tokens.
func (c *Client) OnSessionLost(fn func()) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onSessionLost = append(c.onSessionLost, fn)
}

// Do sends method path with in encoded as JSON and decodes a 2xx body into out.
// Non-2xx responses are returned as *errors.APIError.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return pkgerrors.Wrap(err, "[Client.Do] encode body")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return pkgerrors.Wrap(err, "[Client.Do] new request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrapf(err, "[Client.Do] %s %s", method, path)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return pkgerrors.Wrapf(err, "[Client.Do] decode %s %s", method, path)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPut, path, in, out)
}

func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPatch, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Refresh exchanges the refresh cookie for a new access token and stores it
// with the recorded remember-me preference. Concurrent callers share one
// refresh call. A failed refresh purges the tokens, navigates to the login
// page and returns an error matching errors.ErrSessionExpired.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	v, err, shared := c.refreshGroup.Do(refreshKey, func() (interface{}, error) {
		// Shared by every waiter: one caller's cancellation must not fail the rest.
		token, err := c.requestRefresh(context.WithoutCancel(ctx))
		if err != nil {
			c.metrics.ObserveRefresh(c.cfg.Namespace, "failure")
			c.logger.Warn().Err(err).Msg("Token refresh failed")
			c.loseSession()
			return "", fmt.Errorf("[Client.Refresh] %w: %w", mterrors.ErrSessionExpired, err)
		}

		c.store.SetAccessToken(token, c.store.RememberMe())
		c.metrics.ObserveRefresh(c.cfg.Namespace, "success")
		event := c.logger.Debug()
		if exp, ok := tokencache.PeekExpiry(token); ok {
			event = event.Time("expires", exp)
		}
		event.Msg("Token refreshed")
		return token, nil
	})
	if shared {
		c.logger.Debug().Msg("Joined in-flight token refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) requestRefresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.RefreshPath, http.NoBody)
	if err != nil {
		return "", pkgerrors.Wrap(err, "[Client.requestRefresh] new request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.refreshHTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", mterrors.ErrRefreshFailed, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %w", mterrors.ErrRefreshFailed, decodeAPIError(resp))
	}
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", mterrors.ErrRefreshFailed, err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: response has no access token", mterrors.ErrRefreshFailed)
	}
	return body.AccessToken, nil
}

// loseSession purges every token of the namespace, notifies the hooks and
// sends the user to the login page.
func (c *Client) loseSession() {
	c.store.Clear()

	c.hooksMu.RLock()
	hooks := append([]func(){}, c.onSessionLost...)
	c.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn()
	}

	c.navigator.Navigate(loginTarget(c.cfg, c.currentPath()))
}

func (c *Client) isLogin(path string) bool {
	return strings.HasSuffix(path, c.cfg.LoginPath)
}

func (c *Client) skipsRefresh(path string) bool {
	return c.isLogin(path) || strings.HasSuffix(path, c.cfg.RefreshPath)
}

// decodeAPIError reads the backend error body. Bodies that are not JSON keep
// the status text as message.
func decodeAPIError(resp *http.Response) *mterrors.APIError {
	apiErr := &mterrors.APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Code = body.Code
	apiErr.Message = body.Message
	if apiErr.Message == "" {
		apiErr.Message = body.Error
	}
	return apiErr
}
