// Package cookies provides an http.CookieJar that, unlike net/http/cookiejar,
// keeps every cookie attribute readable so callers can inspect expiry, SameSite
// and Secure.
//
// Cookies received from a server are scoped to the host that set them, or to
// its Domain attribute. Cookies written through Set without a Domain are sent
// to every origin, like document.cookie on the page that owns the jar.
package cookies

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ http.CookieJar = (*Jar)(nil)

// Entry is the persisted form of a cookie. Cookies without an expiry are
// session cookies and are never persisted.
type Entry struct {
	Name     string        `yaml:"name"`
	Value    string        `yaml:"value"`
	Path     string        `yaml:"path"`
	Expires  time.Time     `yaml:"expires"`
	Secure   bool          `yaml:"secure,omitempty"`
	HttpOnly bool          `yaml:"http_only,omitempty"`
	SameSite http.SameSite `yaml:"same_site,omitempty"`
	Host     string        `yaml:"host,omitempty"`
	HostOnly bool          `yaml:"host_only,omitempty"`
}

type key struct {
	name string
	host string
}

// stored is a cookie plus the host it is scoped to. An empty host matches any.
type stored struct {
	*http.Cookie
	host     string
	hostOnly bool
}

type Jar struct {
	mu      sync.RWMutex
	cookies map[key]*stored
	nowFunc func() time.Time
}

type Option func(*Jar)

// WithNowFunc overrides the clock used to evaluate expiry
func WithNowFunc(now func() time.Time) Option {
	return func(j *Jar) {
		j.nowFunc = now
	}
}

func New(opts ...Option) *Jar {
	j := &Jar{
		cookies: make(map[key]*stored),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// SetCookies implements http.CookieJar. Server responses land here, which is how
// HttpOnly refresh cookies are kept for later refresh calls.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if u == nil {
		return
	}
	reqHost := canonicalHost(u.Hostname())
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range cookies {
		if c == nil {
			continue
		}
		host, hostOnly := reqHost, true
		if d := canonicalHost(c.Domain); d != "" {
			if !domainMatch(reqHost, d) {
				continue
			}
			host, hostOnly = d, false
		}
		j.setLocked(c, host, hostOnly)
	}
}

// Cookies implements http.CookieJar. Only name and value are returned, as a
// browser would send them.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.nowFunc()
	secure := u != nil && u.Scheme == "https"
	path, host := "/", ""
	if u != nil {
		host = canonicalHost(u.Hostname())
		if u.Path != "" {
			path = u.Path
		}
	}

	var out []*http.Cookie
	for k, c := range j.cookies {
		if j.expiredLocked(c.Cookie, now) {
			delete(j.cookies, k)
			continue
		}
		if c.Secure && !secure {
			continue
		}
		if !c.matchesHost(host) {
			continue
		}
		if !pathMatch(path, c.Path) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Set stores c as if it had been written by client code (js-cookie style).
func (j *Jar) Set(c *http.Cookie) {
	if c == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.setLocked(c, canonicalHost(c.Domain), false)
}

// Get returns a copy of the named cookie with all attributes, if present and
// not expired. A cookie without a host wins over host-scoped ones of the same
// name, which are otherwise picked in host order.
func (j *Jar) Get(name string) (*http.Cookie, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.nowFunc()
	var found *stored
	for k, c := range j.cookies {
		if k.name != name {
			continue
		}
		if j.expiredLocked(c.Cookie, now) {
			delete(j.cookies, k)
			continue
		}
		if found == nil || c.host < found.host {
			found = c
		}
	}
	if found == nil {
		return nil, false
	}
	cp := *found.Cookie
	return &cp, true
}

// Delete removes the named cookies for every host. Deleting a missing cookie
// is a no-op.
func (j *Jar) Delete(names ...string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for k := range j.cookies {
		for _, name := range names {
			if k.name == name {
				delete(j.cookies, k)
				break
			}
		}
	}
}

// Entries returns the persistent (expiring, not yet expired) cookies.
func (j *Jar) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	now := j.nowFunc()
	entries := make([]Entry, 0, len(j.cookies))
	for _, c := range j.cookies {
		if c.Expires.IsZero() || j.expiredLocked(c.Cookie, now) {
			continue
		}
		entries = append(entries, Entry{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
			SameSite: c.SameSite,
			Host:     c.host,
			HostOnly: c.hostOnly,
		})
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].Name != entries[b].Name {
			return entries[a].Name < entries[b].Name
		}
		return entries[a].Host < entries[b].Host
	})
	return entries
}

// Load restores previously persisted entries, skipping the expired ones.
func (j *Jar) Load(entries []Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range entries {
		j.setLocked(&http.Cookie{
			Name:     e.Name,
			Value:    e.Value,
			Path:     e.Path,
			Expires:  e.Expires,
			Secure:   e.Secure,
			HttpOnly: e.HttpOnly,
			SameSite: e.SameSite,
		}, canonicalHost(e.Host), e.HostOnly)
	}
}

func (j *Jar) setLocked(c *http.Cookie, host string, hostOnly bool) {
	if c == nil || c.Name == "" {
		return
	}
	now := j.nowFunc()
	k := key{name: c.Name, host: host}

	cp := *c
	cp.Domain = host
	if cp.Path == "" || cp.Path[0] != '/' {
		cp.Path = "/"
	}
	// MaxAge takes precedence over Expires (RFC 6265 5.3).
	switch {
	case cp.MaxAge < 0:
		delete(j.cookies, k)
		return
	case cp.MaxAge > 0:
		cp.Expires = now.Add(time.Duration(cp.MaxAge) * time.Second)
	}
	if !cp.Expires.IsZero() && !cp.Expires.After(now) {
		delete(j.cookies, k)
		return
	}
	j.cookies[k] = &stored{Cookie: &cp, host: host, hostOnly: hostOnly}
}

func (s *stored) matchesHost(host string) bool {
	switch {
	case s.host == "":
		return true
	case s.hostOnly:
		return host == s.host
	default:
		return domainMatch(host, s.host)
	}
}

func canonicalHost(host string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(host), "."))
}

// domainMatch reports whether host is domain or one of its subdomains
// (RFC 6265 5.1.3). The port plays no part.
func domainMatch(host, domain string) bool {
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

func (j *Jar) expiredLocked(c *http.Cookie, now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

func pathMatch(requestPath, cookiePath string) bool {
	if cookiePath == "/" || requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || requestPath[len(cookiePath)] == '/'
}
