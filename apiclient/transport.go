package apiclient

import (
	"fmt"
	"io"
	"net/http"

	mterrors "github.com/jatinkumar-gitdev/happily-mart/internal/errors"
	pkgerrors "github.com/pkg/errors"
)

var _ http.RoundTripper = (*Transport)(nil)

// Transport attaches the bearer token and defensive headers to every request
// and re-issues a request exactly once after a silent refresh on 401.
type Transport struct {
	base   http.RoundTripper
	client *Client
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, sent, err := t.send(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || isRetried(req.Context()) || t.client.skipsRefresh(req.URL.Path) {
		return resp, nil
	}

	replayable := canReplay(req)
	if replayable {
		drainAndClose(resp.Body)
	}
	if err := t.renewToken(req, sent); err != nil {
		if !replayable {
			drainAndClose(resp.Body)
		}
		return nil, err
	}
	if !replayable {
		// The token is renewed for later calls but this body is gone.
		return resp, nil
	}

	retry, err := t.cloneForRetry(req)
	if err != nil {
		return nil, err
	}
	resp, _, err = t.send(retry)
	if err != nil {
		t.client.metrics.ObserveRetry(t.client.cfg.Namespace, 0)
		return nil, err
	}
	t.client.metrics.ObserveRetry(t.client.cfg.Namespace, resp.StatusCode)
	return resp, nil
}

// renewToken makes sure the store holds a token newer than sent. A refresh is
// only started when the store still holds the rejected token; a 401 that
// arrives after another request already refreshed reuses that result, and one
// that arrives after a failed refresh purged the store fails without a second
// purge.
func (t *Transport) renewToken(req *http.Request, sent string) error {
	current := ""
	if tok, ok := t.client.store.AccessToken(); ok {
		current = tok.AccessToken
	}
	switch {
	case sent != "" && current == "":
		return fmt.Errorf("[Transport.renewToken] %w: token purged while %s %s was in flight",
			mterrors.ErrSessionExpired, req.Method, req.URL.Path)
	case current != "" && current != sent:
		t.client.logger.Debug().Msg("Token already refreshed, retrying")
		return nil
	}
	_, err := t.client.Refresh(req.Context())
	return err
}

// canReplay reports whether the body of req can be sent a second time.
func canReplay(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// send issues req with the current token and returns the token it attached,
// "" when none was.
func (t *Transport) send(req *http.Request) (*http.Response, string, error) {
	ctx := req.Context()
	out := req.Clone(ctx)
	now := t.client.nowFunc()

	sent := ""
	if !t.client.isLogin(out.URL.Path) {
		if token, ok := t.client.store.AccessToken(); ok {
			token.SetAuthHeader(out)
			sent = token.AccessToken
		}
	}
	setDefensiveHeaders(out, now)

	if t.client.limiter != nil {
		if err := t.client.limiter.Wait(ctx); err != nil {
			return nil, sent, pkgerrors.Wrap(err, "[Transport.send] rate limiter")
		}
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		t.client.metrics.ObserveRequest(t.client.cfg.Namespace, out.Method, 0)
		return nil, sent, err
	}
	t.client.metrics.ObserveRequest(t.client.cfg.Namespace, out.Method, resp.StatusCode)
	return resp, sent, nil
}

// cloneForRetry copies req for its single re-issue. The body is replayed and
// the Cookie header rebuilt from the jar, which the refresh may have rotated.
func (t *Transport) cloneForRetry(req *http.Request) (*http.Request, error) {
	retry := req.Clone(withRetried(req.Context()))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, pkgerrors.Wrap(err, "[Transport.cloneForRetry] replay body")
		}
		retry.Body = body
	}
	if jar := t.client.http.Jar; jar != nil {
		retry.Header.Del("Cookie")
		for _, c := range jar.Cookies(retry.URL) {
			retry.AddCookie(c)
		}
	}
	retry.Header.Del("Authorization")
	return retry, nil
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
