package apiclient

import (
	"net/url"

	"github.com/rs/zerolog/log"
)

// Navigator moves the user to another page. Browsers redirect; the CLI prints
// the login hint.
type Navigator interface {
	Navigate(target string)
}

type NavigatorFunc func(target string)

func (f NavigatorFunc) Navigate(target string) {
	f(target)
}

type logNavigator struct{}

func (logNavigator) Navigate(target string) {
	log.Warn().Str("target", target).Msg("Session expired, login required")
}

// loginTarget builds the page a lost session is sent to. The current path is
// kept as a post-login redirect only when the namespace asks for it.
func loginTarget(cfg Config, currentPath string) string {
	if !cfg.KeepRedirect {
		return cfg.LoginPage
	}
	if currentPath == "" {
		currentPath = "/"
	}
	return cfg.LoginPage + "?redirect=" + url.QueryEscape(currentPath)
}
