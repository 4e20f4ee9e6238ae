package tokencache

import "net/http"

// Namespace isolates the cookie names and storage keys of one kind of session.
// The user and admin namespaces never share a key, so both sessions can live
// in the same jar and storage.
type Namespace struct {
	Name          string
	CookieName    string   // cookie holding the access token
	ExtraCookies  []string // other cookies purged on logout
	SameSite      http.SameSite
	Mirror        bool   // mirror the token into local/session storage
	StorageKey    string // mirror key in local and session storage
	RememberMeKey string // persisted remember-me preference (local storage)
}

func UserNamespace() Namespace {
	return Namespace{
		Name:          "user",
		CookieName:    "accessToken",
		SameSite:      http.SameSiteStrictMode,
		Mirror:        true,
		StorageKey:    "accessToken",
		RememberMeKey: "rememberMe",
	}
}

func AdminNamespace() Namespace {
	return Namespace{
		Name:          "admin",
		CookieName:    "adminToken",
		ExtraCookies:  []string{"adminRefreshToken"},
		SameSite:      http.SameSiteLaxMode,
		Mirror:        false,
		RememberMeKey: "adminRememberMe",
	}
}
