// Package session keeps the in-memory authentication state of one namespace
// and moves it between logged out, validating and logged in.
package session

import (
	"time"

	"github.com/jatinkumar-gitdev/happily-mart/users"
)

type State int

const (
	LoggedOut State = iota
	LoggedIn
	Validating
)

func (s State) String() string {
	switch s {
	case LoggedIn:
		return "logged_in"
	case Validating:
		return "validating"
	default:
		return "logged_out"
	}
}

// Session is a snapshot of the authentication state. User is nil until a
// login or a successful revalidation.
type Session struct {
	User            *users.Profile
	IsAuthenticated bool
	LastValidatedAt time.Time
	RememberMe      bool
	State           State
}

func (s Session) clone() Session {
	if s.User != nil {
		user := *s.User
		s.User = &user
	}
	return s
}

type Credentials struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	RememberMe   bool   `json:"rememberMe"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

type authResponse struct {
	User        users.Profile `json:"user"`
	AccessToken string        `json:"accessToken"`
}
