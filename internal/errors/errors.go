package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common error types for the session client
var (
	// Authentication errors
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrNotAdmin           = errors.New("user is not an admin")

	// Token errors
	ErrNoToken        = errors.New("no access token")
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrSessionExpired = errors.New("session expired")

	// General errors
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrInternal   = errors.New("internal error")
)

// CodeAccountDeactivated is the server error code returned for deactivated logins.
const CodeAccountDeactivated = "ACCOUNT_DEACTIVATED"

// APIError is a non-2xx response from the backend. Message carries the
// server-provided text so callers can surface it verbatim.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, msg)
}

// Unwrap maps well known statuses onto the package sentinels so errors.Is works
// without inspecting the status code.
func (e *APIError) Unwrap() error {
	switch {
	case e.IsDeactivated():
		return ErrAccountDeactivated
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthenticated
	case e.Status == http.StatusForbidden:
		return ErrForbidden
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity:
		return ErrValidation
	case e.Status >= http.StatusInternalServerError:
		return ErrInternal
	}
	return nil
}

// IsDeactivated reports whether the backend rejected the call because the
// account was deactivated. Older backends only send the message.
func (e *APIError) IsDeactivated() bool {
	if e.Code == CodeAccountDeactivated {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "deactivated")
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// AsAPIError returns the APIError in err's chain, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
