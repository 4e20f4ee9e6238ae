package refresh

import (
	"time"
)

// StoredRefreshToken represents the server-side storage of refresh token metadata.
// The client only receives the Token field (a random string), inside an
// HttpOnly cookie.
type StoredRefreshToken struct {
	Token     string    // The actual random token string (sent to client)
	UserID    string    // Server-side metadata
	Namespace string    // "user" or "admin"; a token only refreshes its own namespace
	Remember  bool      // persistent cookie; carried over on rotation
	Iat       time.Time // Server-side metadata (issued at time)
}

// Repo manages server-side storage of refresh token metadata, keyed by the
// token string. There is at most one token per user and namespace.
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	GetByUser(userID, namespace string) (*StoredRefreshToken, error)
	List(offset, limit int) ([]*StoredRefreshToken, error)
}
