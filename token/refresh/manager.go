package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jatinkumar-gitdev/happily-mart/internal/config"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

var ErrInvalidToken = errors.New("invalid refresh token")

// Manager handles refresh token creation, validation, and rotation
type Manager struct {
	repo   Repo
	config config.TokenConfig
}

func NewManager(repo Repo, cfg config.TokenConfig) *Manager {
	return &Manager{
		repo:   repo,
		config: cfg,
	}
}

// Create generates a new refresh token for userID in namespace, replacing any
// token the user already holds there.
func (m *Manager) Create(userID, namespace string, remember bool) (*string, error) {
	if existingToken, err := m.repo.GetByUser(userID, namespace); err == nil && existingToken != nil {
		if err := m.repo.Delete(existingToken.Token); err != nil {
			return nil, fmt.Errorf("failed to delete existing refresh token: %w", err)
		}
	}

	tokenBytes := make([]byte, m.config.GetRefreshTokenLength())
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:     tokenStr,
		UserID:    userID,
		Namespace: namespace,
		Remember:  remember,
		Iat:       NowTimeFunc(),
	}); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &tokenStr, nil
}

// Rotate validates token for namespace and swaps it for a new one. The old
// token is unusable afterwards, even when rotation fails.
func (m *Manager) Rotate(token, namespace string) (*StoredRefreshToken, *string, error) {
	rt, err := m.repo.Get(token)
	if err != nil || rt == nil {
		return nil, nil, ErrInvalidToken
	}
	if rt.Namespace != namespace {
		return nil, nil, ErrInvalidToken
	}
	if err := m.repo.Delete(rt.Token); err != nil {
		return nil, nil, fmt.Errorf("failed to delete rotated refresh token: %w", err)
	}
	if m.IsExpired(rt) {
		return nil, nil, ErrInvalidToken
	}

	next, err := m.Create(rt.UserID, namespace, rt.Remember)
	if err != nil {
		return nil, nil, err
	}
	return rt, next, nil
}

// Get retrieves a refresh token from storage
func (m *Manager) Get(token string) (*StoredRefreshToken, error) {
	return m.repo.Get(token)
}

// Delete removes a refresh token from storage
func (m *Manager) Delete(token string) error {
	return m.repo.Delete(token)
}

// IsExpired checks if a refresh token is older than the configured lifetime
func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return NowTimeFunc().Sub(rt.Iat) > m.config.GetRefreshTokenTTL()
}
