package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jatinkumar-gitdev/happily-mart/internal/config"
	"github.com/jatinkumar-gitdev/happily-mart/token/keys"
	"github.com/jatinkumar-gitdev/happily-mart/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims are the access token claims. The audience is the session namespace
// ("user" or "admin") so a token of one namespace is rejected by the other.
type Claims struct {
	Email string         `json:"email,omitempty"`
	Role  users.RoleType `json:"role,omitempty"`
	jwtlib.RegisteredClaims
}

// Creator handles access token creation
type Creator struct {
	config config.TokenConfig
	signer keys.Signer
}

func NewCreator(cfg config.TokenConfig, signer keys.Signer) *Creator {
	return &Creator{
		config: cfg,
		signer: signer,
	}
}

// CreateAccessToken creates a short lived bearer token for user in namespace
func (c *Creator) CreateAccessToken(user *users.User, namespace string) (*string, error) {
	now := NowTimeFunc()
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    "happily-mart",
			Subject:   user.ID,
			Audience:  jwtlib.ClaimStrings{namespace},
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(c.config.GetAccessTokenTTL())),
			ID:        uuid.New().String(), // jti, for revocation
		},
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return &signed, nil
}
