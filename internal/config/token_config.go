package config

import "time"

// TokenConfig is only consumed by the development backend.
type TokenConfig interface {
	GetJWTSecret() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetRefreshTokenLength() int
	GetSeedPassword() string
}

type Tokens struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"dev-secret-change-me"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	SeedPassword    string        `yaml:"seed_password" env:"SEED_PASSWORD" env-default:"Mart@12345"`
}

var _ TokenConfig = Tokens{}

func (t Tokens) GetJWTSecret() string {
	return t.JWTSecret
}

func (t Tokens) GetAccessTokenTTL() time.Duration {
	return t.AccessTokenTTL
}

func (t Tokens) GetRefreshTokenTTL() time.Duration {
	return t.RefreshTokenTTL
}

func (Tokens) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

// GetSeedPassword is the password of the accounts seeded at startup
func (t Tokens) GetSeedPassword() string {
	return t.SeedPassword
}
