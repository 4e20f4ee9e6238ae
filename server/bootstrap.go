package server

import (
	"errors"
	"fmt"

	"github.com/jatinkumar-gitdev/happily-mart/internal/config"
	"github.com/jatinkumar-gitdev/happily-mart/users"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAdminEmail    = "admin@happilymart.local"
	DefaultBuyerEmail    = "buyer@happilymart.local"
	DefaultInactiveEmail = "inactive@happilymart.local"
)

type seedAccount struct {
	email  string
	name   string
	role   users.RoleType
	active bool
}

var seedAccounts = []seedAccount{
	{email: DefaultAdminEmail, name: "Mart Admin", role: users.RoleAdmin, active: true},
	{email: DefaultBuyerEmail, name: "Demo Buyer", role: users.RoleUser, active: true},
	{email: DefaultInactiveEmail, name: "Dormant Seller", role: users.RoleUser, active: false},
}

// InitialiseSystem seeds one admin, one active and one deactivated account, all
// sharing the configured seed password. Existing accounts are left untouched.
func (s *Server) InitialiseSystem(config config.Config) error {
	password := config.GetSeedPassword()
	if password == "" {
		return errors.New("[Server InitialiseSystem] seed password is empty")
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to hash seed password: %w", err)
	}

	created := 0
	for _, acc := range seedAccounts {
		if _, err := s.repos.Users.GetByEmail(acc.email); err == nil {
			continue
		}
		user := &users.User{
			Profile: users.Profile{
				Name:     acc.name,
				Email:    acc.email,
				Role:     acc.role,
				Country:  "India",
				IsActive: acc.active,
			},
			PasswordHash: hash,
		}
		if err := s.repos.Users.Upsert(user); err != nil {
			return fmt.Errorf("[Server InitialiseSystem] failed to create %s: %w", acc.email, err)
		}
		created++
	}

	if created > 0 && s.env == "DEV" {
		log.Info().Msg("Seeded accounts:")
		for _, acc := range seedAccounts {
			log.Info().Msgf("   %-28s role=%-5s active=%t", acc.email, acc.role, acc.active)
		}
		log.Info().Msgf("   password: %s", password)
	}
	return nil
}
