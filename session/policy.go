package session

import (
	"time"

	"github.com/jatinkumar-gitdev/happily-mart/apiclient"
	mterrors "github.com/jatinkumar-gitdev/happily-mart/internal/errors"
	"github.com/jatinkumar-gitdev/happily-mart/users"
	pkgerrors "github.com/pkg/errors"
)

const DefaultFreshnessWindow = 60 * time.Second

// Policy is what tells the user and admin sessions apart.
type Policy struct {
	Namespace       string
	LoginPath       string
	MePath          string
	LogoutPath      string
	FreshnessWindow time.Duration
	// AlwaysRevalidate makes Revalidate skip the freshness window.
	AlwaysRevalidate bool
	// Validate rejects profiles the namespace does not accept. Nil accepts all.
	Validate func(users.Profile) error
}

func UserPolicy() Policy {
	return Policy{
		Namespace:       "user",
		LoginPath:       apiclient.PathLogin,
		MePath:          apiclient.PathMe,
		LogoutPath:      apiclient.PathLogout,
		FreshnessWindow: DefaultFreshnessWindow,
	}
}

func AdminPolicy() Policy {
	return Policy{
		Namespace:       "admin",
		LoginPath:       apiclient.PathLogin,
		MePath:          apiclient.PathMe,
		LogoutPath:      apiclient.PathLogout,
		FreshnessWindow: DefaultFreshnessWindow,
		Validate:        RequireAdmin,
	}
}

// RequireAdmin accepts only profiles with the admin role.
func RequireAdmin(p users.Profile) error {
	if !p.IsAdmin() {
		return pkgerrors.Wrapf(mterrors.ErrNotAdmin, "role %q", p.Role)
	}
	return nil
}
