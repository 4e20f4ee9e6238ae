package fakeuserrepo

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jatinkumar-gitdev/happily-mart/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

var ErrNotFound = errors.New("not found")

type FakeUserRepo struct {
	users    map[string]*users.User
	emailIds map[string]string // email to user id
	lock     sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[string]*users.User),
		emailIds: make(map[string]string),
	}
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (ur *FakeUserRepo) Upsert(user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	stored := *user
	ur.users[user.ID] = &stored
	ur.emailIds[normaliseEmail(user.Email)] = user.ID
	return nil
}

// GetByEmail returns a copy of the stored user
func (ur *FakeUserRepo) GetByEmail(email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.emailIds[normaliseEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	u := *ur.users[id]
	return &u, nil
}

// GetByID returns a copy of the stored user
func (ur *FakeUserRepo) GetByID(id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	stored, ok := ur.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u := *stored
	return &u, nil
}

func (ur *FakeUserRepo) UpdateProfile(id string, patch users.ProfilePatch) (*users.User, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	stored, ok := ur.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	stored.Profile = stored.Profile.Apply(patch)
	u := *stored
	return &u, nil
}

func (ur *FakeUserRepo) SetActive(email string, active bool) error {
	return ur.mutate(email, func(u *users.User) { u.IsActive = active })
}

func (ur *FakeUserRepo) SetLastLogin(email string) error {
	return ur.mutate(email, func(u *users.User) { u.LastLogin = time.Now() })
}

func (ur *FakeUserRepo) mutate(email string, fn func(u *users.User)) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	id, ok := ur.emailIds[normaliseEmail(email)]
	if !ok {
		return ErrNotFound
	}
	fn(ur.users[id])
	return nil
}
