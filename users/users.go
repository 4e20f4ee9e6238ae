package users

import (
	"time"

	"github.com/jatinkumar-gitdev/happily-mart/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

// RoleType represents the marketplace role carried on a profile
type RoleType string

const (
	RoleUser  RoleType = "user"  // Storefront user (buyer/seller)
	RoleAdmin RoleType = "admin" // Back-office administrator
)

// Profile is the user profile returned by the backend. The client treats it as
// a value object: it is copied into the session and patched with Apply.
type Profile struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	Role      RoleType  `json:"role,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"companyName,omitempty"`
	Country   string    `json:"country,omitempty"`
	State     string    `json:"state,omitempty"`
	City      string    `json:"city,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	Credits   int       `json:"credits,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// ProfilePatch holds the locally edited fields. Nil fields are left untouched.
type ProfilePatch struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Company *string `json:"companyName,omitempty"`
	Country *string `json:"country,omitempty"`
	State   *string `json:"state,omitempty"`
	City    *string `json:"city,omitempty"`
	Avatar  *string `json:"avatar,omitempty"`
	Credits *int    `json:"credits,omitempty"`
}

func (p Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Apply returns a copy of p with the non-nil patch fields merged in (shallow merge).
func (p Profile) Apply(patch ProfilePatch) Profile {
	if patch.Name != nil {
		p.Name = utils.Value(patch.Name)
	}
	if patch.Phone != nil {
		p.Phone = utils.Value(patch.Phone)
	}
	if patch.Company != nil {
		p.Company = utils.Value(patch.Company)
	}
	if patch.Country != nil {
		p.Country = utils.Value(patch.Country)
	}
	if patch.State != nil {
		p.State = utils.Value(patch.State)
	}
	if patch.City != nil {
		p.City = utils.Value(patch.City)
	}
	if patch.Avatar != nil {
		p.Avatar = utils.Value(patch.Avatar)
	}
	if patch.Credits != nil {
		p.Credits = utils.Value(patch.Credits)
	}
	return p
}

// User is the backend record behind a Profile. Only the development backend
// stores these; the client never sees the password hash.
type User struct {
	Profile
	PasswordHash string    `json:"-"` // never serialize
	LastLogin    time.Time `json:"lastLogin,omitempty"`
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword compares password against the stored hash
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}
