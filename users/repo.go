package users

type UserRepo interface {
	Upsert(user *User) error
	GetByEmail(email string) (*User, error)
	GetByID(ID string) (*User, error)
	UpdateProfile(ID string, patch ProfilePatch) (*User, error)
	SetActive(email string, active bool) error
	SetLastLogin(email string) error
}
