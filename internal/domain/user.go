package domain

import "time"

// Role enumerates the account roles known to the tracker.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTechnician Role = "technician"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTechnician
}

// User is an authenticated account. Role does not change after registration.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	ProfileImg   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserProfile is the public projection of a User; it never carries the credential hash.
type UserProfile struct {
	ID         string
	Name       string
	Email      string
	Role       Role
	ProfileImg string
}

// Profile returns the public fields of u.
func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Role:       u.Role,
		ProfileImg: u.ProfileImg,
	}
}
