package domain

// Identity is the caller resolved by the authentication layer before any issue operation runs.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the caller holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
