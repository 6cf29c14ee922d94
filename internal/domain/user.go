package domain

import "time"

// SystemRole is the account-wide role, independent of project membership.
type SystemRole string

const (
	SystemRoleAdmin SystemRole = "admin"
	SystemRoleUser  SystemRole = "user"
)

// Valid reports whether r is a known system role.
func (r SystemRole) Valid() bool {
	return r == SystemRoleAdmin || r == SystemRoleUser
}

// User represents an account. Password holds a bcrypt hash and is never serialized.
type User struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Email     string     `json:"email" db:"email"`
	Password  *string    `json:"-" db:"password"`
	Role      SystemRole `json:"role" db:"role"`
	AvatarURL *string    `json:"avatarUrl,omitempty" db:"avatar_url"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// IsAdmin reports whether the user bypasses project-level checks.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == SystemRoleAdmin
}

// HasCredential reports whether a password has ever been set.
func (u *User) HasCredential() bool {
	return u.Password != nil && *u.Password != ""
}

// Summary returns the public projection embedded in members and comments.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, AvatarURL: u.AvatarURL}
}

// UserSummary is the credential-free view of a user embedded in other resources.
type UserSummary struct {
	ID        string  `json:"id" db:"id"`
	Name      string  `json:"name" db:"name"`
	Email     string  `json:"email" db:"email"`
	AvatarURL *string `json:"avatarUrl,omitempty" db:"avatar_url"`
}

// UserPatch carries optional field updates for a user.
type UserPatch struct {
	Name      *string
	Email     *string
	Password  *string
	Role      *SystemRole
	AvatarURL *string
}
