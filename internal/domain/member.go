package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Role is a project-scoped permission level.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleViewer Role = "VIEWER"
)

// ParseRole accepts canonical and legacy lowercase role names.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", s)}
	}
	return r, nil
}

// Valid reports whether r is one of the three canonical roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember || r == RoleViewer
}

// Rank orders roles: viewer < member < admin. Unknown roles rank zero.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleMember:
		return 2
	case RoleViewer:
		return 1
	}
	return 0
}

// UnmarshalText lets JSON bodies carry legacy lowercase roles.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Member grants a user a role within one project.
type Member struct {
	ProjectID string       `json:"projectId" db:"project_id"`
	UserID    string       `json:"userId" db:"user_id"`
	Role      Role         `json:"role" db:"role"`
	User      *UserSummary `json:"user,omitempty" db:"-"`
	CreatedAt time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time    `json:"updatedAt" db:"updated_at"`
}

// CheckAdminRetained reports ErrLastAdmin when changing userID to newRole
// would leave members without any ADMIN. An empty newRole means removal.
func CheckAdminRetained(members []Member, userID string, newRole Role) error {
	if newRole == RoleAdmin {
		return nil
	}
	var target *Member
	admins := 0
	for i := range members {
		if members[i].Role == RoleAdmin {
			admins++
		}
		if members[i].UserID == userID {
			target = &members[i]
		}
	}
	if target == nil || target.Role != RoleAdmin {
		return nil
	}
	if admins <= 1 {
		return ErrLastAdmin
	}
	return nil
}

// CheckUserRemovable reports ErrLastAdmin when deleting userID outright
// would strand a project without an ADMIN. members may span several
// projects.
func CheckUserRemovable(members []Member, userID string) error {
	byProject := map[string][]Member{}
	for _, m := range members {
		byProject[m.ProjectID] = append(byProject[m.ProjectID], m)
	}
	for projectID, roster := range byProject {
		if err := CheckAdminRetained(roster, userID, ""); err != nil {
			return fmt.Errorf("project %s: %w", projectID, err)
		}
	}
	return nil
}

// SortRoster orders members by descending role, keeping the existing order
// within a role.
func SortRoster(members []Member) {
	slices.SortStableFunc(members, func(a, b Member) int {
		return cmp.Compare(b.Role.Rank(), a.Role.Rank())
	})
}
