// Package authz decides whether a project role satisfies a required role.
package authz

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/sumire/tracker/internal/domain"
)

// roleModel grants a role its own level and, through the g hierarchy,
// every level below it.
const roleModel = `
[request_definition]
r = sub, obj

[policy_definition]
p = sub, obj

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj
`

// RolePolicy compares project roles using a casbin role hierarchy
// ADMIN > MEMBER > VIEWER.
type RolePolicy struct {
	enforcer *casbin.SyncedEnforcer
}

// NewRolePolicy builds the in-memory policy.
func NewRolePolicy() (*RolePolicy, error) {
	m, err := model.NewModelFromString(roleModel)
	if err != nil {
		return nil, fmt.Errorf("parse role model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	for _, r := range []domain.Role{domain.RoleAdmin, domain.RoleMember, domain.RoleViewer} {
		if _, err := enforcer.AddPolicy(string(r), string(r)); err != nil {
			return nil, fmt.Errorf("add policy %s: %w", r, err)
		}
	}
	hierarchy := [][2]domain.Role{
		{domain.RoleAdmin, domain.RoleMember},
		{domain.RoleMember, domain.RoleViewer},
	}
	for _, h := range hierarchy {
		if _, err := enforcer.AddGroupingPolicy(string(h[0]), string(h[1])); err != nil {
			return nil, fmt.Errorf("add grouping %s>%s: %w", h[0], h[1], err)
		}
	}

	return &RolePolicy{enforcer: enforcer}, nil
}

// Satisfies reports whether holding role grants required.
func (p *RolePolicy) Satisfies(role, required domain.Role) (bool, error) {
	if !role.Valid() || !required.Valid() {
		return false, nil
	}
	ok, err := p.enforcer.Enforce(string(role), string(required))
	if err != nil {
		return false, fmt.Errorf("enforce %s against %s: %w", role, required, err)
	}
	return ok, nil
}
