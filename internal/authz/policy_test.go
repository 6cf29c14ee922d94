package authz

import (
	"testing"

	"github.com/sumire/tracker/internal/domain"
)

func TestRolePolicySatisfies(t *testing.T) {
	p, err := NewRolePolicy()
	if err != nil {
		t.Fatalf("NewRolePolicy() error: %v", err)
	}

	roles := []domain.Role{domain.RoleViewer, domain.RoleMember, domain.RoleAdmin}
	for _, held := range roles {
		for _, required := range roles {
			got, err := p.Satisfies(held, required)
			if err != nil {
				t.Fatalf("Satisfies(%s, %s) error: %v", held, required, err)
			}
			want := held.Rank() >= required.Rank()
			if got != want {
				t.Errorf("Satisfies(%s, %s) = %v, want %v", held, required, got, want)
			}
		}
	}
}

func TestRolePolicyRejectsUnknownRoles(t *testing.T) {
	p, err := NewRolePolicy()
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := p.Satisfies("OWNER", domain.RoleViewer); ok {
		t.Error("unknown held role should not satisfy anything")
	}
	if ok, _ := p.Satisfies(domain.RoleAdmin, ""); ok {
		t.Error("empty required role should not be satisfied")
	}
}
