package service

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/sumire/tracker/internal/domain"
)

func TestUserService_AdminOnlyMutations(t *testing.T) {
	e := newTestEnv(t)
	plain := e.user(t, "plain", domain.SystemRoleUser)
	root := e.user(t, "root", domain.SystemRoleAdmin)
	ctx := context.Background()

	if _, err := e.users.Create(ctx, plain, NewUser{Name: "x", Email: "x@example.com"}); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Create(non-admin) error = %v, want ErrForbidden", err)
	}
	if _, err := e.users.Create(ctx, nil, NewUser{Name: "x", Email: "x@example.com"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Create(anonymous) error = %v, want ErrUnauthorized", err)
	}

	created, err := e.users.Create(ctx, root, NewUser{Name: "x", Email: "x@example.com", Password: "pw-123456"})
	if err != nil {
		t.Fatalf("Create(admin) error = %v", err)
	}
	if created.Role != domain.SystemRoleUser {
		t.Errorf("Role = %s, want user", created.Role)
	}
	if bcrypt.CompareHashAndPassword([]byte(*created.Password), []byte("pw-123456")) != nil {
		t.Error("stored password is not a bcrypt hash of the input")
	}

	if _, err := e.users.Create(ctx, root, NewUser{Name: "y", Email: "X@example.com"}); !errors.Is(err, domain.ErrEmailInUse) {
		t.Errorf("Create(duplicate) error = %v, want ErrEmailInUse", err)
	}

	bad := domain.SystemRole("owner")
	var verr *domain.ValidationError
	if _, err := e.users.Update(ctx, root, created.ID, domain.UserPatch{Role: &bad}); !errors.As(err, &verr) {
		t.Errorf("Update(bad role) error = %v, want ValidationError", err)
	}
}

func TestUserService_DeleteReporter(t *testing.T) {
	e := newTestEnv(t)
	root := e.user(t, "root", domain.SystemRoleAdmin)
	reporter := e.user(t, "reporter", domain.SystemRoleUser)
	idle := e.user(t, "idle", domain.SystemRoleUser)
	p := e.project(t, root, "Board", false)
	e.join(t, p, reporter, domain.RoleMember)
	e.issue(t, reporter, p, "task", "")
	ctx := context.Background()

	if err := e.users.Delete(ctx, root, reporter.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Delete(reporter) error = %v, want ErrConflict", err)
	}
	if err := e.users.Delete(ctx, root, idle.ID); err != nil {
		t.Errorf("Delete(idle) error = %v", err)
	}
	if _, err := e.users.Get(ctx, idle.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestUserService_DeleteSoleProjectAdmin(t *testing.T) {
	e := newTestEnv(t)
	root := e.user(t, "root", domain.SystemRoleAdmin)
	owner := e.user(t, "owner", domain.SystemRoleUser)
	dev := e.user(t, "dev", domain.SystemRoleUser)
	p := e.project(t, owner, "Board", false)
	e.join(t, p, dev, domain.RoleMember)
	ctx := context.Background()

	if err := e.users.Delete(ctx, root, owner.ID); !errors.Is(err, domain.ErrLastAdmin) {
		t.Fatalf("Delete(sole admin) error = %v, want ErrLastAdmin", err)
	}
	roster, err := e.mem.Members().List(ctx, p.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(roster) != 2 || roster[0].UserID != owner.ID || roster[0].Role != domain.RoleAdmin {
		t.Errorf("roster after refused delete = %+v", roster)
	}

	e.join(t, p, root, domain.RoleAdmin)
	if err := e.users.Delete(ctx, root, owner.ID); err != nil {
		t.Fatalf("Delete(one of two admins) error = %v", err)
	}
	roster, err = e.mem.Members().List(ctx, p.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(roster) != 2 || roster[0].UserID != root.ID {
		t.Errorf("roster after delete = %+v", roster)
	}
}
