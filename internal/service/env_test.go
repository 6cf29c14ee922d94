package service

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/sumire/tracker/internal/authz"
	"github.com/sumire/tracker/internal/domain"
	"github.com/sumire/tracker/internal/service/servicetest"
)

type testEnv struct {
	mem      *servicetest.Memory
	access   *AccessService
	auth     *AuthService
	users    *UserService
	projects *ProjectService
	members  *MemberService
	issues   *IssueService
	comments *CommentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithAuth(t, AuthConfig{})
}

func newTestEnvWithAuth(t *testing.T, cfg AuthConfig) *testEnv {
	t.Helper()
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "test-secret-0123456789"
	}
	cfg.BcryptCost = bcrypt.MinCost

	policy, err := authz.NewRolePolicy()
	if err != nil {
		t.Fatalf("NewRolePolicy() error = %v", err)
	}

	mem := servicetest.New()
	access := NewAccessService(mem.Members(), policy)
	auth := NewAuthService(mem.Users(), cfg)
	images := servicetest.PassthroughImages{}

	return &testEnv{
		mem:      mem,
		access:   access,
		auth:     auth,
		users:    NewUserService(mem.Users(), auth),
		projects: NewProjectService(mem.Projects(), mem.Members(), mem.Issues(), access),
		members:  NewMemberService(mem.Projects(), mem.Members(), mem.Users(), access),
		issues:   NewIssueService(mem.Issues(), mem.Projects(), mem.Comments(), access, images),
		comments: NewCommentService(mem.Comments(), mem.Issues(), mem.Projects(), access, images),
	}
}

// user stores an account whose password is "secret".
func (e *testEnv) user(t *testing.T, name string, role domain.SystemRole) *domain.User {
	t.Helper()
	hash, err := e.auth.hashPassword("secret")
	if err != nil {
		t.Fatalf("hashPassword() error = %v", err)
	}
	u, err := e.mem.Users().Create(context.Background(), domain.User{
		Name:     name,
		Email:    name + "@example.com",
		Password: &hash,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func (e *testEnv) project(t *testing.T, owner *domain.User, name string, public bool) *domain.Project {
	t.Helper()
	p, err := e.projects.Create(context.Background(), owner, domain.Project{Name: name, IsPublic: public})
	if err != nil {
		t.Fatalf("create project %s: %v", name, err)
	}
	return p
}

func (e *testEnv) join(t *testing.T, p *domain.Project, u *domain.User, role domain.Role) {
	t.Helper()
	if _, err := e.mem.Members().Add(context.Background(), p.ID, u.ID, role); err != nil {
		t.Fatalf("add %s as %s: %v", u.Name, role, err)
	}
}

func (e *testEnv) issue(t *testing.T, actor *domain.User, p *domain.Project, title string, status domain.IssueStatus) *domain.Issue {
	t.Helper()
	is, err := e.issues.Create(context.Background(), actor, domain.Issue{ProjectID: p.ID, Title: title, Status: status})
	if err != nil {
		t.Fatalf("create issue %s: %v", title, err)
	}
	return is
}
