package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sumire/tracker/internal/domain"
)

// ProjectService handles project lifecycle and board reads.
type ProjectService struct {
	projects ProjectStore
	members  MemberStore
	issues   IssueStore
	access   *AccessService
}

func NewProjectService(projects ProjectStore, members MemberStore, issues IssueStore, access *AccessService) *ProjectService {
	return &ProjectService{projects: projects, members: members, issues: issues, access: access}
}

// List returns the projects actor may read.
func (s *ProjectService) List(ctx context.Context, actor *domain.User) ([]domain.Project, error) {
	return s.projects.List(ctx, s.access.Scope(actor))
}

// ListPage returns one page of List.
func (s *ProjectService) ListPage(ctx context.Context, actor *domain.User, page domain.PageRequest) (domain.Page[domain.Project], error) {
	return s.projects.ListPage(ctx, s.access.Scope(actor), page)
}

// Get returns a project with its board, roster and the caller's role.
func (s *ProjectService) Get(ctx context.Context, actor *domain.User, id string) (*domain.ProjectDetail, error) {
	p, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	role, err := s.access.Authorize(ctx, actor, p, domain.RoleViewer)
	if err != nil {
		return nil, err
	}

	issues, err := s.issues.List(ctx, domain.IssueFilter{Scope: domain.ProjectScope{All: true}, ProjectID: id})
	if err != nil {
		return nil, fmt.Errorf("load issues: %w", err)
	}
	members, err := s.members.List(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}

	detail := &domain.ProjectDetail{Project: *p, Issues: issues, Users: members}
	if actor != nil {
		detail.CurrentUserRole = &role
	}
	return detail, nil
}

// Create stores a project and makes actor its first admin.
func (s *ProjectService) Create(ctx context.Context, actor *domain.User, p domain.Project) (*domain.Project, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, &domain.ValidationError{Field: "name", Message: "is required"}
	}
	if p.Category == "" {
		p.Category = domain.ProjectCategorySoftware
	}
	return s.projects.CreateWithAdmin(ctx, p, actor.ID)
}

// Update applies a partial update; requires project ADMIN.
func (s *ProjectService) Update(ctx context.Context, actor *domain.User, id string, patch domain.ProjectPatch) (*domain.Project, error) {
	p, err := s.authorized(ctx, actor, id, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, &domain.ValidationError{Field: "name", Message: "must not be empty"}
	}
	return s.projects.Update(ctx, patch.Apply(*p))
}

// Delete removes the project and everything in it; requires project ADMIN.
func (s *ProjectService) Delete(ctx context.Context, actor *domain.User, id string) error {
	if _, err := s.authorized(ctx, actor, id, domain.RoleAdmin); err != nil {
		return err
	}
	return s.projects.Delete(ctx, id)
}

func (s *ProjectService) authorized(ctx context.Context, actor *domain.User, id string, required domain.Role) (*domain.Project, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	p, err := s.projects.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.Authorize(ctx, actor, p, required); err != nil {
		return nil, err
	}
	return p, nil
}
