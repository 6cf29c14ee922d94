package service

import (
	"context"
	"fmt"

	"github.com/sumire/tracker/internal/domain"
)

// MemberService manages project rosters. Both the permissions API and the
// project users API are served from here against the same store.
type MemberService struct {
	projects ProjectStore
	members  MemberStore
	users    UserStore
	access   *AccessService
}

func NewMemberService(projects ProjectStore, members MemberStore, users UserStore, access *AccessService) *MemberService {
	return &MemberService{projects: projects, members: members, users: users, access: access}
}

// List returns the roster; any viewer may read it.
func (s *MemberService) List(ctx context.Context, actor *domain.User, projectID string) ([]domain.Member, error) {
	if err := s.authorize(ctx, actor, projectID, domain.RoleViewer); err != nil {
		return nil, err
	}
	return s.members.List(ctx, projectID)
}

// ListForAdmin returns the roster to a project admin.
func (s *MemberService) ListForAdmin(ctx context.Context, actor *domain.User, projectID string) ([]domain.Member, error) {
	if err := s.authorize(ctx, actor, projectID, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.members.List(ctx, projectID)
}

// Get returns one membership to a project admin.
func (s *MemberService) Get(ctx context.Context, actor *domain.User, projectID, userID string) (*domain.Member, error) {
	if err := s.authorize(ctx, actor, projectID, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.members.Find(ctx, projectID, userID)
}

// Add grants a role to a user who is not yet a member.
func (s *MemberService) Add(ctx context.Context, actor *domain.User, projectID, userID string, role domain.Role) (*domain.Member, error) {
	if err := s.authorize(ctx, actor, projectID, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.checkTarget(ctx, userID, role); err != nil {
		return nil, err
	}
	m, err := s.members.Add(ctx, projectID, userID, role)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Put sets a user's role, creating the membership when needed. created
// reports whether a new membership was made.
func (s *MemberService) Put(ctx context.Context, actor *domain.User, projectID, userID string, role domain.Role) (*domain.Member, bool, error) {
	if err := s.authorize(ctx, actor, projectID, domain.RoleAdmin); err != nil {
		return nil, false, err
	}
	if err := s.checkTarget(ctx, userID, role); err != nil {
		return nil, false, err
	}
	return s.members.Upsert(ctx, projectID, userID, role)
}

// UpdateRole changes the role of an existing member.
func (s *MemberService) UpdateRole(ctx context.Context, actor *domain.User, projectID, userID string, role domain.Role) (*domain.Member, error) {
	if err := s.authorize(ctx, actor, projectID, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, &domain.ValidationError{Field: "role", Message: "must be ADMIN, MEMBER or VIEWER"}
	}
	return s.members.UpdateRole(ctx, projectID, userID, role)
}

// Remove revokes a membership.
func (s *MemberService) Remove(ctx context.Context, actor *domain.User, projectID, userID string) error {
	if err := s.authorize(ctx, actor, projectID, domain.RoleAdmin); err != nil {
		return err
	}
	return s.members.Remove(ctx, projectID, userID)
}

// AvailableUsers lists users who could be added to the project.
func (s *MemberService) AvailableUsers(ctx context.Context, actor *domain.User, projectID string) ([]domain.User, error) {
	if err := s.authorize(ctx, actor, projectID, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.users.ListNotInProject(ctx, projectID)
}

func (s *MemberService) checkTarget(ctx context.Context, userID string, role domain.Role) error {
	if !role.Valid() {
		return &domain.ValidationError{Field: "role", Message: "must be ADMIN, MEMBER or VIEWER"}
	}
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return fmt.Errorf("user %s: %w", userID, err)
	}
	return nil
}

func (s *MemberService) authorize(ctx context.Context, actor *domain.User, projectID string, required domain.Role) error {
	p, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return err
	}
	_, err = s.access.Authorize(ctx, actor, p, required)
	return err
}
