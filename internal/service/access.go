package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sumire/tracker/internal/authz"
	"github.com/sumire/tracker/internal/domain"
	"github.com/sumire/tracker/internal/metrics"
)

// MemberLookup resolves a single membership.
type MemberLookup interface {
	Find(ctx context.Context, projectID, userID string) (*domain.Member, error)
}

// AccessService evaluates project permissions for every operation.
type AccessService struct {
	members MemberLookup
	policy  *authz.RolePolicy
}

func NewAccessService(members MemberLookup, policy *authz.RolePolicy) *AccessService {
	return &AccessService{members: members, policy: policy}
}

// Authorize checks that user may act on project with at least required and
// returns the effective role. Anyone may view a public project; anonymous
// callers get ErrUnauthorized for everything else; system admins pass;
// otherwise the membership role must rank at or above required.
func (s *AccessService) Authorize(ctx context.Context, user *domain.User, project *domain.Project, required domain.Role) (domain.Role, error) {
	role, err := s.authorize(ctx, user, project, required)
	switch {
	case err == nil:
		metrics.RecordAuthzDecision(string(required), "allow")
	case errors.Is(err, domain.ErrUnauthorized):
		metrics.RecordAuthzDecision(string(required), "unauthenticated")
	case errors.Is(err, domain.ErrForbidden):
		metrics.RecordAuthzDecision(string(required), "forbidden")
	}
	return role, err
}

func (s *AccessService) authorize(ctx context.Context, user *domain.User, project *domain.Project, required domain.Role) (domain.Role, error) {
	if project.IsPublic && required == domain.RoleViewer {
		if user == nil {
			return domain.RoleViewer, nil
		}
		if user.IsAdmin() {
			return domain.RoleAdmin, nil
		}
		m, err := s.lookup(ctx, project.ID, user.ID)
		if err != nil {
			return "", err
		}
		if m == nil {
			return domain.RoleViewer, nil
		}
		return m.Role, nil
	}

	if user == nil {
		return "", domain.ErrUnauthorized
	}
	if user.IsAdmin() {
		return domain.RoleAdmin, nil
	}

	m, err := s.lookup(ctx, project.ID, user.ID)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", fmt.Errorf("%w: not a member of project %s", domain.ErrForbidden, project.ID)
	}

	ok, err := s.policy.Satisfies(m.Role, required)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s role required, have %s", domain.ErrForbidden, required, m.Role)
	}
	return m.Role, nil
}

func (s *AccessService) lookup(ctx context.Context, projectID, userID string) (*domain.Member, error) {
	m, err := s.members.Find(ctx, projectID, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find membership: %w", err)
	}
	return m, nil
}

// Scope returns the project listing scope for user.
func (s *AccessService) Scope(user *domain.User) domain.ProjectScope {
	switch {
	case user == nil:
		return domain.ProjectScope{}
	case user.IsAdmin():
		return domain.ProjectScope{All: true}
	default:
		return domain.ProjectScope{UserID: user.ID}
	}
}

// requireUser rejects anonymous callers.
func requireUser(user *domain.User) error {
	if user == nil {
		return domain.ErrUnauthorized
	}
	return nil
}

// requireSystemAdmin rejects callers without the admin system role.
func requireSystemAdmin(user *domain.User) error {
	if err := requireUser(user); err != nil {
		return err
	}
	if !user.IsAdmin() {
		return fmt.Errorf("%w: system admin required", domain.ErrForbidden)
	}
	return nil
}
