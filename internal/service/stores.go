package service

import (
	"context"

	"github.com/sumire/tracker/internal/domain"
)

// UserStore defines the user data access interface.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	ListNotInProject(ctx context.Context, projectID string) ([]domain.User, error)
	Create(ctx context.Context, user domain.User) (*domain.User, error)
	Update(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}

// ProjectStore defines the project data access interface.
type ProjectStore interface {
	FindByID(ctx context.Context, id string) (*domain.Project, error)
	List(ctx context.Context, scope domain.ProjectScope) ([]domain.Project, error)
	ListPage(ctx context.Context, scope domain.ProjectScope, page domain.PageRequest) (domain.Page[domain.Project], error)
	CreateWithAdmin(ctx context.Context, p domain.Project, adminID string) (*domain.Project, error)
	Update(ctx context.Context, p domain.Project) (*domain.Project, error)
	Delete(ctx context.Context, id string) error
}

// MemberStore defines access to project role assignments. Mutations that
// lower or remove a role must fail with domain.ErrLastAdmin rather than
// leave a project without an admin.
type MemberStore interface {
	Find(ctx context.Context, projectID, userID string) (*domain.Member, error)
	List(ctx context.Context, projectID string) ([]domain.Member, error)
	Add(ctx context.Context, projectID, userID string, role domain.Role) (*domain.Member, error)
	Upsert(ctx context.Context, projectID, userID string, role domain.Role) (*domain.Member, bool, error)
	UpdateRole(ctx context.Context, projectID, userID string, role domain.Role) (*domain.Member, error)
	Remove(ctx context.Context, projectID, userID string) error
}

// IssueStore defines the issue data access interface. Create and Update must
// enforce domain.ValidateHierarchy against the stored parent, and Create
// assigns the next issue key of the project.
type IssueStore interface {
	FindByID(ctx context.Context, id string) (*domain.Issue, error)
	List(ctx context.Context, filter domain.IssueFilter) ([]domain.Issue, error)
	ListPage(ctx context.Context, filter domain.IssueFilter, page domain.PageRequest) (domain.Page[domain.Issue], error)
	Create(ctx context.Context, issue domain.Issue) (*domain.Issue, error)
	Update(ctx context.Context, issue domain.Issue, replaceUsers bool, move *domain.IssueMove) (*domain.Issue, error)
	Move(ctx context.Context, id string, mv domain.IssueMove) (*domain.Issue, error)
	Delete(ctx context.Context, id string) error
}

// CommentStore defines the comment data access interface.
type CommentStore interface {
	FindByID(ctx context.Context, id string) (*domain.Comment, error)
	ListByIssue(ctx context.Context, issueID string) ([]domain.Comment, error)
	ListByIssuePage(ctx context.Context, issueID string, page domain.PageRequest) (domain.Page[domain.Comment], error)
	List(ctx context.Context, scope domain.ProjectScope) ([]domain.Comment, error)
	Create(ctx context.Context, c domain.Comment) (*domain.Comment, error)
	UpdateBody(ctx context.Context, id, body string) (*domain.Comment, error)
	Delete(ctx context.Context, id string) error
}

// ImageEmbedder moves inline images out of rich text.
type ImageEmbedder interface {
	Embed(html string) (string, error)
}
