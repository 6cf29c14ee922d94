package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sumire/tracker/internal/domain"
)

// CommentService handles comments on issues.
type CommentService struct {
	comments CommentStore
	issues   IssueStore
	projects ProjectStore
	access   *AccessService
	images   ImageEmbedder
}

func NewCommentService(comments CommentStore, issues IssueStore, projects ProjectStore, access *AccessService, images ImageEmbedder) *CommentService {
	return &CommentService{comments: comments, issues: issues, projects: projects, access: access, images: images}
}

// List returns comments of one issue, or every readable comment when
// issueID is empty.
func (s *CommentService) List(ctx context.Context, actor *domain.User, issueID string) ([]domain.Comment, error) {
	if issueID != "" {
		return s.ListByIssue(ctx, actor, issueID)
	}
	return s.comments.List(ctx, s.access.Scope(actor))
}

// ListByIssue returns an issue's comments, newest first.
func (s *CommentService) ListByIssue(ctx context.Context, actor *domain.User, issueID string) ([]domain.Comment, error) {
	if _, err := s.authorizeIssue(ctx, actor, issueID, domain.RoleViewer); err != nil {
		return nil, err
	}
	return s.comments.ListByIssue(ctx, issueID)
}

// ListByIssuePage returns one page of ListByIssue.
func (s *CommentService) ListByIssuePage(ctx context.Context, actor *domain.User, issueID string, page domain.PageRequest) (domain.Page[domain.Comment], error) {
	if _, err := s.authorizeIssue(ctx, actor, issueID, domain.RoleViewer); err != nil {
		return domain.Page[domain.Comment]{}, err
	}
	return s.comments.ListByIssuePage(ctx, issueID, page)
}

func (s *CommentService) Get(ctx context.Context, actor *domain.User, id string) (*domain.Comment, error) {
	c, err := s.comments.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeIssue(ctx, actor, c.IssueID, domain.RoleViewer); err != nil {
		return nil, err
	}
	return c, nil
}

// Create adds a comment authored by actor.
func (s *CommentService) Create(ctx context.Context, actor *domain.User, issueID, body string) (*domain.Comment, error) {
	return s.create(ctx, actor, "", issueID, body)
}

// Update edits a comment's body. When no comment has this id, one is created
// under it on issueID instead; created reports that case.
func (s *CommentService) Update(ctx context.Context, actor *domain.User, id, issueID, body string) (*domain.Comment, bool, error) {
	if err := requireUser(actor); err != nil {
		return nil, false, err
	}

	existing, err := s.comments.FindByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		if issueID == "" {
			return nil, false, domain.ErrNotFound
		}
		c, err := s.create(ctx, actor, id, issueID, body)
		return c, err == nil, err
	}
	if err != nil {
		return nil, false, err
	}

	if err := s.authorizeAuthorOrAdmin(ctx, actor, existing); err != nil {
		return nil, false, err
	}
	html, err := s.cleanBody(body)
	if err != nil {
		return nil, false, err
	}
	c, err := s.comments.UpdateBody(ctx, id, html)
	return c, false, err
}

// Delete removes a comment; only its author or a project admin may.
func (s *CommentService) Delete(ctx context.Context, actor *domain.User, id string) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	c, err := s.comments.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeAuthorOrAdmin(ctx, actor, c); err != nil {
		return err
	}
	return s.comments.Delete(ctx, id)
}

func (s *CommentService) create(ctx context.Context, actor *domain.User, id, issueID, body string) (*domain.Comment, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if issueID == "" {
		return nil, &domain.ValidationError{Field: "issueId", Message: "is required"}
	}
	if _, err := s.authorizeIssue(ctx, actor, issueID, domain.RoleMember); err != nil {
		return nil, err
	}
	html, err := s.cleanBody(body)
	if err != nil {
		return nil, err
	}
	return s.comments.Create(ctx, domain.Comment{ID: id, Body: html, IssueID: issueID, UserID: actor.ID})
}

func (s *CommentService) cleanBody(body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", &domain.ValidationError{Field: "body", Message: "is required"}
	}
	return s.images.Embed(body)
}

// authorizeAuthorOrAdmin lets the author edit while still a project member;
// anyone else needs project ADMIN.
func (s *CommentService) authorizeAuthorOrAdmin(ctx context.Context, actor *domain.User, c *domain.Comment) error {
	required := domain.RoleAdmin
	if c.UserID == actor.ID {
		required = domain.RoleMember
	}
	_, err := s.authorizeIssue(ctx, actor, c.IssueID, required)
	return err
}

func (s *CommentService) authorizeIssue(ctx context.Context, actor *domain.User, issueID string, required domain.Role) (*domain.Issue, error) {
	issue, err := s.issues.FindByID(ctx, issueID)
	if err != nil {
		return nil, err
	}
	p, err := s.projects.FindByID(ctx, issue.ProjectID)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.Authorize(ctx, actor, p, required); err != nil {
		return nil, err
	}
	return issue, nil
}
