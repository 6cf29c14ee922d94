package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sumire/tracker/internal/domain"
)

// IssueService handles issue CRUD and board ordering.
type IssueService struct {
	issues   IssueStore
	projects ProjectStore
	comments CommentStore
	access   *AccessService
	images   ImageEmbedder
}

func NewIssueService(issues IssueStore, projects ProjectStore, comments CommentStore, access *AccessService, images ImageEmbedder) *IssueService {
	return &IssueService{issues: issues, projects: projects, comments: comments, access: access, images: images}
}

// List returns issues of one project, or of every project actor may read
// when projectID is empty.
func (s *IssueService) List(ctx context.Context, actor *domain.User, projectID string) ([]domain.Issue, error) {
	return s.Search(ctx, actor, "", projectID)
}

// Search matches term against titles and descriptions.
func (s *IssueService) Search(ctx context.Context, actor *domain.User, term, projectID string) ([]domain.Issue, error) {
	filter, err := s.filter(ctx, actor, term, projectID)
	if err != nil {
		return nil, err
	}
	return s.issues.List(ctx, filter)
}

// SearchPage returns one page of Search.
func (s *IssueService) SearchPage(ctx context.Context, actor *domain.User, term, projectID string, page domain.PageRequest) (domain.Page[domain.Issue], error) {
	filter, err := s.filter(ctx, actor, term, projectID)
	if err != nil {
		return domain.Page[domain.Issue]{}, err
	}
	return s.issues.ListPage(ctx, filter, page)
}

func (s *IssueService) filter(ctx context.Context, actor *domain.User, term, projectID string) (domain.IssueFilter, error) {
	filter := domain.IssueFilter{Term: term, ProjectID: projectID, Scope: s.access.Scope(actor)}
	if projectID != "" {
		if _, err := s.authorizeProject(ctx, actor, projectID, domain.RoleViewer); err != nil {
			return filter, err
		}
		filter.Scope = domain.ProjectScope{All: true}
	}
	return filter, nil
}

// Get returns an issue with assignees, subtasks and comments.
func (s *IssueService) Get(ctx context.Context, actor *domain.User, id string) (*domain.Issue, error) {
	issue, err := s.authorizeIssue(ctx, actor, id, domain.RoleViewer)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByIssue(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	issue.Comments = comments
	return issue, nil
}

// Create appends a new issue to the end of its status column. An issue
// created under a parent defaults to the Subtask type.
func (s *IssueService) Create(ctx context.Context, actor *domain.User, in domain.Issue) (*domain.Issue, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if _, err := s.authorizeProject(ctx, actor, in.ProjectID, domain.RoleMember); err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, &domain.ValidationError{Field: "title", Message: "is required"}
	}
	if in.ParentIssueID != nil && *in.ParentIssueID == "" {
		in.ParentIssueID = nil
	}
	switch {
	case in.Type != "":
	case in.ParentIssueID != nil:
		in.Type = domain.IssueTypeSubtask
	default:
		in.Type = domain.IssueTypeTask
	}
	if in.Status == "" {
		in.Status = domain.IssueStatusBacklog
	}
	if in.Priority == "" {
		in.Priority = domain.IssuePriorityMedium
	}
	if in.ReporterID == "" {
		in.ReporterID = actor.ID
	}
	if in.Description != nil {
		html, err := s.images.Embed(*in.Description)
		if err != nil {
			return nil, err
		}
		in.Description = &html
	}
	in.ID = ""
	return s.issues.Create(ctx, in)
}

// Update edits an issue. A non-nil move relocates it on the board in the
// same transaction; a move without a position appends to the column.
func (s *IssueService) Update(ctx context.Context, actor *domain.User, id string, patch domain.IssuePatch, move *domain.IssueMove) (*domain.Issue, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	issue, err := s.authorizeIssue(ctx, actor, id, domain.RoleMember)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, &domain.ValidationError{Field: "title", Message: "must not be empty"}
	}
	if patch.Description != nil {
		html, err := s.images.Embed(*patch.Description)
		if err != nil {
			return nil, err
		}
		patch.Description = &html
	}
	if move != nil {
		if move.Status == "" {
			move.Status = issue.Status
		}
		// Echoing the current column back without a new position is not a move.
		if move.Status == issue.Status && (move.ListPosition < 1 || move.ListPosition == issue.ListPosition) {
			move = nil
		}
	}

	return s.issues.Update(ctx, patch.Apply(*issue), patch.UserIDs != nil, move)
}

// Move places the issue at a 1-based position in a status column.
func (s *IssueService) Move(ctx context.Context, actor *domain.User, id string, mv domain.IssueMove) (*domain.Issue, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	if _, err := s.authorizeIssue(ctx, actor, id, domain.RoleMember); err != nil {
		return nil, err
	}
	if mv.ListPosition < 1 {
		return nil, &domain.ValidationError{Field: "listPosition", Message: "must be at least 1"}
	}
	return s.issues.Move(ctx, id, mv)
}

// ConvertToSubtask turns a top-level issue without subtasks into a subtask
// of parentID.
func (s *IssueService) ConvertToSubtask(ctx context.Context, actor *domain.User, id, parentID string) (*domain.Issue, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	issue, err := s.authorizeIssue(ctx, actor, id, domain.RoleMember)
	if err != nil {
		return nil, err
	}
	if issue.Type == domain.IssueTypeSubtask {
		return nil, &domain.ValidationError{Field: "type", Message: "issue is already a subtask"}
	}
	if parentID == "" {
		return nil, &domain.ValidationError{Field: "parentIssueId", Message: "is required"}
	}
	issue.Type = domain.IssueTypeSubtask
	issue.ParentIssueID = &parentID
	return s.issues.Update(ctx, *issue, false, nil)
}

// ConvertToIssue detaches a subtask from its parent as a Task.
func (s *IssueService) ConvertToIssue(ctx context.Context, actor *domain.User, id string) (*domain.Issue, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	issue, err := s.authorizeIssue(ctx, actor, id, domain.RoleMember)
	if err != nil {
		return nil, err
	}
	if issue.Type != domain.IssueTypeSubtask {
		return nil, &domain.ValidationError{Field: "type", Message: "issue is not a subtask"}
	}
	issue.Type = domain.IssueTypeTask
	issue.ParentIssueID = nil
	return s.issues.Update(ctx, *issue, false, nil)
}

// Delete removes an issue with its subtasks and comments.
func (s *IssueService) Delete(ctx context.Context, actor *domain.User, id string) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	if _, err := s.authorizeIssue(ctx, actor, id, domain.RoleMember); err != nil {
		return err
	}
	return s.issues.Delete(ctx, id)
}

func (s *IssueService) authorizeIssue(ctx context.Context, actor *domain.User, id string, required domain.Role) (*domain.Issue, error) {
	issue, err := s.issues.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeProject(ctx, actor, issue.ProjectID, required); err != nil {
		return nil, err
	}
	return issue, nil
}

func (s *IssueService) authorizeProject(ctx context.Context, actor *domain.User, projectID string, required domain.Role) (domain.Role, error) {
	if projectID == "" {
		return "", &domain.ValidationError{Field: "projectId", Message: "is required"}
	}
	p, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return "", err
	}
	return s.access.Authorize(ctx, actor, p, required)
}
