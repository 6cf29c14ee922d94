package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sumire/tracker/internal/domain"
)

type commentRow struct {
	domain.Comment
	UserName      string  `db:"user_name"`
	UserEmail     string  `db:"user_email"`
	UserAvatarURL *string `db:"user_avatar_url"`
}

func (c commentRow) toDomain() domain.Comment {
	out := c.Comment
	out.User = &domain.UserSummary{
		ID:        c.UserID,
		Name:      c.UserName,
		Email:     c.UserEmail,
		AvatarURL: c.UserAvatarURL,
	}
	return out
}

const commentSelect = `SELECT c.id, c.body, c.issue_id, c.user_id, c.created_at, c.updated_at,
	u.name AS user_name, u.email AS user_email, u.avatar_url AS user_avatar_url
	FROM comments c JOIN users u ON u.id = c.user_id`

// CommentRepository handles comment data access operations.
type CommentRepository struct {
	db *sqlx.DB
}

func NewCommentRepository(db *sqlx.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// FindByID retrieves a comment with its author.
func (r *CommentRepository) FindByID(ctx context.Context, id string) (*domain.Comment, error) {
	var row commentRow
	if err := r.db.GetContext(ctx, &row, commentSelect+` WHERE c.id = $1`, id); err != nil {
		return nil, mapError(fmt.Sprintf("find comment %s", id), err)
	}
	c := row.toDomain()
	return &c, nil
}

// ListByIssue returns an issue's comments, newest first.
func (r *CommentRepository) ListByIssue(ctx context.Context, issueID string) ([]domain.Comment, error) {
	return r.selectComments(ctx, "list comments by issue",
		commentSelect+` WHERE c.issue_id = $1 ORDER BY c.created_at DESC, c.id DESC`, issueID)
}

// ListByIssuePage returns one page of ListByIssue.
func (r *CommentRepository) ListByIssuePage(ctx context.Context, issueID string, page domain.PageRequest) (domain.Page[domain.Comment], error) {
	result := domain.Page[domain.Comment]{Number: page.Number, Size: page.Size}
	if err := r.db.GetContext(ctx, &result.Total,
		`SELECT COUNT(*) FROM comments WHERE issue_id = $1`, issueID); err != nil {
		return result, mapError("count comments", err)
	}
	items, err := r.selectComments(ctx, "list comments by issue",
		commentSelect+` WHERE c.issue_id = $1 ORDER BY c.created_at DESC, c.id DESC LIMIT $2 OFFSET $3`,
		issueID, page.Size, page.Offset())
	if err != nil {
		return result, err
	}
	result.Items = items
	return result, nil
}

// List returns comments on issues of projects readable under scope.
func (r *CommentRepository) List(ctx context.Context, scope domain.ProjectScope) ([]domain.Comment, error) {
	var args argList
	query := commentSelect + `
		JOIN issues i ON i.id = c.issue_id
		JOIN projects p ON p.id = i.project_id
		WHERE ` + scopeClause("p", scope, &args) + `
		ORDER BY c.created_at DESC, c.id DESC`
	return r.selectComments(ctx, "list comments", query, args...)
}

func (r *CommentRepository) selectComments(ctx context.Context, op, query string, args ...any) ([]domain.Comment, error) {
	var rows []commentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(op, err)
	}
	comments := make([]domain.Comment, 0, len(rows))
	for _, row := range rows {
		comments = append(comments, row.toDomain())
	}
	return comments, nil
}

// Create inserts a comment, keeping a caller-supplied ID when present.
func (r *CommentRepository) Create(ctx context.Context, c domain.Comment) (*domain.Comment, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, body, issue_id, user_id) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Body, c.IssueID, c.UserID); err != nil {
		return nil, mapError("create comment", err)
	}
	return r.FindByID(ctx, c.ID)
}

// UpdateBody replaces a comment's body.
func (r *CommentRepository) UpdateBody(ctx context.Context, id, body string) (*domain.Comment, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE comments SET body = $2, updated_at = NOW() WHERE id = $1`, id, body)
	if err != nil {
		return nil, mapError(fmt.Sprintf("update comment %s", id), err)
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// Delete removes a comment.
func (r *CommentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return mapError(fmt.Sprintf("delete comment %s", id), err)
	}
	return expectAffected(res)
}
