package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sumire/tracker/internal/domain"
	"github.com/sumire/tracker/internal/rank"
)

const issueColumns = `id, key, project_id, parent_issue_id, title, type, status, priority, rank, description,
	estimate, time_spent, time_remaining, reporter_id, created_at, updated_at`

// rankedIssues derives the 1-based list position of every issue in its
// (project, status) column from the stored rank.
const rankedIssues = `SELECT ` + issueColumns + `,
	ROW_NUMBER() OVER (PARTITION BY project_id, status ORDER BY rank, id) AS list_position
	FROM issues`

// IssueRepository handles issue data access operations.
type IssueRepository struct {
	db *sqlx.DB
}

func NewIssueRepository(db *sqlx.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// FindByID returns an issue with its list position and assignees.
func (r *IssueRepository) FindByID(ctx context.Context, id string) (*domain.Issue, error) {
	return r.findByID(ctx, r.db, id)
}

func (r *IssueRepository) findByID(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Issue, error) {
	var issue domain.Issue
	err := sqlx.GetContext(ctx, q, &issue,
		`WITH ranked AS (`+rankedIssues+`
		     WHERE project_id = (SELECT project_id FROM issues WHERE id = $1))
		 SELECT * FROM ranked WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(fmt.Sprintf("find issue %s", id), err)
	}

	issues := []domain.Issue{issue}
	if err := r.attachAssignees(ctx, q, issues); err != nil {
		return nil, err
	}
	if err := sqlx.SelectContext(ctx, q, &issues[0].Subtasks,
		`SELECT id, key, title, type, status, priority FROM issues
		 WHERE parent_issue_id = $1 ORDER BY created_at, id`, id); err != nil {
		return nil, mapError("load subtasks", err)
	}
	return &issues[0], nil
}

// List returns issues matching filter, ordered by project, status column and
// list position.
func (r *IssueRepository) List(ctx context.Context, filter domain.IssueFilter) ([]domain.Issue, error) {
	var args argList
	query := issueListQuery(filter, &args) + ` ORDER BY project_id, status, list_position`

	issues := []domain.Issue{}
	if err := r.db.SelectContext(ctx, &issues, query, args...); err != nil {
		return nil, mapError("list issues", err)
	}
	if err := r.attachAssignees(ctx, r.db, issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// ListPage returns one page of List.
func (r *IssueRepository) ListPage(ctx context.Context, filter domain.IssueFilter, page domain.PageRequest) (domain.Page[domain.Issue], error) {
	var args argList
	query := issueListQuery(filter, &args)

	result := domain.Page[domain.Issue]{Items: []domain.Issue{}, Number: page.Number, Size: page.Size}
	if err := r.db.GetContext(ctx, &result.Total, `SELECT COUNT(*) FROM (`+query+`) q`, args...); err != nil {
		return result, mapError("count issues", err)
	}
	query += ` ORDER BY project_id, status, list_position` +
		` LIMIT ` + args.add(page.Size) + ` OFFSET ` + args.add(page.Offset())
	if err := r.db.SelectContext(ctx, &result.Items, query, args...); err != nil {
		return result, mapError("list issues", err)
	}
	if err := r.attachAssignees(ctx, r.db, result.Items); err != nil {
		return result, err
	}
	return result, nil
}

func issueListQuery(filter domain.IssueFilter, args *argList) string {
	inner := rankedIssues + ` WHERE project_id IN (SELECT p.id FROM projects p WHERE ` +
		scopeClause("p", filter.Scope, args) + `)`
	if filter.ProjectID != "" {
		inner += ` AND project_id = ` + args.add(filter.ProjectID)
	}

	query := `WITH ranked AS (` + inner + `) SELECT * FROM ranked`
	if term := strings.TrimSpace(filter.Term); term != "" {
		ph := args.add("%" + escapeLike(term) + "%")
		query += ` WHERE title ILIKE ` + ph + ` OR description ILIKE ` + ph
	}
	return query
}

// Create numbers the issue within its project, appends it to the end of its
// status column and stores its assignees in one transaction.
func (r *IssueRepository) Create(ctx context.Context, issue domain.Issue) (*domain.Issue, error) {
	if issue.ID == "" {
		issue.ID = uuid.NewString()
	}

	var created *domain.Issue
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var counter struct {
			Key  string `db:"key"`
			Next int    `db:"issue_counter"`
		}
		if err := tx.GetContext(ctx, &counter,
			`UPDATE projects SET issue_counter = issue_counter + 1 WHERE id = $1
			 RETURNING key, issue_counter`, issue.ProjectID); err != nil {
			return mapError(fmt.Sprintf("number issue in project %s", issue.ProjectID), err)
		}
		issue.Key = domain.IssueKey(counter.Key, counter.Next)

		if err := checkHierarchy(ctx, tx, issue, 0); err != nil {
			return err
		}
		if err := lockColumn(ctx, tx, issue.ProjectID, issue.Status); err != nil {
			return err
		}

		var last sql.NullString
		if err := tx.GetContext(ctx, &last,
			`SELECT MAX(rank) FROM issues WHERE project_id = $1 AND status = $2`,
			issue.ProjectID, issue.Status); err != nil {
			return mapError("read column tail", err)
		}
		var err error
		key := rank.First()
		if last.Valid {
			if key, err = rank.After(last.String); err != nil {
				return fmt.Errorf("rank after %q: %w", last.String, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO issues (id, key, project_id, parent_issue_id, title, type, status, priority, rank,
			                     description, estimate, time_spent, time_remaining, reporter_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			issue.ID, issue.Key, issue.ProjectID, issue.ParentIssueID, issue.Title, issue.Type, issue.Status,
			issue.Priority, key, issue.Description, issue.Estimate, issue.TimeSpent, issue.TimeRemaining,
			issue.ReporterID,
		); err != nil {
			return mapError("insert issue", err)
		}
		if err := replaceAssignees(ctx, tx, issue.ID, issue.UserIDs); err != nil {
			return err
		}

		created, err = r.findByID(ctx, tx, issue.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update writes the issue's editable fields. When replaceUsers is set the
// assignee set becomes issue.UserIDs. A non-nil move relocates the issue in
// the same transaction.
func (r *IssueRepository) Update(ctx context.Context, issue domain.Issue, replaceUsers bool, move *domain.IssueMove) (*domain.Issue, error) {
	var updated *domain.Issue
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`SELECT 1 FROM issues WHERE id = $1 FOR UPDATE`, issue.ID); err != nil {
			return mapError(fmt.Sprintf("lock issue %s", issue.ID), err)
		}
		var subtasks int
		if err := tx.GetContext(ctx, &subtasks,
			`SELECT COUNT(*) FROM issues WHERE parent_issue_id = $1`, issue.ID); err != nil {
			return mapError("count subtasks", err)
		}
		if err := checkHierarchy(ctx, tx, issue, subtasks); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE issues SET title = $2, type = $3, priority = $4, description = $5,
			        estimate = $6, time_spent = $7, time_remaining = $8, reporter_id = $9,
			        parent_issue_id = $10, updated_at = NOW()
			 WHERE id = $1`,
			issue.ID, issue.Title, issue.Type, issue.Priority, issue.Description,
			issue.Estimate, issue.TimeSpent, issue.TimeRemaining, issue.ReporterID, issue.ParentIssueID)
		if err != nil {
			return mapError(fmt.Sprintf("update issue %s", issue.ID), err)
		}
		if err := expectAffected(res); err != nil {
			return err
		}
		if replaceUsers {
			if err := replaceAssignees(ctx, tx, issue.ID, issue.UserIDs); err != nil {
				return err
			}
		}
		if move != nil {
			if err := moveIssue(ctx, tx, issue.ID, *move); err != nil {
				return err
			}
		}
		updated, err = r.findByID(ctx, tx, issue.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Move places the issue at a 1-based position of a status column. Only the
// moved row is rewritten.
func (r *IssueRepository) Move(ctx context.Context, id string, mv domain.IssueMove) (*domain.Issue, error) {
	var moved *domain.Issue
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := moveIssue(ctx, tx, id, mv); err != nil {
			return err
		}
		var err error
		moved, err = r.findByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// Delete removes an issue; subtasks, comments and assignee links cascade.
func (r *IssueRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM issues WHERE id = $1`, id)
	if err != nil {
		return mapError(fmt.Sprintf("delete issue %s", id), err)
	}
	return expectAffected(res)
}

type rankedID struct {
	ID   string `db:"id"`
	Rank string `db:"rank"`
}

func moveIssue(ctx context.Context, tx *sqlx.Tx, id string, mv domain.IssueMove) error {
	var projectID string
	if err := tx.GetContext(ctx, &projectID,
		`SELECT project_id FROM issues WHERE id = $1 FOR UPDATE`, id); err != nil {
		return mapError(fmt.Sprintf("lock issue %s", id), err)
	}
	if err := lockColumn(ctx, tx, projectID, mv.Status); err != nil {
		return err
	}

	// A position of zero or less appends to the column.
	pos := mv.ListPosition
	if pos < 1 {
		pos = math.MaxInt32
	}

	// Neighbours at the target slot: the issue currently at pos-1 and the
	// one at pos, ignoring the moved issue itself.
	offset := pos - 2
	if offset < 0 {
		offset = 0
	}
	var window []rankedID
	if err := tx.SelectContext(ctx, &window,
		`SELECT id, rank FROM issues
		 WHERE project_id = $1 AND status = $2 AND id <> $3
		 ORDER BY rank, id OFFSET $4 LIMIT 2`,
		projectID, mv.Status, id, offset); err != nil {
		return mapError("read move neighbours", err)
	}

	var key string
	var err error
	switch {
	case len(window) == 0 && pos == 1:
		key = rank.First()
	case pos == 1:
		key, err = rank.Before(window[0].Rank)
	case len(window) == 0:
		// Past the end: append after the current tail.
		var last sql.NullString
		if err := tx.GetContext(ctx, &last,
			`SELECT MAX(rank) FROM issues WHERE project_id = $1 AND status = $2 AND id <> $3`,
			projectID, mv.Status, id); err != nil {
			return mapError("read column tail", err)
		}
		key, err = rank.After(last.String)
	default:
		var next string
		if len(window) > 1 {
			next = window[1].Rank
		}
		key, err = rank.Between(window[0].Rank, next)
	}
	if errors.Is(err, rank.ErrInvalidKey) {
		return rebalanceColumn(ctx, tx, projectID, id, mv.Status, pos)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE issues SET status = $2, rank = $3, updated_at = NOW() WHERE id = $1`,
		id, mv.Status, key); err != nil {
		return mapError(fmt.Sprintf("move issue %s", id), err)
	}
	return nil
}

// rebalanceColumn rewrites every rank in the column with evenly spaced keys,
// inserting the moved issue at pos. It runs only when neighbouring keys have
// collided.
func rebalanceColumn(ctx context.Context, tx *sqlx.Tx, projectID, id string, status domain.IssueStatus, pos int) error {
	var ids []string
	if err := tx.SelectContext(ctx, &ids,
		`SELECT id FROM issues WHERE project_id = $1 AND status = $2 AND id <> $3
		 ORDER BY rank, id`, projectID, status, id); err != nil {
		return mapError("read column for rebalance", err)
	}
	if pos > len(ids)+1 {
		pos = len(ids) + 1
	}
	ordered := make([]string, 0, len(ids)+1)
	ordered = append(ordered, ids[:pos-1]...)
	ordered = append(ordered, id)
	ordered = append(ordered, ids[pos-1:]...)

	keys := rank.Spread(len(ordered))
	for i, issueID := range ordered {
		if _, err := tx.ExecContext(ctx,
			`UPDATE issues SET status = $2, rank = $3,
			        updated_at = CASE WHEN id = $4 THEN NOW() ELSE updated_at END
			 WHERE id = $1`, issueID, status, keys[i], id); err != nil {
			return mapError("rebalance column", err)
		}
	}
	return nil
}

// checkHierarchy applies domain.ValidateHierarchy against stored rows. The
// parent is share-locked so it cannot turn into a subtask concurrently.
func checkHierarchy(ctx context.Context, tx *sqlx.Tx, issue domain.Issue, subtasks int) error {
	var parent *domain.Issue
	if issue.ParentIssueID != nil {
		var row domain.Issue
		err := tx.GetContext(ctx, &row,
			`SELECT id, project_id, type, parent_issue_id FROM issues WHERE id = $1 FOR SHARE`,
			*issue.ParentIssueID)
		switch {
		case err == nil:
			parent = &row
		case !errors.Is(err, sql.ErrNoRows):
			return mapError("lock parent issue", err)
		}
	}
	return domain.ValidateHierarchy(issue, parent, subtasks)
}

// lockColumn serializes rank assignment within one (project, status) column.
func lockColumn(ctx context.Context, tx *sqlx.Tx, projectID string, status domain.IssueStatus) error {
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, projectID+"/"+string(status)); err != nil {
		return mapError("lock column", err)
	}
	return nil
}

func replaceAssignees(ctx context.Context, tx *sqlx.Tx, issueID string, userIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM issue_users WHERE issue_id = $1`, issueID); err != nil {
		return mapError("clear assignees", err)
	}
	seen := make(map[string]bool, len(userIDs))
	for _, uid := range userIDs {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO issue_users (issue_id, user_id) VALUES ($1, $2)`, issueID, uid); err != nil {
			return mapError("add assignee", err)
		}
	}
	return nil
}

type assigneeRow struct {
	IssueID string `db:"issue_id"`
	UserID  string `db:"user_id"`
}

func (r *IssueRepository) attachAssignees(ctx context.Context, q sqlx.QueryerContext, issues []domain.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	ids := make([]string, len(issues))
	index := make(map[string]int, len(issues))
	for i := range issues {
		ids[i] = issues[i].ID
		index[issues[i].ID] = i
		issues[i].UserIDs = []string{}
	}

	query, args, err := sqlx.In(
		`SELECT issue_id, user_id FROM issue_users WHERE issue_id IN (?) ORDER BY created_at, user_id`, ids)
	if err != nil {
		return fmt.Errorf("build assignee query: %w", err)
	}
	var rows []assigneeRow
	if err := sqlx.SelectContext(ctx, q, &rows, r.db.Rebind(query), args...); err != nil {
		return mapError("load assignees", err)
	}
	for _, row := range rows {
		i := index[row.IssueID]
		issues[i].UserIDs = append(issues[i].UserIDs, row.UserID)
	}
	return nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
