package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sumire/tracker/internal/domain"
)

const projectColumns = `id, key, name, url, description, category, is_public, created_at, updated_at`

// ProjectRepository handles project data access operations.
type ProjectRepository struct {
	db *sqlx.DB
}

func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// FindByID retrieves a project by its ID.
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*domain.Project, error) {
	var p domain.Project
	if err := r.db.GetContext(ctx, &p,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id); err != nil {
		return nil, mapError(fmt.Sprintf("find project %s", id), err)
	}
	return &p, nil
}

// List returns the projects readable under scope, newest first.
func (r *ProjectRepository) List(ctx context.Context, scope domain.ProjectScope) ([]domain.Project, error) {
	var args argList
	query := `SELECT ` + projectColumns + ` FROM projects p WHERE ` +
		scopeClause("p", scope, &args) + ` ORDER BY p.created_at DESC, p.id`

	projects := []domain.Project{}
	if err := r.db.SelectContext(ctx, &projects, query, args...); err != nil {
		return nil, mapError("list projects", err)
	}
	return projects, nil
}

// ListPage returns one page of List.
func (r *ProjectRepository) ListPage(ctx context.Context, scope domain.ProjectScope, page domain.PageRequest) (domain.Page[domain.Project], error) {
	var args argList
	from := ` FROM projects p WHERE ` + scopeClause("p", scope, &args)

	result := domain.Page[domain.Project]{Items: []domain.Project{}, Number: page.Number, Size: page.Size}
	if err := r.db.GetContext(ctx, &result.Total, `SELECT COUNT(*)`+from, args...); err != nil {
		return result, mapError("count projects", err)
	}
	query := `SELECT ` + projectColumns + from + ` ORDER BY p.created_at DESC, p.id` +
		` LIMIT ` + args.add(page.Size) + ` OFFSET ` + args.add(page.Offset())
	if err := r.db.SelectContext(ctx, &result.Items, query, args...); err != nil {
		return result, mapError("list projects", err)
	}
	return result, nil
}

// CreateWithAdmin inserts the project under a fresh key derived from its
// name and grants adminID the ADMIN role in the same transaction.
func (r *ProjectRepository) CreateWithAdmin(ctx context.Context, p domain.Project, adminID string) (*domain.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	var result domain.Project
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		key, err := reserveProjectKey(ctx, tx, p.Name)
		if err != nil {
			return err
		}
		if err := tx.QueryRowxContext(ctx,
			`INSERT INTO projects (id, key, name, url, description, category, is_public)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING `+projectColumns,
			p.ID, key, p.Name, p.URL, p.Description, p.Category, p.IsPublic,
		).StructScan(&result); err != nil {
			return mapError("insert project", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO project_members (project_id, user_id, role) VALUES ($1, $2, $3)`,
			result.ID, adminID, domain.RoleAdmin); err != nil {
			return mapError("grant project admin", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Update overwrites the mutable fields of a project.
func (r *ProjectRepository) Update(ctx context.Context, p domain.Project) (*domain.Project, error) {
	var result domain.Project
	err := r.db.QueryRowxContext(ctx,
		`UPDATE projects
		 SET name = $2, url = $3, description = $4, category = $5, is_public = $6, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+projectColumns,
		p.ID, p.Name, p.URL, p.Description, p.Category, p.IsPublic,
	).StructScan(&result)
	if err != nil {
		return nil, mapError(fmt.Sprintf("update project %s", p.ID), err)
	}
	return &result, nil
}

// Delete removes a project; issues, comments and memberships cascade.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return mapError(fmt.Sprintf("delete project %s", id), err)
	}
	return expectAffected(res)
}

// reserveProjectKey picks the key for a new project. Key selection is
// serialized so concurrent creates with similar names get distinct keys.
func reserveProjectKey(ctx context.Context, tx *sqlx.Tx, name string) (string, error) {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('projects/key'))`); err != nil {
		return "", mapError("lock project keys", err)
	}
	base := domain.ProjectKeyBase(name)
	var keys []string
	if err := tx.SelectContext(ctx, &keys,
		`SELECT key FROM projects WHERE key LIKE $1`, escapeLike(base)+"%"); err != nil {
		return "", mapError("read project keys", err)
	}
	taken := make(map[string]bool, len(keys))
	for _, k := range keys {
		taken[k] = true
	}
	return domain.UniqueProjectKey(base, taken), nil
}
