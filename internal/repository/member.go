package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/tracker/internal/domain"
)

// memberRow is a membership joined with its user.
type memberRow struct {
	domain.Member
	UserName      string  `db:"user_name"`
	UserEmail     string  `db:"user_email"`
	UserAvatarURL *string `db:"user_avatar_url"`
}

func (m memberRow) toDomain() domain.Member {
	out := m.Member
	out.User = &domain.UserSummary{
		ID:        m.UserID,
		Name:      m.UserName,
		Email:     m.UserEmail,
		AvatarURL: m.UserAvatarURL,
	}
	return out
}

const memberSelect = `SELECT pm.project_id, pm.user_id, pm.role, pm.created_at, pm.updated_at,
	u.name AS user_name, u.email AS user_email, u.avatar_url AS user_avatar_url
	FROM project_members pm JOIN users u ON u.id = pm.user_id`

// MemberRepository stores project role assignments. Every mutation that can
// lower a role runs under a row lock on the project's roster so that the
// project always keeps an admin.
type MemberRepository struct {
	db *sqlx.DB
}

func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Find returns one membership.
func (r *MemberRepository) Find(ctx context.Context, projectID, userID string) (*domain.Member, error) {
	var row memberRow
	if err := r.db.GetContext(ctx, &row,
		memberSelect+` WHERE pm.project_id = $1 AND pm.user_id = $2`, projectID, userID); err != nil {
		return nil, mapError("find member", err)
	}
	m := row.toDomain()
	return &m, nil
}

// List returns the project's roster, admins first.
func (r *MemberRepository) List(ctx context.Context, projectID string) ([]domain.Member, error) {
	var rows []memberRow
	if err := r.db.SelectContext(ctx, &rows,
		memberSelect+` WHERE pm.project_id = $1
		 ORDER BY u.name, pm.user_id`,
		projectID); err != nil {
		return nil, mapError("list members", err)
	}
	members := make([]domain.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, row.toDomain())
	}
	domain.SortRoster(members)
	return members, nil
}

// Add inserts a new membership; an existing one yields domain.ErrConflict.
func (r *MemberRepository) Add(ctx context.Context, projectID, userID string, role domain.Role) (*domain.Member, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO project_members (project_id, user_id, role) VALUES ($1, $2, $3)`,
		projectID, userID, role); err != nil {
		return nil, mapError("add member", err)
	}
	return r.Find(ctx, projectID, userID)
}

// Upsert sets the role, creating the membership when absent. created reports
// which happened.
func (r *MemberRepository) Upsert(ctx context.Context, projectID, userID string, role domain.Role) (*domain.Member, bool, error) {
	created := false
	err := r.guarded(ctx, projectID, userID, role, func(tx *sqlx.Tx, existing *domain.Member) error {
		created = existing == nil
		_, err := tx.ExecContext(ctx,
			`INSERT INTO project_members (project_id, user_id, role) VALUES ($1, $2, $3)
			 ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = NOW()`,
			projectID, userID, role)
		return mapError("upsert member", err)
	})
	if err != nil {
		return nil, false, err
	}
	m, err := r.Find(ctx, projectID, userID)
	return m, created, err
}

// UpdateRole changes an existing membership's role.
func (r *MemberRepository) UpdateRole(ctx context.Context, projectID, userID string, role domain.Role) (*domain.Member, error) {
	err := r.guarded(ctx, projectID, userID, role, func(tx *sqlx.Tx, existing *domain.Member) error {
		if existing == nil {
			return domain.ErrNotFound
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE project_members SET role = $3, updated_at = NOW()
			 WHERE project_id = $1 AND user_id = $2`, projectID, userID, role)
		return mapError("update member role", err)
	})
	if err != nil {
		return nil, err
	}
	return r.Find(ctx, projectID, userID)
}

// Remove deletes a membership.
func (r *MemberRepository) Remove(ctx context.Context, projectID, userID string) error {
	return r.guarded(ctx, projectID, userID, "", func(tx *sqlx.Tx, existing *domain.Member) error {
		if existing == nil {
			return domain.ErrNotFound
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID)
		return mapError("remove member", err)
	})
}

// guarded locks the roster, checks the admin invariant for changing userID
// to newRole (empty for removal) and then runs fn.
func (r *MemberRepository) guarded(ctx context.Context, projectID, userID string, newRole domain.Role,
	fn func(tx *sqlx.Tx, existing *domain.Member) error) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var roster []domain.Member
		if err := tx.SelectContext(ctx, &roster,
			`SELECT project_id, user_id, role, created_at, updated_at
			 FROM project_members WHERE project_id = $1
			 ORDER BY user_id FOR UPDATE`, projectID); err != nil {
			return mapError(fmt.Sprintf("lock roster of %s", projectID), err)
		}

		var existing *domain.Member
		for i := range roster {
			if roster[i].UserID == userID {
				existing = &roster[i]
			}
		}
		if existing != nil {
			if err := domain.CheckAdminRetained(roster, userID, newRole); err != nil {
				return err
			}
		}
		return fn(tx, existing)
	})
}
