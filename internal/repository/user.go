package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sumire/tracker/internal/domain"
)

const userColumns = `id, name, email, password, role, avatar_url, created_at, updated_at`

// UserRepository handles user data access operations.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID retrieves a user by their ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(fmt.Sprintf("find user by id %s", id), err)
	}
	return &user, nil
}

// FindByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, strings.TrimSpace(email))
	if err != nil {
		return nil, mapError("find user by email", err)
	}
	return &user, nil
}

// List returns every user ordered by name.
func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	if err := r.db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users ORDER BY name, id`); err != nil {
		return nil, mapError("list users", err)
	}
	return users, nil
}

// ListNotInProject returns users without a membership in the project.
func (r *UserRepository) ListNotInProject(ctx context.Context, projectID string) ([]domain.User, error) {
	users := []domain.User{}
	err := r.db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users u
		 WHERE NOT EXISTS (
		     SELECT 1 FROM project_members pm WHERE pm.project_id = $1 AND pm.user_id = u.id)
		 ORDER BY name, id`, projectID)
	if err != nil {
		return nil, mapError("list users outside project", err)
	}
	return users, nil
}

// Create inserts a user. A duplicate email yields domain.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = domain.SystemRoleUser
	}

	var result domain.User
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO users (id, name, email, password, role, avatar_url)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+userColumns,
		user.ID, user.Name, strings.TrimSpace(user.Email), user.Password, user.Role, user.AvatarURL,
	).StructScan(&result)
	if err != nil {
		return nil, mapError("create user", err)
	}
	return &result, nil
}

// Update applies a partial update. Nil fields are left unchanged.
func (r *UserRepository) Update(ctx context.Context, id string, patch domain.UserPatch) (*domain.User, error) {
	var result domain.User
	err := r.db.QueryRowxContext(ctx,
		`UPDATE users SET
		     name       = COALESCE($2, name),
		     email      = COALESCE($3, email),
		     password   = COALESCE($4, password),
		     role       = COALESCE($5, role),
		     avatar_url = COALESCE($6, avatar_url),
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, patch.Name, patch.Email, patch.Password, patch.Role, patch.AvatarURL,
	).StructScan(&result)
	if err != nil {
		return nil, mapError(fmt.Sprintf("update user %s", id), err)
	}
	return &result, nil
}

// Delete removes a user along with their memberships, assignments and
// comments. A user who still reports issues cannot be deleted, nor can the
// only ADMIN of a project.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var rosters []domain.Member
		if err := tx.SelectContext(ctx, &rosters,
			`SELECT project_id, user_id, role, created_at, updated_at
			 FROM project_members
			 WHERE project_id IN (
			     SELECT project_id FROM project_members WHERE user_id = $1 AND role = $2)
			 ORDER BY project_id, user_id FOR UPDATE`, id, domain.RoleAdmin); err != nil {
			return mapError(fmt.Sprintf("lock rosters of %s", id), err)
		}
		if err := domain.CheckUserRemovable(rosters, id); err != nil {
			return fmt.Errorf("delete user %s: %w", id, err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("delete user %s: %w: user still reports issues", id, domain.ErrConflict)
			}
			return mapError(fmt.Sprintf("delete user %s", id), err)
		}
		return expectAffected(res)
	})
}
