package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sumire/tracker/internal/domain"
)

// UserService exposes the user directory and its admin-only mutations.
type UserService struct {
	users UserStore
	auth  *AuthService
}

func NewUserService(users UserStore, auth *AuthService) *UserService {
	return &UserService{users: users, auth: auth}
}

// NewUser is the input for an admin-created account.
type NewUser struct {
	Name      string
	Email     string
	Password  string
	Role      domain.SystemRole
	AvatarURL *string
}

func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.users.FindByID(ctx, id)
}

// Create adds an account. Without a password the account cannot log in
// until one is set.
func (s *UserService) Create(ctx context.Context, actor *domain.User, in NewUser) (*domain.User, error) {
	if err := requireSystemAdmin(actor); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = domain.SystemRoleUser
	}
	if !in.Role.Valid() {
		return nil, &domain.ValidationError{Field: "role", Message: "must be admin or user"}
	}

	user := domain.User{
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Role:      in.Role,
		AvatarURL: in.AvatarURL,
	}
	if in.Password != "" {
		hash, err := s.auth.hashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		user.Password = &hash
	}

	created, err := s.users.Create(ctx, user)
	if errors.Is(err, domain.ErrConflict) {
		return nil, domain.ErrEmailInUse
	}
	return created, err
}

// Update applies a partial update. A plain-text password in the patch is
// hashed before storage.
func (s *UserService) Update(ctx context.Context, actor *domain.User, id string, patch domain.UserPatch) (*domain.User, error) {
	if err := requireSystemAdmin(actor); err != nil {
		return nil, err
	}
	if patch.Role != nil && !patch.Role.Valid() {
		return nil, &domain.ValidationError{Field: "role", Message: "must be admin or user"}
	}
	if patch.Password != nil {
		hash, err := s.auth.hashPassword(*patch.Password)
		if err != nil {
			return nil, err
		}
		patch.Password = &hash
	}

	updated, err := s.users.Update(ctx, id, patch)
	if errors.Is(err, domain.ErrConflict) {
		return nil, domain.ErrEmailInUse
	}
	return updated, err
}

func (s *UserService) Delete(ctx context.Context, actor *domain.User, id string) error {
	if err := requireSystemAdmin(actor); err != nil {
		return err
	}
	return s.users.Delete(ctx, id)
}
