package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sumire/tracker/internal/domain"
	"github.com/sumire/tracker/internal/service"
)

// UserHandler serves the user directory.
type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

type createUserRequest struct {
	Name      string            `json:"name" validate:"required,max=255"`
	Email     string            `json:"email" validate:"required,email"`
	Password  string            `json:"password" validate:"maxbytes=72"`
	Role      domain.SystemRole `json:"role" validate:"omitempty,oneof=admin user"`
	AvatarURL *string           `json:"avatarUrl" validate:"omitempty,url"`
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	user, err := h.users.Create(r.Context(), GetUser(r.Context()), service.NewUser{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, user)
}

type updateUserRequest struct {
	Name      *string            `json:"name" validate:"omitempty,min=1,max=255"`
	Email     *string            `json:"email" validate:"omitempty,email"`
	Password  *string            `json:"password" validate:"omitempty,min=1,maxbytes=72"`
	Role      *domain.SystemRole `json:"role" validate:"omitempty,oneof=admin user"`
	AvatarURL *string            `json:"avatarUrl"`
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	user, err := h.users.Update(r.Context(), GetUser(r.Context()), chi.URLParam(r, "id"), domain.UserPatch{
		Name:      req.Name,
		Email:     req.Email,
		Password:  req.Password,
		Role:      req.Role,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), GetUser(r.Context()), chi.URLParam(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
