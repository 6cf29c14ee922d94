package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sumire/tracker/internal/domain"
	"github.com/sumire/tracker/internal/service"
)

// MemberHandler serves both the project users routes and the permission
// routes; they manage the same roster.
type MemberHandler struct {
	members *service.MemberService
}

func NewMemberHandler(members *service.MemberService) *MemberHandler {
	return &MemberHandler{members: members}
}

type addMemberRequest struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

// List returns the roster of a project to any viewer.
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List(r.Context(), GetUser(r.Context()), chi.URLParam(r, "projectId"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeMembers(w, members)
}

func (h *MemberHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		WriteError(w, err)
		return
	}

	m, err := h.members.Add(r.Context(), GetUser(r.Context()), chi.URLParam(r, "projectId"), req.UserID, role)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, m)
}

func (h *MemberHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	role, ok := decodeRole(w, r)
	if !ok {
		return
	}

	m, err := h.members.UpdateRole(r.Context(), GetUser(r.Context()),
		chi.URLParam(r, "projectId"), chi.URLParam(r, "userId"), role)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	err := h.members.Remove(r.Context(), GetUser(r.Context()), chi.URLParam(r, "projectId"), chi.URLParam(r, "userId"))
	if err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AvailableUsers lists users that could still be added to the project.
func (h *MemberHandler) AvailableUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.members.AvailableUsers(r.Context(), GetUser(r.Context()), chi.URLParam(r, "projectId"))
	if err != nil {
		WriteError(w, err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	WriteJSON(w, http.StatusOK, users)
}

// ListPermissions returns the roster to a project admin.
func (h *MemberHandler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.ListForAdmin(r.Context(), GetUser(r.Context()), chi.URLParam(r, "projectId"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeMembers(w, members)
}

func (h *MemberHandler) GetPermission(w http.ResponseWriter, r *http.Request) {
	m, err := h.members.Get(r.Context(), GetUser(r.Context()), chi.URLParam(r, "projectId"), chi.URLParam(r, "userId"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

// PutPermission upserts a role: 201 when the membership is new, 200 otherwise.
func (h *MemberHandler) PutPermission(w http.ResponseWriter, r *http.Request) {
	role, ok := decodeRole(w, r)
	if !ok {
		return
	}

	m, created, err := h.members.Put(r.Context(), GetUser(r.Context()),
		chi.URLParam(r, "projectId"), chi.URLParam(r, "userId"), role)
	if err != nil {
		WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, m)
}

func decodeRole(w http.ResponseWriter, r *http.Request) (domain.Role, bool) {
	var req roleRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return "", false
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		WriteError(w, err)
		return "", false
	}
	return role, true
}

func writeMembers(w http.ResponseWriter, members []domain.Member) {
	if members == nil {
		members = []domain.Member{}
	}
	WriteJSON(w, http.StatusOK, members)
}
