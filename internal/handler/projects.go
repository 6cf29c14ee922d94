package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sumire/tracker/internal/domain"
	"github.com/sumire/tracker/internal/service"
)

// ProjectHandler serves /api/projects.
type ProjectHandler struct {
	projects *service.ProjectService
}

func NewProjectHandler(projects *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// projectPageSize is the default ?size of paged project listings.
const projectPageSize = 20

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r, projectPageSize)
	if err != nil {
		WriteError(w, err)
		return
	}
	if page != nil {
		result, err := h.projects.ListPage(r.Context(), GetUser(r.Context()), *page)
		if err != nil {
			WriteError(w, err)
			return
		}
		writePage(w, result)
		return
	}

	projects, err := h.projects.List(r.Context(), GetUser(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	WriteJSON(w, http.StatusOK, projects)
}

// Get returns the project board: issues, members and the caller's role.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.projects.Get(r.Context(), GetUser(r.Context()), chi.URLParam(r, "projectId"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

type createProjectRequest struct {
	Name        string                 `json:"name" validate:"required,max=255"`
	URL         *string                `json:"url" validate:"omitempty,max=2048"`
	Description *string                `json:"description"`
	Category    domain.ProjectCategory `json:"category" validate:"omitempty,oneof=Software Marketing Business"`
	IsPublic    bool                   `json:"isPublic"`
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	p, err := h.projects.Create(r.Context(), GetUser(r.Context()), domain.Project{
		Name:        req.Name,
		URL:         req.URL,
		Description: req.Description,
		Category:    req.Category,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, p)
}

type updateProjectRequest struct {
	Name        *string                 `json:"name" validate:"omitempty,max=255"`
	URL         *string                 `json:"url" validate:"omitempty,max=2048"`
	Description *string                 `json:"description"`
	Category    *domain.ProjectCategory `json:"category" validate:"omitempty,oneof=Software Marketing Business"`
	IsPublic    *bool                   `json:"isPublic"`
}

func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	p, err := h.projects.Update(r.Context(), GetUser(r.Context()), chi.URLParam(r, "projectId"), domain.ProjectPatch{
		Name:        req.Name,
		URL:         req.URL,
		Description: req.Description,
		Category:    req.Category,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.Delete(r.Context(), GetUser(r.Context()), chi.URLParam(r, "projectId")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
