package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sumire/tracker/internal/domain"
	"github.com/sumire/tracker/internal/service"
)

// IssueHandler serves /api/issues.
type IssueHandler struct {
	issues *service.IssueService
}

func NewIssueHandler(issues *service.IssueService) *IssueHandler {
	return &IssueHandler{issues: issues}
}

// issuePageSize is the default ?size of paged issue listings.
const issuePageSize = 50

func (h *IssueHandler) List(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, "")
}

// Search matches ?term= against titles and descriptions.
func (h *IssueHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.search(w, r, r.URL.Query().Get("term"))
}

func (h *IssueHandler) search(w http.ResponseWriter, r *http.Request, term string) {
	page, err := parsePage(r, issuePageSize)
	if err != nil {
		WriteError(w, err)
		return
	}
	actor, projectID := GetUser(r.Context()), r.URL.Query().Get("projectId")
	if page != nil {
		result, err := h.issues.SearchPage(r.Context(), actor, term, projectID, *page)
		if err != nil {
			WriteError(w, err)
			return
		}
		writePage(w, result)
		return
	}
	issues, err := h.issues.Search(r.Context(), actor, term, projectID)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeIssues(w, issues)
}

func (h *IssueHandler) Get(w http.ResponseWriter, r *http.Request) {
	issue, err := h.issues.Get(r.Context(), GetUser(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, issue)
}

type createIssueRequest struct {
	ProjectID     string               `json:"projectId" validate:"required"`
	ParentIssueID *string              `json:"parentIssueId"`
	Title         string               `json:"title" validate:"required,max=200"`
	Type          domain.IssueType     `json:"type" validate:"omitempty,oneof=Story Task Bug Subtask"`
	Status        domain.IssueStatus   `json:"status" validate:"omitempty,oneof=Backlog Selected InProgress Done"`
	Priority      domain.IssuePriority `json:"priority" validate:"omitempty,oneof=Lowest Low Medium High Highest"`
	Description   *string              `json:"description"`
	Estimate      *int                 `json:"estimate" validate:"omitempty,min=0"`
	TimeSpent     *int                 `json:"timeSpent" validate:"omitempty,min=0"`
	TimeRemaining *int                 `json:"timeRemaining" validate:"omitempty,min=0"`
	ReporterID    string               `json:"reporterId"`
	UserIDs       []string             `json:"userIds"`
}

func (h *IssueHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	issue, err := h.issues.Create(r.Context(), GetUser(r.Context()), domain.Issue{
		ProjectID:     req.ProjectID,
		ParentIssueID: req.ParentIssueID,
		Title:         req.Title,
		Type:          req.Type,
		Status:        req.Status,
		Priority:      req.Priority,
		Description:   req.Description,
		Estimate:      req.Estimate,
		TimeSpent:     req.TimeSpent,
		TimeRemaining: req.TimeRemaining,
		ReporterID:    req.ReporterID,
		UserIDs:       req.UserIDs,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, issue)
}

// updateIssueRequest carries a partial update. Status or listPosition turn
// the update into a move as well. An empty parentIssueId detaches a subtask.
type updateIssueRequest struct {
	Title         *string               `json:"title" validate:"omitempty,min=1,max=200"`
	Type          *domain.IssueType     `json:"type" validate:"omitempty,oneof=Story Task Bug Subtask"`
	Status        *domain.IssueStatus   `json:"status" validate:"omitempty,oneof=Backlog Selected InProgress Done"`
	Priority      *domain.IssuePriority `json:"priority" validate:"omitempty,oneof=Lowest Low Medium High Highest"`
	ListPosition  *int                  `json:"listPosition" validate:"omitempty,min=1"`
	Description   *string               `json:"description"`
	Estimate      *int                  `json:"estimate" validate:"omitempty,min=0"`
	TimeSpent     *int                  `json:"timeSpent" validate:"omitempty,min=0"`
	TimeRemaining *int                  `json:"timeRemaining" validate:"omitempty,min=0"`
	ReporterID    *string               `json:"reporterId" validate:"omitempty,min=1"`
	UserIDs       *[]string             `json:"userIds"`
	ParentIssueID *string               `json:"parentIssueId"`
}

func (h *IssueHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateIssueRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	patch := domain.IssuePatch{
		Title:         req.Title,
		Type:          req.Type,
		Priority:      req.Priority,
		Description:   req.Description,
		Estimate:      req.Estimate,
		TimeSpent:     req.TimeSpent,
		TimeRemaining: req.TimeRemaining,
		ReporterID:    req.ReporterID,
		ParentIssueID: req.ParentIssueID,
	}
	if req.UserIDs != nil {
		patch.UserIDs = *req.UserIDs
		if patch.UserIDs == nil {
			patch.UserIDs = []string{}
		}
	}

	var move *domain.IssueMove
	if req.Status != nil || req.ListPosition != nil {
		move = &domain.IssueMove{}
		if req.Status != nil {
			move.Status = *req.Status
		}
		if req.ListPosition != nil {
			move.ListPosition = *req.ListPosition
		}
	}

	issue, err := h.issues.Update(r.Context(), GetUser(r.Context()), chi.URLParam(r, "id"), patch, move)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, issue)
}

type moveIssueRequest struct {
	Status       domain.IssueStatus `json:"status" validate:"required,oneof=Backlog Selected InProgress Done"`
	ListPosition int                `json:"listPosition" validate:"required,min=1"`
}

// Move places the issue at a 1-based position in a status column.
func (h *IssueHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req moveIssueRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	issue, err := h.issues.Move(r.Context(), GetUser(r.Context()), chi.URLParam(r, "id"), domain.IssueMove{
		Status:       req.Status,
		ListPosition: req.ListPosition,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, issue)
}

type convertToSubtaskRequest struct {
	ParentIssueID string `json:"parentIssueId" validate:"required"`
}

// ConvertToSubtask attaches the issue to a parent as a subtask.
func (h *IssueHandler) ConvertToSubtask(w http.ResponseWriter, r *http.Request) {
	var req convertToSubtaskRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	issue, err := h.issues.ConvertToSubtask(r.Context(), GetUser(r.Context()), chi.URLParam(r, "id"), req.ParentIssueID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, issue)
}

// ConvertToIssue detaches a subtask from its parent.
func (h *IssueHandler) ConvertToIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := h.issues.ConvertToIssue(r.Context(), GetUser(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, issue)
}

func (h *IssueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.issues.Delete(r.Context(), GetUser(r.Context()), chi.URLParam(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeIssues(w http.ResponseWriter, issues []domain.Issue) {
	if issues == nil {
		issues = []domain.Issue{}
	}
	WriteJSON(w, http.StatusOK, issues)
}
