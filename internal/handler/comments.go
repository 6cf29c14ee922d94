package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sumire/tracker/internal/domain"
	"github.com/sumire/tracker/internal/service"
)

// CommentHandler serves /api/comments.
type CommentHandler struct {
	comments *service.CommentService
}

func NewCommentHandler(comments *service.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	comments, err := h.comments.List(r.Context(), GetUser(r.Context()), r.URL.Query().Get("issueId"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeComments(w, comments)
}

// commentPageSize is the default ?size of paged comment listings.
const commentPageSize = 50

func (h *CommentHandler) ListByIssue(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r, commentPageSize)
	if err != nil {
		WriteError(w, err)
		return
	}
	issueID := chi.URLParam(r, "issueId")
	if page != nil {
		result, err := h.comments.ListByIssuePage(r.Context(), GetUser(r.Context()), issueID, *page)
		if err != nil {
			WriteError(w, err)
			return
		}
		writePage(w, result)
		return
	}

	comments, err := h.comments.ListByIssue(r.Context(), GetUser(r.Context()), issueID)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeComments(w, comments)
}

func (h *CommentHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.comments.Get(r.Context(), GetUser(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, c)
}

type createCommentRequest struct {
	IssueID string `json:"issueId" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	c, err := h.comments.Create(r.Context(), GetUser(r.Context()), req.IssueID, req.Body)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, c)
}

type updateCommentRequest struct {
	IssueID string `json:"issueId"`
	Body    string `json:"body" validate:"required"`
}

// Update edits a comment, or creates it under the URL id when it does not
// exist yet (201).
func (h *CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	c, created, err := h.comments.Update(r.Context(), GetUser(r.Context()), chi.URLParam(r, "id"), req.IssueID, req.Body)
	if err != nil {
		WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, c)
}

func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.comments.Delete(r.Context(), GetUser(r.Context()), chi.URLParam(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeComments(w http.ResponseWriter, comments []domain.Comment) {
	if comments == nil {
		comments = []domain.Comment{}
	}
	WriteJSON(w, http.StatusOK, comments)
}
