package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/sumire/tracker/internal/domain"
)

// maxBodyBytes bounds request bodies; rich text may carry inline images.
const maxBodyBytes = 32 << 20

// Envelope wraps error responses. Successful responses carry the resource
// itself.
type Envelope struct {
	Error *APIError `json:"error"`
}

// ListEnvelope wraps one page of a listing requested with ?page.
type ListEnvelope struct {
	Data any            `json:"data"`
	Meta PaginationMeta `json:"meta"`
}

// PaginationMeta holds page-number pagination info.
type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"hasNext"`
}

// APIError represents an error in the API response.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// WriteJSON writes v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// JSONList writes a paginated list response.
func JSONList(w http.ResponseWriter, status int, data any, meta PaginationMeta) {
	WriteJSON(w, status, ListEnvelope{Data: data, Meta: meta})
}

func writePage[T any](w http.ResponseWriter, page domain.Page[T]) {
	JSONList(w, http.StatusOK, page.Items, PaginationMeta{
		Page:    page.Number,
		Limit:   page.Size,
		Total:   page.Total,
		HasNext: page.HasNext(),
	})
}

const maxPageSize = 100

// parsePage reads ?page (1-based) and ?size. It returns nil when the request
// does not ask for a page, in which case the whole listing is returned.
func parsePage(r *http.Request, defaultSize int) (*domain.PageRequest, error) {
	q := r.URL.Query()
	if !q.Has("page") {
		return nil, nil
	}
	number, err := strconv.Atoi(q.Get("page"))
	if err != nil || number < 1 {
		return nil, &domain.ValidationError{Field: "page", Message: "must be a positive integer"}
	}
	size := defaultSize
	if v := q.Get("size"); v != "" {
		size, err = strconv.Atoi(v)
		if err != nil || size < 1 || size > maxPageSize {
			return nil, &domain.ValidationError{Field: "size", Message: "must be between 1 and " + strconv.Itoa(maxPageSize)}
		}
	}
	return &domain.PageRequest{Number: number, Size: size}, nil
}

// WriteError translates err into a status code and error envelope.
func WriteError(w http.ResponseWriter, err error) {
	status, apiErr := mapError(err)
	WriteJSON(w, status, Envelope{Error: &apiErr})
}

func mapError(err error) (int, APIError) {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, APIError{
			Code:    "validation_error",
			Message: "Validation failed",
			Details: []FieldError{
				{Field: validationErr.Field, Message: validationErr.Message},
			},
		}
	case errors.Is(err, domain.ErrLastAdmin):
		return http.StatusBadRequest, APIError{
			Code:    "last_admin",
			Message: "A project must keep at least one admin",
		}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, APIError{
			Code:    "invalid_credentials",
			Message: "Invalid email or password",
		}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "The requested resource was not found",
		}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, APIError{
			Code:    "unauthorized",
			Message: "Authentication is required",
		}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, APIError{
			Code:    "forbidden",
			Message: "You do not have permission to perform this action",
		}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, APIError{
			Code:    "invalid_input",
			Message: err.Error(),
		}
	case errors.Is(err, domain.ErrEmailInUse):
		return http.StatusConflict, APIError{
			Code:    "conflict",
			Message: "Email already in use",
		}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, APIError{
			Code:    "conflict",
			Message: "The resource already exists or conflicts with current state",
		}
	default:
		slog.Error("unhandled error", "error", err)
		return http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "An unexpected error occurred",
		}
	}
}

// decodeJSON reads the request body into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &domain.ValidationError{Field: "body", Message: "is required"}
		}
		return &domain.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return validate.Validate(dst)
}
