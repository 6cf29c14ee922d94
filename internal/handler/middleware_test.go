package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sumire/tracker/internal/domain"
)

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	expectErrorCode(t, rec, http.StatusInternalServerError, "internal_error")
}

func TestRequestIDPropagates(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "abc" || rec.Header().Get("X-Request-ID") != "abc" {
		t.Errorf("request id = %q / %q, want abc", seen, rec.Header().Get("X-Request-ID"))
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&domain.ValidationError{Field: "title", Message: "is required"}, http.StatusBadRequest, "validation_error"},
		{fmt.Errorf("wrap: %w", domain.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{domain.ErrLastAdmin, http.StatusBadRequest, "last_admin"},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{fmt.Errorf("%w: viewer", domain.ErrForbidden), http.StatusForbidden, "forbidden"},
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{domain.ErrEmailInUse, http.StatusConflict, "conflict"},
		{domain.ErrConflict, http.StatusConflict, "conflict"},
		{errors.New("db down"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.err.Error(), func(t *testing.T) {
			status, apiErr := mapError(tt.err)
			if status != tt.status || apiErr.Code != tt.code {
				t.Errorf("mapError(%v) = %d %s, want %d %s", tt.err, status, apiErr.Code, tt.status, tt.code)
			}
		})
	}
}

type authenticatorFunc func(ctx context.Context, token string) (*domain.User, error)

func (f authenticatorFunc) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	return f(ctx, token)
}

func TestAuthenticate(t *testing.T) {
	alice := &domain.User{ID: "u-1", Name: "alice"}
	tests := []struct {
		name     string
		header   string
		result   error
		wantCode int
		wantUser string
	}{
		{name: "no header", wantCode: http.StatusOK},
		{name: "valid token", header: "Bearer good", wantCode: http.StatusOK, wantUser: "u-1"},
		{name: "rejected token", header: "Bearer bad", result: fmt.Errorf("%w: expired", domain.ErrUnauthorized), wantCode: http.StatusOK},
		{name: "store failure", header: "Bearer good", result: errors.New("connection refused"), wantCode: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := authenticatorFunc(func(context.Context, string) (*domain.User, error) {
				if tt.result != nil {
					return nil, tt.result
				}
				return alice, nil
			})
			var seen string
			reached := false
			h := Authenticate(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				if u := GetUser(r.Context()); u != nil {
					seen = u.ID
				}
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if reached != (tt.wantCode == http.StatusOK) {
				t.Errorf("next handler reached = %v", reached)
			}
			if seen != tt.wantUser {
				t.Errorf("user = %q, want %q", seen, tt.wantUser)
			}
		})
	}
}
