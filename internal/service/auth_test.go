package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sumire/tracker/internal/domain"
)

func TestAuthService_LoginPlaceholder(t *testing.T) {
	e := newTestEnv(t)
	u := e.user(t, "alice", domain.SystemRoleUser)
	ctx := context.Background()

	if _, err := e.mem.Users().Create(ctx, domain.User{Name: "oauth", Email: "oauth@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"placeholder accepted", u.Email, "password", nil},
		{"email is case insensitive", "ALICE@example.com", "password", nil},
		{"real password ignored", u.Email, "secret", domain.ErrInvalidCredentials},
		{"unknown email", "nobody@example.com", "password", domain.ErrInvalidCredentials},
		{"no credential set", "oauth@example.com", "password", domain.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := e.auth.Login(ctx, tt.email, tt.password)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if sess.User.ID != u.ID {
				t.Errorf("Login() user = %s, want %s", sess.User.ID, u.ID)
			}
			if sess.AccessToken == "" || sess.RefreshToken == "" {
				t.Error("Login() returned empty tokens")
			}
		})
	}
}

func TestAuthService_LoginBcrypt(t *testing.T) {
	e := newTestEnvWithAuth(t, AuthConfig{PasswordMode: PasswordModeBcrypt})
	u := e.user(t, "alice", domain.SystemRoleUser)
	ctx := context.Background()

	if _, err := e.auth.Login(ctx, u.Email, "secret"); err != nil {
		t.Fatalf("Login(secret) error = %v", err)
	}
	if _, err := e.auth.Login(ctx, u.Email, "password"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("Login(password) error = %v, want ErrInvalidCredentials", err)
	}

	if err := e.auth.ChangePassword(ctx, u.ID, "wrong", "next-secret"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("ChangePassword(wrong) error = %v", err)
	}
	if err := e.auth.ChangePassword(ctx, u.ID, "secret", "next-secret"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := e.auth.Login(ctx, u.Email, "next-secret"); err != nil {
		t.Fatalf("Login(next-secret) error = %v", err)
	}
}

func TestAuthService_Register(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	sess, err := e.auth.Register(ctx, " Bob ", "bob@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if sess.User.Name != "Bob" || sess.User.Role != domain.SystemRoleUser {
		t.Errorf("Register() user = %+v", sess.User)
	}
	if sess.User.Password == nil || *sess.User.Password == "hunter22" {
		t.Error("Register() stored the password unhashed")
	}

	got, err := e.auth.Authenticate(ctx, sess.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if got.ID != sess.User.ID {
		t.Errorf("Authenticate() = %s, want %s", got.ID, sess.User.ID)
	}

	_, err = e.auth.Register(ctx, "Other", "BOB@example.com", "hunter22")
	if !errors.Is(err, domain.ErrEmailInUse) || !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Register(duplicate) error = %v, want ErrEmailInUse", err)
	}
}

func TestAuthService_Tokens(t *testing.T) {
	e := newTestEnv(t)
	u := e.user(t, "alice", domain.SystemRoleUser)
	ctx := context.Background()

	sess, err := e.auth.Login(ctx, u.Email, "password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	t.Run("refresh token is not an access token", func(t *testing.T) {
		if _, err := e.auth.ValidateToken(sess.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("ValidateToken(refresh) error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("access token cannot refresh", func(t *testing.T) {
		if _, err := e.auth.RefreshAccessToken(sess.AccessToken); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("RefreshAccessToken(access) error = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("refresh issues a working pair", func(t *testing.T) {
		pair, err := e.auth.RefreshAccessToken(sess.RefreshToken)
		if err != nil {
			t.Fatalf("RefreshAccessToken() error = %v", err)
		}
		id, err := e.auth.ValidateToken(pair.AccessToken)
		if err != nil || id != u.ID {
			t.Errorf("ValidateToken() = %q, %v", id, err)
		}
	})

	t.Run("tampered token", func(t *testing.T) {
		if _, err := e.auth.ValidateToken(sess.AccessToken + "x"); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("ValidateToken(tampered) error = %v", err)
		}
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewAuthService(e.mem.Users(), AuthConfig{JWTSecret: "another-secret-0123456789"})
		if _, err := other.ValidateToken(sess.AccessToken); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("ValidateToken(other secret) error = %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		e.auth.now = func() time.Time { return time.Now().Add(-time.Hour) }
		old, err := e.auth.generateTokenPair(u.ID)
		e.auth.now = time.Now
		if err != nil {
			t.Fatalf("generateTokenPair() error = %v", err)
		}
		if _, err := e.auth.ValidateToken(old.AccessToken); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("ValidateToken(expired) error = %v", err)
		}
	})

	t.Run("deleted user", func(t *testing.T) {
		gone := e.user(t, "gone", domain.SystemRoleUser)
		pair, err := e.auth.generateTokenPair(gone.ID)
		if err != nil {
			t.Fatalf("generateTokenPair() error = %v", err)
		}
		if err := e.mem.Users().Delete(ctx, gone.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := e.auth.Authenticate(ctx, pair.AccessToken); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("Authenticate(deleted) error = %v", err)
		}
	})
}

func TestAuthService_PasswordByteLimit(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	long := strings.Repeat("é", 40)

	var verr *domain.ValidationError
	if _, err := e.auth.Register(ctx, "Eve", "eve@example.com", long); !errors.As(err, &verr) || verr.Field != "password" {
		t.Fatalf("Register(80-byte password) error = %v, want password ValidationError", err)
	}
	if _, err := e.mem.Users().FindByEmail(ctx, "eve@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("user stored despite rejected password: %v", err)
	}

	u := e.user(t, "frank", domain.SystemRoleUser)
	if err := e.auth.ChangePassword(ctx, u.ID, "password", long); !errors.As(err, &verr) {
		t.Errorf("ChangePassword(80-byte password) error = %v, want ValidationError", err)
	}
}
