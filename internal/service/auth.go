package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	googleOAuth "golang.org/x/oauth2/google"

	"github.com/sumire/tracker/internal/domain"
)

// Password modes.
const (
	// PasswordModePlaceholder accepts the fixed password "password" for any
	// account that has a credential set.
	PasswordModePlaceholder = "placeholder"
	PasswordModeBcrypt      = "bcrypt"
)

const placeholderPassword = "password"

// AuthConfig holds token, password and OAuth configuration.
type AuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string
	JWTSecret          string
	FrontendURL        string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	PasswordMode       string
	BcryptCost         int
}

// AuthService handles authentication logic.
type AuthService struct {
	users        UserStore
	jwtSecret    []byte
	accessTTL    time.Duration
	refreshTTL   time.Duration
	passwordMode string
	bcryptCost   int
	google       *oauth2.Config
	github       *oauth2.Config
	now          func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, cfg AuthConfig) *AuthService {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.PasswordMode == "" {
		cfg.PasswordMode = PasswordModePlaceholder
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.PasswordMode == PasswordModePlaceholder {
		slog.Warn("password check uses the fixed placeholder password; set PASSWORD_MODE=bcrypt to verify stored hashes")
	}

	return &AuthService{
		users:        users,
		jwtSecret:    []byte(cfg.JWTSecret),
		accessTTL:    cfg.AccessTokenTTL,
		refreshTTL:   cfg.RefreshTokenTTL,
		passwordMode: cfg.PasswordMode,
		bcryptCost:   cfg.BcryptCost,
		now:          time.Now,
		google: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     googleOAuth.Endpoint,
			Scopes:       []string{"openid", "profile", "email"},
			RedirectURL:  cfg.FrontendURL + "/auth/google/callback",
		},
		github: &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"user:email"},
			RedirectURL:  cfg.FrontendURL + "/auth/github/callback",
		},
	}
}

// TokenPair holds an access token and refresh token.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// Session is what login and registration return.
type Session struct {
	User *domain.User `json:"user"`
	TokenPair
}

// Login verifies credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := s.verifyPassword(user, password); err != nil {
		return nil, err
	}
	return s.newSession(user)
}

// Register creates an account with the user system role and opens a session.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, domain.ErrEmailInUse
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, domain.User{
		Name:     strings.TrimSpace(name),
		Email:    strings.TrimSpace(email),
		Password: &hash,
		Role:     domain.SystemRoleUser,
	})
	if errors.Is(err, domain.ErrConflict) {
		return nil, domain.ErrEmailInUse
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return s.newSession(user)
}

// ChangePassword checks the current password and stores a new hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.verifyPassword(user, current); err != nil {
		return err
	}

	hash, err := s.hashPassword(next)
	if err != nil {
		return err
	}
	if _, err := s.users.Update(ctx, userID, domain.UserPatch{Password: &hash}); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	return nil
}

func (s *AuthService) verifyPassword(user *domain.User, password string) error {
	if !user.HasCredential() {
		return domain.ErrInvalidCredentials
	}
	switch s.passwordMode {
	case PasswordModeBcrypt:
		if bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(password)) != nil {
			return domain.ErrInvalidCredentials
		}
	default:
		if password != placeholderPassword {
			return domain.ErrInvalidCredentials
		}
	}
	return nil
}

func (s *AuthService) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", &domain.ValidationError{Field: "password", Message: "must be at most 72 bytes"}
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *AuthService) newSession(user *domain.User) (*Session, error) {
	pair, err := s.generateTokenPair(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, TokenPair: *pair}, nil
}

// GoogleEnabled reports whether Google sign-in is configured.
func (s *AuthService) GoogleEnabled() bool {
	return s.google.ClientID != "" && s.google.ClientSecret != ""
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (s *AuthService) GitHubEnabled() bool {
	return s.github.ClientID != "" && s.github.ClientSecret != ""
}

// GoogleAuthURL returns the Google OAuth authorization URL.
func (s *AuthService) GoogleAuthURL(state string) string {
	return s.google.AuthCodeURL(state)
}

// GitHubAuthURL returns the GitHub OAuth authorization URL.
func (s *AuthService) GitHubAuthURL(state string) string {
	return s.github.AuthCodeURL(state)
}

// GoogleCallback exchanges the authorization code and opens a session.
func (s *AuthService) GoogleCallback(ctx context.Context, code string) (*Session, error) {
	token, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google token exchange: %w", err)
	}

	info, err := fetchGoogleUserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch google user info: %w", err)
	}

	user, err := s.findOrCreateOAuthUser(ctx, info.Email, info.Name, info.Picture)
	if err != nil {
		return nil, fmt.Errorf("resolve google user: %w", err)
	}
	return s.newSession(user)
}

// GitHubCallback exchanges the authorization code and opens a session.
func (s *AuthService) GitHubCallback(ctx context.Context, code string) (*Session, error) {
	token, err := s.github.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github token exchange: %w", err)
	}

	info, err := fetchGitHubUserInfo(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch github user info: %w", err)
	}

	name := info.Name
	if name == "" {
		name = info.Login
	}
	user, err := s.findOrCreateOAuthUser(ctx, info.Email, name, info.AvatarURL)
	if err != nil {
		return nil, fmt.Errorf("resolve github user: %w", err)
	}
	return s.newSession(user)
}

// findOrCreateOAuthUser matches an OAuth identity to an account by email.
// New accounts get no password and can only sign in through OAuth until one
// is set.
func (s *AuthService) findOrCreateOAuthUser(ctx context.Context, email, name, avatar string) (*domain.User, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: provider returned no email", domain.ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		if user.AvatarURL == nil && avatar != "" {
			return s.users.Update(ctx, user.ID, domain.UserPatch{AvatarURL: strPtr(avatar)})
		}
		return user, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if name == "" {
		name = email
	}
	return s.users.Create(ctx, domain.User{
		Name:      name,
		Email:     email,
		Role:      domain.SystemRoleUser,
		AvatarURL: strPtr(avatar),
	})
}

// ValidateToken validates a JWT access token and returns the user ID.
func (s *AuthService) ValidateToken(tokenString string) (string, error) {
	return s.parseToken(tokenString, "access")
}

// Authenticate resolves an access token to the current user record.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*domain.User, error) {
	userID, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorized
	}
	return user, err
}

// RefreshAccessToken validates a refresh token and returns a new token pair.
func (s *AuthService) RefreshAccessToken(refreshToken string) (*TokenPair, error) {
	userID, err := s.parseToken(refreshToken, "refresh")
	if err != nil {
		return nil, err
	}
	return s.generateTokenPair(userID)
}

func (s *AuthService) parseToken(tokenString, wantType string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("%w: parse %s token: %v", domain.ErrUnauthorized, wantType, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", domain.ErrUnauthorized
	}

	tokenType, _ := claims["type"].(string)
	if tokenType != wantType {
		return "", domain.ErrUnauthorized
	}

	userID, _ := claims["sub"].(string)
	if userID == "" {
		return "", domain.ErrUnauthorized
	}
	return userID, nil
}

func (s *AuthService) generateTokenPair(userID string) (*TokenPair, error) {
	now := s.now()

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"type": "access",
		"iat":  now.Unix(),
		"exp":  now.Add(s.accessTTL).Unix(),
	})
	accessStr, err := accessToken.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"type": "refresh",
		"iat":  now.Unix(),
		"exp":  now.Add(s.refreshTTL).Unix(),
	})
	refreshStr, err := refreshToken.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessStr,
		RefreshToken: refreshStr,
	}, nil
}

type googleUserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func fetchGoogleUserInfo(ctx context.Context, accessToken string) (*googleUserInfo, error) {
	var info googleUserInfo
	if err := getJSON(ctx, "https://www.googleapis.com/oauth2/v2/userinfo", accessToken, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

type githubUserInfo struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

func fetchGitHubUserInfo(ctx context.Context, accessToken string) (*githubUserInfo, error) {
	var info githubUserInfo
	if err := getJSON(ctx, "https://api.github.com/user", accessToken, &info); err != nil {
		return nil, err
	}

	if info.Email == "" {
		email, err := fetchGitHubPrimaryEmail(ctx, accessToken)
		if err != nil {
			return nil, err
		}
		info.Email = email
	}
	return &info, nil
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func fetchGitHubPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	var emails []githubEmail
	if err := getJSON(ctx, "https://api.github.com/user/emails", accessToken, &emails); err != nil {
		return "", fmt.Errorf("fetch emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, nil
		}
	}
	return "", fmt.Errorf("no verified email found for github user")
}

func getJSON(ctx context.Context, url, accessToken string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
