package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/chocolingo/server/internal/quiz"
)

const minPasswordLength = 8

// Store is the slice of user persistence the auth service needs. Satisfied by
// quiz.Store implementations.
type Store interface {
	CreateUser(ctx context.Context, u *quiz.User) error
	GetUser(ctx context.Context, id int64) (*quiz.User, error)
	GetUserByUsername(ctx context.Context, username string) (*quiz.User, error)
}

// ServiceConfig holds dependencies for the auth service.
type ServiceConfig struct {
	Store    Store
	Tokens   TokenStore
	TokenTTL time.Duration
}

// Service implements registration, login, and bearer-token resolution.
type Service struct {
	store    Store
	tokens   TokenStore
	tokenTTL time.Duration
}

// NewService creates an auth service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	return &Service{
		store:    cfg.Store,
		tokens:   tokens,
		tokenTTL: ttl,
	}
}

// Register creates a student account with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, username, email, password string) (*quiz.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", quiz.ErrBadRequest)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", quiz.ErrBadRequest)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", quiz.ErrBadRequest, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &quiz.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         quiz.RoleStudent,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login verifies credentials and issues an opaque bearer token. Unknown
// usernames and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, username, password string) (string, *quiz.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, quiz.ErrNotFound) {
		return "", nil, fmt.Errorf("%w: invalid username or password", quiz.ErrUnauthenticated)
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, fmt.Errorf("%w: invalid username or password", quiz.ErrUnauthenticated)
	}

	token, err := newToken()
	if err != nil {
		return "", nil, err
	}
	if err := s.tokens.Save(ctx, token, user.ID, s.tokenTTL); err != nil {
		return "", nil, fmt.Errorf("save token: %w", err)
	}

	slog.Info("user logged in", "user_id", user.ID)
	return token, user, nil
}

// CurrentUser resolves a bearer token to its account.
func (s *Service) CurrentUser(ctx context.Context, token string) (*quiz.User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", quiz.ErrUnauthenticated)
	}
	userID, err := s.tokens.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, quiz.ErrNotFound) {
		// Account deleted after the token was issued.
		return nil, fmt.Errorf("%w: unknown account", quiz.ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap admin account if no account with the
// username exists yet. An existing account keeps its current role and
// password.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) error {
	_, err := s.store.GetUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, quiz.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	admin := &quiz.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         quiz.RoleAdmin,
	}
	if err := s.store.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	slog.Info("bootstrap admin created", "user_id", admin.ID, "username", username)
	return nil
}

// Logout revokes a token. Revoking an unknown token is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}
