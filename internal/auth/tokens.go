// Package auth implements accounts and token-based authentication: bcrypt
// password hashing, opaque bearer tokens with a TTL, and the current-user
// lookup the API middleware uses.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/chocolingo/server/internal/platform/cache"
	"github.com/chocolingo/server/internal/quiz"
)

// TokenStore persists issued tokens. Lookup of an unknown or expired token
// fails with quiz.ErrUnauthenticated.
type TokenStore interface {
	Save(ctx context.Context, token string, userID int64, ttl time.Duration) error
	Lookup(ctx context.Context, token string) (int64, error)
	Revoke(ctx context.Context, token string) error
}

// newToken returns a 256-bit random token, hex encoded.
func newToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// MemoryTokenStore is an in-memory TokenStore used in tests and for running
// without Redis.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
	now    func() time.Time
}

type memoryToken struct {
	userID    int64
	expiresAt time.Time
}

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		tokens: make(map[string]memoryToken),
		now:    time.Now,
	}
}

func (s *MemoryTokenStore) Save(_ context.Context, token string, userID int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = memoryToken{userID: userID, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) Lookup(_ context.Context, token string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok || s.now().After(t.expiresAt) {
		delete(s.tokens, token)
		return 0, fmt.Errorf("%w: invalid or expired token", quiz.ErrUnauthenticated)
	}
	return t.userID, nil
}

func (s *MemoryTokenStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

// RedisTokenStore keeps tokens in Redis, with expiry handled by the key TTL.
type RedisTokenStore struct {
	cache *cache.Cache
}

// NewRedisTokenStore creates a Redis-backed token store.
func NewRedisTokenStore(c *cache.Cache) *RedisTokenStore {
	return &RedisTokenStore{cache: c}
}

func tokenKey(token string) string {
	return "auth_token:" + token
}

func (s *RedisTokenStore) Save(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	return s.cache.SetJSON(ctx, tokenKey(token), userID, ttl)
}

func (s *RedisTokenStore) Lookup(ctx context.Context, token string) (int64, error) {
	var userID int64
	ok, err := s.cache.GetJSON(ctx, tokenKey(token), &userID)
	if err != nil {
		return 0, fmt.Errorf("token lookup: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: invalid or expired token", quiz.ErrUnauthenticated)
	}
	return userID, nil
}

func (s *RedisTokenStore) Revoke(ctx context.Context, token string) error {
	return s.cache.Delete(ctx, tokenKey(token))
}
