package memory

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/repository"
	"github.com/turtacn/credcore/pkg/errors"
)

// RefreshTokenStore keeps refresh token rows in memory, indexed by hash.
type RefreshTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]models.RefreshToken
}

// NewRefreshTokenStore creates an empty store.
func NewRefreshTokenStore() repository.RefreshTokenRepository {
	return &RefreshTokenStore{tokens: make(map[string]models.RefreshToken)}
}

// Save inserts token; an existing hash is a conflict.
func (s *RefreshTokenStore) Save(ctx context.Context, token *models.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.JTIHash]; exists {
		return errors.ErrConflict.WithMessage("refresh token hash already exists")
	}
	s.tokens[token.JTIHash] = *token
	return nil
}

// GetByJTIHash returns a copy of the row.
func (s *RefreshTokenStore) GetByJTIHash(ctx context.Context, jtiHash string) (*models.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[jtiHash]
	if !ok {
		return nil, errors.ErrRefreshTokenNotFound
	}
	return &t, nil
}

// Revoke sets the revoked flag.
func (s *RefreshTokenStore) Revoke(ctx context.Context, jtiHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[jtiHash]
	if !ok {
		return errors.ErrRefreshTokenNotFound
	}
	t.Revoked = true
	s.tokens[jtiHash] = t
	return nil
}

// DeleteExpired removes rows that expired strictly before before.
func (s *RefreshTokenStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, t := range s.tokens {
		if t.ExpiresAt.Before(before) {
			delete(s.tokens, hash)
			n++
		}
	}
	return n, nil
}
