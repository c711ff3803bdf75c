// Package memory provides in-process implementations of the domain repositories.
// They serve single-instance deployments and tests.
package memory

import (
	"context"
	"sync"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/repository"
	"github.com/turtacn/credcore/pkg/errors"
)

// KeySetStore keeps the KeySet in memory with versioned writes.
type KeySetStore struct {
	mu     sync.RWMutex
	keySet *models.KeySet
}

// NewKeySetStore creates an empty store.
func NewKeySetStore() repository.KeySetRepository {
	return &KeySetStore{}
}

// Load returns a copy of the stored KeySet.
func (s *KeySetStore) Load(ctx context.Context) (*models.KeySet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.keySet == nil {
		return nil, errors.ErrKeySetNotFound
	}
	return s.keySet.Clone(), nil
}

// Save stores a copy of keySet if the current version equals expectedVersion.
func (s *KeySetStore) Save(ctx context.Context, keySet *models.KeySet, expectedVersion int64) error {
	if keySet.Version != expectedVersion+1 {
		return errors.ErrInvalidArgument.WithMessage("key set version must be %d", expectedVersion+1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if s.keySet != nil {
		current = s.keySet.Version
	}
	if current != expectedVersion {
		return errors.ErrConflict.WithMetadata("stored_version", current).WithMetadata("expected_version", expectedVersion)
	}
	s.keySet = keySet.Clone()
	return nil
}
