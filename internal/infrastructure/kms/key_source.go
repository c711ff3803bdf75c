// Package kms loads signing key material from external key stores.
package kms

import (
	"context"

	"github.com/turtacn/credcore/internal/domain/models"
)

// KeySource supplies the initial KeySet used to seed the KeySet repository.
type KeySource interface {
	Load(ctx context.Context) (*models.KeySet, error)
}

// StaticKeySource serves a KeySet built from configuration.
type StaticKeySource struct {
	keySet *models.KeySet
}

// NewStaticKeySource creates a source returning copies of keySet.
func NewStaticKeySource(keySet *models.KeySet) *StaticKeySource {
	return &StaticKeySource{keySet: keySet}
}

// Load returns a copy of the configured KeySet.
func (s *StaticKeySource) Load(ctx context.Context) (*models.KeySet, error) {
	if err := s.keySet.Validate(); err != nil {
		return nil, err
	}
	return s.keySet.Clone(), nil
}
