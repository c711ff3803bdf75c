package kms

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/infrastructure/crypto"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// GeneratedKeySource creates a fresh single-key RS256 KeySet on first Load and
// returns the same set afterwards. Used for local runs without configured keys.
type GeneratedKeySource struct {
	bits  int
	grace int64
	now   func() time.Time

	once   sync.Once
	keySet *models.KeySet
	err    error
}

// NewGeneratedKeySource creates a source generating a key of the given size.
func NewGeneratedKeySource(bits int, graceSeconds int64) *GeneratedKeySource {
	return &GeneratedKeySource{bits: bits, grace: graceSeconds, now: time.Now}
}

// Load returns a copy of the generated KeySet.
func (s *GeneratedKeySource) Load(ctx context.Context) (*models.KeySet, error) {
	s.once.Do(func() {
		material, err := crypto.GenerateRSAKeyPEM(s.bits)
		if err != nil {
			s.err = errors.ErrInternal.WithMessage("failed to generate signing key").WithCause(err)
			return
		}
		kid := uuid.NewString()
		s.keySet = &models.KeySet{
			Keys: map[string]models.SigningKey{
				kid: {Kid: kid, Algorithm: constants.AlgRS256, Material: material, CreatedAt: s.now().UTC()},
			},
			ActiveKid:          kid,
			GracePeriodSeconds: s.grace,
		}
	})
	if s.err != nil {
		return nil, s.err
	}
	return s.keySet.Clone(), nil
}
