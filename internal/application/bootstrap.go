package application

import (
	"context"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/repository"
	"github.com/turtacn/credcore/internal/infrastructure/kms"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// BootstrapKeySet returns the stored KeySet. When none is stored yet it is
// seeded from source at version 1; if another instance seeds first, that
// instance's KeySet wins.
func BootstrapKeySet(ctx context.Context, repo repository.KeySetRepository, source kms.KeySource, log logger.Logger) (*models.KeySet, error) {
	ks, err := repo.Load(ctx)
	if err == nil {
		log.Info(ctx, "loaded stored key set", logger.Int64("version", ks.Version), logger.String("active_kid", ks.ActiveKid))
		return ks, nil
	}
	if !errors.Is(err, errors.ErrKeySetNotFound) {
		return nil, err
	}

	seed, err := source.Load(ctx)
	if err != nil {
		return nil, err
	}
	seed.Version = 1
	if err := repo.Save(ctx, seed, 0); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			log.Info(ctx, "key set was seeded concurrently, loading it")
			return repo.Load(ctx)
		}
		return nil, err
	}
	log.Info(ctx, "seeded key set", logger.String("active_kid", seed.ActiveKid), logger.Strings("kids", seed.Kids()))
	return seed, nil
}
