package application

import (
	"context"
	"time"

	"github.com/turtacn/credcore/internal/domain/repository"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/crypto"
	"github.com/turtacn/credcore/pkg/logger"
)

// RotationScheduler runs the rotation check. RunOnce is the synchronous core;
// Run drives it from a ticker.
type RotationScheduler struct {
	repo      repository.KeySetRepository
	holder    *crypto.KeyringHolder
	engine    service.RotationEngine
	applier   *RotationApplier
	publisher *JWKSPublisher
	interval  time.Duration
	now       func() time.Time
	logger    logger.Logger
}

// NewRotationScheduler creates a scheduler checking every interval.
func NewRotationScheduler(
	repo repository.KeySetRepository,
	holder *crypto.KeyringHolder,
	applier *RotationApplier,
	publisher *JWKSPublisher,
	interval time.Duration,
	log logger.Logger,
	now func() time.Time,
) *RotationScheduler {
	if now == nil {
		now = time.Now
	}
	return &RotationScheduler{
		repo:      repo,
		holder:    holder,
		engine:    service.NewRotationEngine(),
		applier:   applier,
		publisher: publisher,
		interval:  interval,
		now:       now,
		logger:    log.WithComponent("rotation_scheduler"),
	}
}

// RunOnce loads the stored KeySet, adopts it if another instance moved it
// forward, then decides and applies a rotation.
func (s *RotationScheduler) RunOnce(ctx context.Context) (ApplyResult, error) {
	ks, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to load key set", err)
		return ApplyResult{}, err
	}

	if current := s.holder.Current(); current == nil || current.Version() != ks.Version {
		if err := s.holder.Swap(ks); err != nil {
			s.logger.Error(ctx, "stored key set could not be loaded into the keyring", err)
			return ApplyResult{}, err
		}
		if err := s.publisher.Invalidate(ctx); err != nil {
			s.logger.Warn(ctx, "JWKS cache invalidation failed after key set reload", logger.Err(err))
		}
		s.logger.Info(ctx, "adopted stored key set", logger.Int64("version", ks.Version), logger.String("active_kid", ks.ActiveKid))
	}

	now := s.now()
	decision := s.engine.Decide(ks, now)
	return s.applier.Apply(ctx, ks, decision, now)
}

// Run calls RunOnce every interval until ctx is done. Errors are logged and
// the loop continues.
func (s *RotationScheduler) Run(ctx context.Context) error {
	s.logger.Info(ctx, "rotation scheduler started", logger.Duration("interval", s.interval))
	return runEvery(ctx, s.interval, func(ctx context.Context) {
		_, _ = s.RunOnce(ctx)
	})
}

// runEvery runs fn immediately and then on every tick until ctx is done.
func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}
