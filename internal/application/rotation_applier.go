package application

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/repository"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/crypto"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// ApplyResult describes what applying a RotationDecision changed.
type ApplyResult struct {
	Decision          models.RotationDecision
	Applied           bool
	PreviousActiveKid string
	ActiveKid         string
	PurgedKids        []string
	Version           int64
}

// RotationApplier performs the side effects of a RotationDecision: persist the
// next KeySet, publish it to the KeyringHolder, then invalidate the JWKS cache.
type RotationApplier struct {
	repo      repository.KeySetRepository
	holder    *crypto.KeyringHolder
	publisher *JWKSPublisher
	audit     service.AuditService
	logger    logger.Logger
	metrics   *monitoring.Metrics
}

// NewRotationApplier creates a RotationApplier. audit and metrics may be nil.
func NewRotationApplier(
	repo repository.KeySetRepository,
	holder *crypto.KeyringHolder,
	publisher *JWKSPublisher,
	audit service.AuditService,
	log logger.Logger,
	metrics *monitoring.Metrics,
) *RotationApplier {
	return &RotationApplier{
		repo:      repo,
		holder:    holder,
		publisher: publisher,
		audit:     audit,
		logger:    log.WithComponent("rotation_applier"),
		metrics:   metrics,
	}
}

// Apply executes decision against snapshot. An inconsistent decision changes
// nothing. Retired keys are purged once their grace has elapsed; the active key
// is never purged. The KeySet is persisted before the cache is invalidated, and
// an invalidation failure does not undo the persisted rotation.
func (a *RotationApplier) Apply(ctx context.Context, snapshot *models.KeySet, decision models.RotationDecision, now time.Time) (ApplyResult, error) {
	result := ApplyResult{Decision: decision}
	if snapshot == nil || decision.Inconsistent {
		kid := ""
		if snapshot != nil {
			kid = snapshot.ActiveKid
			result.Version = snapshot.Version
		}
		a.logger.Error(ctx, "CRITICAL: active key id does not resolve in the key set, rotation skipped",
			errors.ErrKeySetInconsistent, logger.String("active_kid", kid))
		a.metrics.RecordRotation("inconsistent")
		a.record(ctx, models.NewAuditEvent(constants.AuditActionRotationInconsistent, false, now).
			WithReason(string(errors.CodeKeySetInconsistent)).
			WithMetadata("active_kid", kid))
		return result, nil
	}

	result.PreviousActiveKid = snapshot.ActiveKid
	result.ActiveKid = snapshot.ActiveKid
	result.Version = snapshot.Version

	if decision.ActiveOverdueWithoutSuccessor {
		a.logger.Error(ctx, "ALERT: active signing key is past retirement and no successor is configured",
			errors.ErrSigningKeyUnavailable.WithMessage("no successor for overdue active key"),
			logger.String("active_kid", snapshot.ActiveKid))
		a.metrics.RecordRotation("stalled")
		a.record(ctx, models.NewAuditEvent(constants.AuditActionRotationStalled, false, now).
			WithReason("no_successor").
			WithMetadata("active_kid", snapshot.ActiveKid))
	}

	next := snapshot.Clone()
	if decision.Promotes() {
		next.ActiveKid = decision.NewActiveKid
		next.NextKid = ""
	}
	purged := make([]string, 0)
	for _, kid := range decision.KeysToRetire {
		if kid == next.ActiveKid || kid == next.NextKid {
			continue
		}
		key, ok := next.Keys[kid]
		if !ok || key.UsableAt(now, next.Grace()) {
			continue
		}
		delete(next.Keys, kid)
		purged = append(purged, kid)
	}

	if !decision.Promotes() && len(purged) == 0 {
		a.metrics.RecordRotation("noop")
		return result, nil
	}

	next.Version = snapshot.Version + 1
	if err := a.repo.Save(ctx, next, snapshot.Version); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			a.logger.Warn(ctx, "key set changed concurrently, rotation will be re-evaluated",
				logger.Int64("expected_version", snapshot.Version))
			a.metrics.RecordRotation("conflict")
		} else {
			a.logger.Error(ctx, "failed to persist rotated key set", err)
			a.metrics.RecordRotation("error")
		}
		return result, err
	}

	if err := a.holder.Swap(next); err != nil {
		a.logger.Error(ctx, "persisted key set could not be loaded into the keyring", err,
			logger.Int64("version", next.Version))
		a.metrics.RecordRotation("error")
		return result, err
	}

	if err := a.publisher.Invalidate(ctx); err != nil {
		a.logger.Error(ctx, "JWKS cache invalidation failed after rotation; stale for at most one cache TTL", err,
			logger.Duration("cache_ttl", a.publisher.CacheTTL()))
		a.metrics.RecordJWKSInvalidationFailure()
	}

	result.Applied = true
	result.ActiveKid = next.ActiveKid
	result.PurgedKids = purged
	result.Version = next.Version

	a.logger.Info(ctx, "key rotation applied",
		logger.String("previous_active_kid", result.PreviousActiveKid),
		logger.String("active_kid", result.ActiveKid),
		logger.Strings("purged_kids", purged),
		logger.Int64("version", next.Version),
	)
	a.metrics.RecordRotation("applied")
	a.record(ctx, models.NewAuditEvent(constants.AuditActionRotationApplied, true, now).
		WithMetadata("previous_active_kid", result.PreviousActiveKid).
		WithMetadata("active_kid", result.ActiveKid).
		WithMetadata("purged_kids", strings.Join(purged, ",")))
	return result, nil
}

func (a *RotationApplier) record(ctx context.Context, event *models.AuditEvent) {
	if a.audit == nil {
		return
	}
	if err := a.audit.Record(ctx, event); err != nil {
		a.logger.Warn(ctx, "failed to record audit event", logger.Err(err), logger.String("action", string(event.Action)))
	}
}
