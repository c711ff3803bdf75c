package application

import (
	"context"
	"strconv"
	"time"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/logger"
)

// ExpirySweeper deletes refresh tokens past their expiry.
type ExpirySweeper struct {
	ledger   *service.RefreshTokenLedger
	audit    service.AuditService
	interval time.Duration
	now      func() time.Time
	logger   logger.Logger
	metrics  *monitoring.Metrics
}

// NewExpirySweeper creates a sweeper running every interval. audit and metrics may be nil.
func NewExpirySweeper(ledger *service.RefreshTokenLedger, audit service.AuditService, interval time.Duration, log logger.Logger, metrics *monitoring.Metrics, now func() time.Time) *ExpirySweeper {
	if now == nil {
		now = time.Now
	}
	return &ExpirySweeper{
		ledger:   ledger,
		audit:    audit,
		interval: interval,
		now:      now,
		logger:   log.WithComponent("expiry_sweeper"),
		metrics:  metrics,
	}
}

// RunOnce deletes every refresh token that expired before now.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.ledger.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordSweep(n)
	if n > 0 && s.audit != nil {
		event := models.NewAuditEvent(constants.AuditActionRefreshSwept, true, now).
			WithMetadata("deleted", strconv.FormatInt(n, 10))
		if err := s.audit.Record(ctx, event); err != nil {
			s.logger.Warn(ctx, "failed to record audit event", logger.Err(err))
		}
	}
	return n, nil
}

// Run sweeps every interval until ctx is done.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	s.logger.Info(ctx, "refresh token sweeper started", logger.Duration("interval", s.interval))
	return runEvery(ctx, s.interval, func(ctx context.Context) {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error(ctx, "refresh token sweep failed", err)
		}
	})
}
