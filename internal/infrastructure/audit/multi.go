package audit

import (
	"context"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// Sink is a named AuditService.
type Sink struct {
	Name    string
	Service service.AuditService
}

// MultiAuditService records every event on each sink. A failing sink does not
// stop the others; failures are logged, counted and joined into the result.
type MultiAuditService struct {
	sinks   []Sink
	logger  logger.Logger
	metrics *monitoring.Metrics
}

var _ service.AuditService = (*MultiAuditService)(nil)

// NewMultiAuditService fans out to sinks. metrics may be nil.
func NewMultiAuditService(log logger.Logger, metrics *monitoring.Metrics, sinks ...Sink) *MultiAuditService {
	return &MultiAuditService{
		sinks:   sinks,
		logger:  log.WithComponent("audit"),
		metrics: metrics,
	}
}

// Record fills the trace id from ctx when missing and writes to every sink.
func (m *MultiAuditService) Record(ctx context.Context, event *models.AuditEvent) error {
	if event.TraceID == "" {
		event.TraceID = monitoring.TraceIDFromContext(ctx)
	}

	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Service.Record(ctx, event); err != nil {
			m.logger.Error(ctx, "audit sink failed", err,
				logger.String("sink", sink.Name),
				logger.String("action", string(event.Action)),
			)
			m.metrics.RecordAuditFailure(sink.Name)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
