// Package audit implements the AuditService sinks: structured log, Kafka and
// database, plus an HMAC-signing decorator and a fan-out.
package audit

import (
	"context"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/pkg/logger"
)

// LogAuditService writes audit events to the structured log.
type LogAuditService struct {
	logger logger.Logger
}

// NewLogAuditService creates a log-backed AuditService.
func NewLogAuditService(log logger.Logger) service.AuditService {
	return &LogAuditService{logger: log.WithComponent("audit")}
}

// Record logs the event at info level.
func (s *LogAuditService) Record(ctx context.Context, event *models.AuditEvent) error {
	fields := []logger.Field{
		logger.String("event_id", event.ID),
		logger.String("action", string(event.Action)),
		logger.Time("event_time", event.Timestamp),
		logger.Bool("success", event.Success),
	}
	if event.Subject != "" {
		fields = append(fields, logger.String("subject", event.Subject))
	}
	if event.TraceID != "" {
		fields = append(fields, logger.String("trace_id", event.TraceID))
	}
	if event.Reason != "" {
		fields = append(fields, logger.String("reason", event.Reason))
	}
	for k, v := range event.Metadata {
		fields = append(fields, logger.String("meta."+k, v))
	}
	if event.Signature != "" {
		fields = append(fields, logger.String("sig", event.Signature))
	}
	s.logger.Info(ctx, "audit event", fields...)
	return nil
}
