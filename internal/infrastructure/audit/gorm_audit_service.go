package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
	"gorm.io/gorm"
)

// auditRecord is the stored form of an AuditEvent; metadata is kept as JSON text.
type auditRecord struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	Action    string    `gorm:"size:64;index;not null"`
	Timestamp time.Time `gorm:"index;not null"`
	TraceID   string    `gorm:"size:64"`
	Subject   string    `gorm:"size:255;index"`
	Success   bool      `gorm:"not null"`
	Reason    string    `gorm:"size:255"`
	Metadata  string    `gorm:"type:text"`
	Signature string    `gorm:"size:128"`
}

func (auditRecord) TableName() string { return "audit_events" }

// GormAuditService provides a GORM-backed implementation of the AuditService.
// It stores audit events in a relational database.
type GormAuditService struct {
	db *gorm.DB
}

var _ service.AuditService = (*GormAuditService)(nil)

// NewGormAuditService creates and configures a new GormAuditService.
func NewGormAuditService(db *gorm.DB) *GormAuditService {
	return &GormAuditService{db: db}
}

// Migrate creates the audit_events table.
func (s *GormAuditService) Migrate() error {
	if err := s.db.AutoMigrate(&auditRecord{}); err != nil {
		return errors.Storage("audit_events.migrate", err)
	}
	return nil
}

// Record saves an AuditEvent to the database.
func (s *GormAuditService) Record(ctx context.Context, event *models.AuditEvent) error {
	rec := auditRecord{
		ID:        event.ID,
		Action:    string(event.Action),
		Timestamp: event.Timestamp.UTC(),
		TraceID:   event.TraceID,
		Subject:   event.Subject,
		Success:   event.Success,
		Reason:    event.Reason,
		Signature: event.Signature,
	}
	if len(event.Metadata) > 0 {
		meta, err := json.Marshal(event.Metadata)
		if err != nil {
			return errors.ErrInternal.WithMessage("failed to encode audit metadata").WithCause(err)
		}
		rec.Metadata = string(meta)
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Storage("audit_events.save", err)
	}
	return nil
}

// ListBySubject returns the stored events of subject, newest first.
func (s *GormAuditService) ListBySubject(ctx context.Context, subject string, limit int) ([]*models.AuditEvent, error) {
	var recs []auditRecord
	err := s.db.WithContext(ctx).
		Where("subject = ?", subject).
		Order("timestamp DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, errors.Storage("audit_events.list", err)
	}

	events := make([]*models.AuditEvent, 0, len(recs))
	for _, rec := range recs {
		event := &models.AuditEvent{
			ID:        rec.ID,
			Action:    constants.AuditAction(rec.Action),
			Timestamp: rec.Timestamp.UTC(),
			TraceID:   rec.TraceID,
			Subject:   rec.Subject,
			Success:   rec.Success,
			Reason:    rec.Reason,
			Signature: rec.Signature,
		}
		if rec.Metadata != "" {
			if err := json.Unmarshal([]byte(rec.Metadata), &event.Metadata); err != nil {
				return nil, errors.ErrInternal.WithMessage("stored audit metadata is unreadable").WithCause(err)
			}
		}
		events = append(events, event)
	}
	return events, nil
}
