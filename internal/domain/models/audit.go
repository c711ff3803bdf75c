package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/credcore/pkg/constants"
)

// AuditEvent represents a single security audit record.
type AuditEvent struct {
	ID        string                `json:"id"`
	Action    constants.AuditAction `json:"action"`
	Timestamp time.Time             `json:"timestamp"`
	TraceID   string                `json:"trace_id,omitempty"`
	Subject   string                `json:"subject,omitempty"`
	Success   bool                  `json:"success"`
	Reason    string                `json:"reason,omitempty"`
	Metadata  map[string]string     `json:"metadata,omitempty"`
	Signature string                `json:"signature,omitempty"`
}

// NewAuditEvent creates a new audit event.
func NewAuditEvent(action constants.AuditAction, success bool, at time.Time) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.NewString(),
		Action:    action,
		Timestamp: at.UTC(),
		Success:   success,
	}
}

// WithSubject sets the subject (user id) for the event.
func (e *AuditEvent) WithSubject(subject string) *AuditEvent {
	e.Subject = subject
	return e
}

// WithTraceID sets the trace id for the event.
func (e *AuditEvent) WithTraceID(traceID string) *AuditEvent {
	e.TraceID = traceID
	return e
}

// WithReason sets a machine-readable failure reason.
func (e *AuditEvent) WithReason(reason string) *AuditEvent {
	e.Reason = reason
	return e
}

// WithMetadata adds a metadata entry.
func (e *AuditEvent) WithMetadata(key, value string) *AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
