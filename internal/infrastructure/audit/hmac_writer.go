package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/pkg/errors"
)

// SignAuditEvent calculates the HMAC-SHA256 signature for an audit event. The
// Signature field itself is excluded from the signed bytes.
func SignAuditEvent(event models.AuditEvent, secretKey []byte) (string, error) {
	event.Signature = ""
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	h := hmac.New(sha256.New, secretKey)
	h.Write(eventBytes)
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// VerifyAuditEvent reports whether event carries a valid signature for secretKey.
func VerifyAuditEvent(event models.AuditEvent, secretKey []byte) bool {
	expected, err := SignAuditEvent(event, secretKey)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(event.Signature))
}

// SignedAuditService signs each event before handing it to the next service.
type SignedAuditService struct {
	next service.AuditService
	key  []byte
}

var _ service.AuditService = (*SignedAuditService)(nil)

// NewSignedAuditService wraps next with HMAC signing under key.
func NewSignedAuditService(next service.AuditService, key []byte) (*SignedAuditService, error) {
	if len(key) == 0 {
		return nil, errors.ErrInvalidArgument.WithMessage("audit hmac key is required")
	}
	return &SignedAuditService{next: next, key: key}, nil
}

// Record signs event in place and forwards it.
func (s *SignedAuditService) Record(ctx context.Context, event *models.AuditEvent) error {
	sig, err := SignAuditEvent(*event, s.key)
	if err != nil {
		return errors.ErrInternal.WithMessage("failed to sign audit event").WithCause(err)
	}
	event.Signature = sig
	return s.next.Record(ctx, event)
}
