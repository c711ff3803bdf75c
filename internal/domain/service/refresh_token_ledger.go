package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/repository"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// HashJTI returns the SHA-256 hex digest of a raw refresh token value.
func HashJTI(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RefreshTokenLedger owns refresh token records. It stores only hashes and
// passes storage errors through unchanged.
type RefreshTokenLedger struct {
	repo repository.RefreshTokenRepository
	log  logger.Logger
	now  func() time.Time
}

// LedgerOption configures a RefreshTokenLedger.
type LedgerOption func(*RefreshTokenLedger)

// WithLedgerClock overrides the ledger's time source.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *RefreshTokenLedger) { l.now = now }
}

// NewRefreshTokenLedger creates a ledger over repo.
func NewRefreshTokenLedger(repo repository.RefreshTokenRepository, log logger.Logger, opts ...LedgerOption) *RefreshTokenLedger {
	l := &RefreshTokenLedger{
		repo: repo,
		log:  log.WithComponent("refresh_token_ledger"),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Save persists token. A hash collision is reported as ErrConflict and logged as
// an entropy failure; it must not be retried.
func (l *RefreshTokenLedger) Save(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	if token == nil || len(token.JTIHash) != sha256.Size*2 || token.UserID == "" {
		return nil, errors.ErrInvalidArgument.WithMessage("refresh token requires a sha-256 hash and a user id")
	}
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = l.now().UTC()
	}
	if err := l.repo.Save(ctx, token); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			l.log.Error(ctx, "refresh token hash collision, entropy source may be broken", err,
				logger.String("user_id", token.UserID))
		}
		return nil, err
	}
	return token, nil
}

// GetByJTIHash looks a token up by its hash.
func (l *RefreshTokenLedger) GetByJTIHash(ctx context.Context, jtiHash string) (*models.RefreshToken, error) {
	return l.repo.GetByJTIHash(ctx, jtiHash)
}

// Revoke marks the token revoked. Revoking twice is not an error.
func (l *RefreshTokenLedger) Revoke(ctx context.Context, jtiHash string) error {
	return l.repo.Revoke(ctx, jtiHash)
}

// DeleteExpired removes rows whose expiry is strictly before before.
func (l *RefreshTokenLedger) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	n, err := l.repo.DeleteExpired(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.log.Info(ctx, "expired refresh tokens deleted", logger.Int64("count", n))
	}
	return n, nil
}

// CreateFromJTI hashes a raw jti and saves the resulting record.
func (l *RefreshTokenLedger) CreateFromJTI(ctx context.Context, jti, userID string, ttl time.Duration) (*models.RefreshToken, error) {
	if ttl <= 0 {
		return nil, errors.ErrInvalidArgument.WithMessage("refresh token ttl must be positive")
	}
	now := l.now().UTC()
	return l.Save(ctx, &models.RefreshToken{
		JTIHash:   HashJTI(jti),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
}
