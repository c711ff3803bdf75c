package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/repository"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

const refreshTokensDDL = `
	CREATE TABLE IF NOT EXISTS refresh_tokens (
		id          VARCHAR(36) PRIMARY KEY,
		jti_hash    VARCHAR(64) NOT NULL UNIQUE,
		user_id     TEXT        NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL,
		revoked     BOOLEAN     NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id ON refresh_tokens (user_id);
	CREATE INDEX IF NOT EXISTS idx_refresh_tokens_expires_at ON refresh_tokens (expires_at);
`

// slowQueryThreshold is the latency above which a query is logged as slow.
const slowQueryThreshold = 100 * time.Millisecond

// RefreshTokenRepositoryPgx implements RefreshTokenRepository with raw SQL on pgx.
// The table layout matches the gorm model so both implementations share a schema.
type RefreshTokenRepositoryPgx struct {
	db     *DBConnection
	logger logger.Logger
}

// NewRefreshTokenRepositoryPgx creates a pgx-backed RefreshTokenRepository.
func NewRefreshTokenRepositoryPgx(db *DBConnection, log logger.Logger) repository.RefreshTokenRepository {
	return &RefreshTokenRepositoryPgx{
		db:     db,
		logger: log.WithComponent("refresh_token_repo"),
	}
}

// EnsureRefreshTokenSchema creates the refresh_tokens table when it is missing.
func EnsureRefreshTokenSchema(ctx context.Context, db *DBConnection) error {
	if _, err := db.Pool().Exec(ctx, refreshTokensDDL); err != nil {
		return errors.Storage("refresh_tokens.migrate", err)
	}
	return nil
}

// Save inserts a new row. A duplicate hash is reported as ErrConflict.
func (r *RefreshTokenRepositoryPgx) Save(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, jti_hash, user_id, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	defer r.warnIfSlow(ctx, "save", time.Now())

	_, err := r.db.Pool().Exec(ctx, query,
		token.ID,
		token.JTIHash,
		token.UserID,
		token.ExpiresAt.UTC(),
		token.Revoked,
		token.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrConflict.WithMessage("refresh token hash already exists")
		}
		r.logger.Error(ctx, "failed to save refresh token", err, logger.String("user_id", token.UserID))
		return errors.Storage("refresh_tokens.save", err)
	}
	return nil
}

// GetByJTIHash returns the row for jtiHash or ErrRefreshTokenNotFound.
func (r *RefreshTokenRepositoryPgx) GetByJTIHash(ctx context.Context, jtiHash string) (*models.RefreshToken, error) {
	query := `
		SELECT id, jti_hash, user_id, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE jti_hash = $1
	`
	defer r.warnIfSlow(ctx, "get", time.Now())

	var t models.RefreshToken
	err := r.db.Pool().QueryRow(ctx, query, jtiHash).Scan(
		&t.ID,
		&t.JTIHash,
		&t.UserID,
		&t.ExpiresAt,
		&t.Revoked,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrRefreshTokenNotFound
		}
		r.logger.Error(ctx, "failed to load refresh token", err)
		return nil, errors.Storage("refresh_tokens.get", err)
	}
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

// Revoke marks the row revoked. Revoking an already revoked row succeeds.
func (r *RefreshTokenRepositoryPgx) Revoke(ctx context.Context, jtiHash string) error {
	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE jti_hash = $1`
	defer r.warnIfSlow(ctx, "revoke", time.Now())

	tag, err := r.db.Pool().Exec(ctx, query, jtiHash)
	if err != nil {
		r.logger.Error(ctx, "failed to revoke refresh token", err)
		return errors.Storage("refresh_tokens.revoke", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.ErrRefreshTokenNotFound
	}
	return nil
}

// DeleteExpired removes rows whose expiry is strictly before before.
func (r *RefreshTokenRepositoryPgx) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`
	defer r.warnIfSlow(ctx, "delete_expired", time.Now())

	tag, err := r.db.Pool().Exec(ctx, query, before.UTC())
	if err != nil {
		r.logger.Error(ctx, "failed to delete expired refresh tokens", err)
		return 0, errors.Storage("refresh_tokens.delete_expired", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepositoryPgx) warnIfSlow(ctx context.Context, op string, start time.Time) {
	if latency := time.Since(start); latency > slowQueryThreshold {
		r.logger.Warn(ctx, "slow refresh token query detected",
			logger.String("op", op),
			logger.Int64("latency_ms", latency.Milliseconds()),
		)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
