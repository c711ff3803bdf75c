package postgres

import (
	"context"
	"time"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/repository"
	"github.com/turtacn/credcore/pkg/errors"
	"gorm.io/gorm"
)

type refreshTokenRepository struct {
	db *gorm.DB
}

// NewRefreshTokenRepository creates a gorm-backed RefreshTokenRepository.
func NewRefreshTokenRepository(db *gorm.DB) repository.RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Save(ctx context.Context, token *models.RefreshToken) error {
	row := *token
	row.ExpiresAt = row.ExpiresAt.UTC()
	row.CreatedAt = row.CreatedAt.UTC()
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.ErrConflict.WithMessage("refresh token hash already exists")
		}
		return errors.Storage("refresh_tokens.save", err)
	}
	return nil
}

func (r *refreshTokenRepository) GetByJTIHash(ctx context.Context, jtiHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := r.db.WithContext(ctx).Where("jti_hash = ?", jtiHash).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrRefreshTokenNotFound
		}
		return nil, errors.Storage("refresh_tokens.get", err)
	}
	token.ExpiresAt = token.ExpiresAt.UTC()
	token.CreatedAt = token.CreatedAt.UTC()
	return &token, nil
}

// Revoke is idempotent; only a missing row is an error.
func (r *refreshTokenRepository) Revoke(ctx context.Context, jtiHash string) error {
	res := r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("jti_hash = ?", jtiHash).
		Update("revoked", true)
	if res.Error != nil {
		return errors.Storage("refresh_tokens.revoke", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.ErrRefreshTokenNotFound
	}
	return nil
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", before.UTC()).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, errors.Storage("refresh_tokens.delete_expired", res.Error)
	}
	return res.RowsAffected, nil
}
