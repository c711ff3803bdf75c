package repository

import (
	"context"
	"time"

	"github.com/turtacn/credcore/internal/domain/models"
)

// RefreshTokenRepository 定义刷新令牌仓储接口
// 仅存储令牌的 SHA-256 摘要，原始值从不落盘
// 实现类：persistence/postgres (gorm, pgx)、persistence/memory
type RefreshTokenRepository interface {
	// Save 保存刷新令牌记录
	// 返回：
	//   - error: 摘要冲突时返回 ErrConflict（视为熵源故障告警，不可重试）
	Save(ctx context.Context, token *models.RefreshToken) error

	// GetByJTIHash 根据摘要查询刷新令牌
	// 返回：
	//   - error: 不存在时返回 ErrRefreshTokenNotFound
	GetByJTIHash(ctx context.Context, jtiHash string) (*models.RefreshToken, error)

	// Revoke 将令牌标记为已撤销
	// 幂等且单调：已撤销的令牌再次撤销不报错，永远不会被恢复
	// 返回：
	//   - error: 不存在时返回 ErrRefreshTokenNotFound
	Revoke(ctx context.Context, jtiHash string) error

	// DeleteExpired 删除 expires_at 早于 before 的记录
	// 返回：
	//   - int64: 删除的行数
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
