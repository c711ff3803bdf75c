// Package repository 定义领域仓储接口
// 仓储接口遵循 DDD 原则，定义领域对象的持久化契约
package repository

import (
	"context"

	"github.com/turtacn/credcore/internal/domain/models"
)

// KeySetRepository 定义签名密钥集合的仓储接口
// 密钥集合作为一个整体读写，写入使用版本号进行乐观并发控制
// 实现类：persistence/postgres (gorm)、persistence/memory
type KeySetRepository interface {
	// Load 读取当前持久化的密钥集合
	// 返回：
	//   - *models.KeySet: 密钥集合（调用方拥有该副本）
	//   - error: 尚未存储时返回 ErrKeySetNotFound；存储不可用时返回 ErrStorageUnavailable
	Load(ctx context.Context) (*models.KeySet, error)

	// Save 持久化新的密钥集合
	// 参数：
	//   - ctx: 请求上下文
	//   - keySet: 新的密钥集合，其 Version 必须等于 expectedVersion+1
	//   - expectedVersion: 调用方读取时的版本；0 表示首次写入
	// 返回：
	//   - error: 版本不匹配时返回 ErrConflict
	Save(ctx context.Context, keySet *models.KeySet, expectedVersion int64) error
}
