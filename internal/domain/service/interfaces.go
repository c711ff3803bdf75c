package service

import (
	"context"
	"time"

	"github.com/turtacn/credcore/internal/domain/models"
)

//go:generate mockery --name TokenIssuer --output mocks --outpkg mocks
// TokenIssuer mints and verifies credentials.
// TokenIssuer 负责签发和验证凭证。
type TokenIssuer interface {
	// CreateAccessToken signs an access token with the active key.
	// CreateAccessToken 使用活动密钥签署访问令牌。
	CreateAccessToken(ctx context.Context, subject string, roles []string, attributes map[string]string, ttl time.Duration) (string, *models.AccessTokenClaims, error)

	// DecodeAndVerify parses and verifies an access token against every usable key.
	// DecodeAndVerify 使用所有可用密钥解析并验证访问令牌。
	DecodeAndVerify(ctx context.Context, token string) (*models.AccessTokenClaims, error)

	// CreateRefreshToken generates an opaque refresh token, persists its hash and returns the raw value once.
	// CreateRefreshToken 生成不透明的刷新令牌，持久化其摘要并仅返回一次原始值。
	CreateRefreshToken(ctx context.Context, userID string, ttl time.Duration) (string, *models.RefreshToken, error)
}

//go:generate mockery --name JWKSCache --output mocks --outpkg mocks
// JWKSCache is a TTL cache holding a single JWKS document.
// JWKSCache 是保存单个 JWKS 文档的 TTL 缓存。
type JWKSCache interface {
	// Get returns the cached document if present and unexpired.
	// Get 在缓存存在且未过期时返回文档。
	Get(ctx context.Context) (*models.JWKS, bool, error)

	// Set stores the document for ttl.
	// Set 存储文档，有效期为 ttl。
	Set(ctx context.Context, jwks *models.JWKS, ttl time.Duration) error

	// Invalidate unconditionally removes the entry.
	// Invalidate 无条件删除缓存条目。
	Invalidate(ctx context.Context) error
}

//go:generate mockery --name AuditService --output mocks --outpkg mocks
// AuditService records security events.
// AuditService 记录安全事件。
type AuditService interface {
	// Record writes one event. Callers treat failures as non-fatal.
	// Record 写入一条事件。调用方将失败视为非致命错误。
	Record(ctx context.Context, event *models.AuditEvent) error
}

//go:generate mockery --name BucketStore --output mocks --outpkg mocks
// BucketStore holds sliding-window rate-limit buckets. Implementations must make
// Hit atomic per key.
// BucketStore 保存滑动窗口限流桶。实现必须保证 Hit 对每个键是原子的。
type BucketStore interface {
	// Hit prunes entries older than now-window and records now if fewer than limit remain.
	// Hit 清除早于 now-window 的记录，若剩余数量小于 limit 则记录 now。
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, error)

	// Reset removes the bucket for key.
	// Reset 删除 key 对应的桶。
	Reset(ctx context.Context, key string) error

	// Clear removes every bucket.
	// Clear 删除所有桶。
	Clear(ctx context.Context) error
}

//go:generate mockery --name CredentialVerifier --output mocks --outpkg mocks
// CredentialVerifier checks primary credentials at login.
// CredentialVerifier 在登录时校验主凭证。
type CredentialVerifier interface {
	// Verify returns the subject id for valid credentials, or ErrInvalidCredentials.
	// Verify 对有效凭证返回主体 ID，否则返回 ErrInvalidCredentials。
	Verify(ctx context.Context, username, password string) (string, error)
}

//go:generate mockery --name SubjectDirectory --output mocks --outpkg mocks
// SubjectDirectory resolves roles and attributes for a subject.
// SubjectDirectory 解析主体的角色和属性。
type SubjectDirectory interface {
	// Lookup returns the subject profile used to build access token claims.
	// Lookup 返回用于构建访问令牌声明的主体信息。
	Lookup(ctx context.Context, subjectID string) (*models.Subject, error)
}
