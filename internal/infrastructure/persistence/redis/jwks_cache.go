package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// JWKSCache stores the JWKS document under a single key shared by every
// instance. Expiry is delegated to the Redis key TTL.
type JWKSCache struct {
	client redis.UniversalClient
	key    string
	log    logger.Logger
}

var _ service.JWKSCache = (*JWKSCache)(nil)

// NewJWKSCache creates a Redis JWKS cache on the default key.
func NewJWKSCache(conn *RedisConnection, log logger.Logger) *JWKSCache {
	return &JWKSCache{
		client: conn.Client(),
		key:    constants.RedisKeyJWKS,
		log:    log.WithComponent("redis_jwks_cache"),
	}
}

// Get returns the cached document. A missing key is a miss; an unreadable
// entry is removed and reported as a miss.
func (c *JWKSCache) Get(ctx context.Context) (*models.JWKS, bool, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, errors.Storage("redis.jwks.get", err)
	}

	var jwks models.JWKS
	if err := json.Unmarshal(data, &jwks); err != nil {
		c.log.Warn(ctx, "discarding unreadable cached JWKS", logger.Err(err))
		_ = c.client.Del(ctx, c.key).Err()
		return nil, false, nil
	}
	return &jwks, true, nil
}

// Set stores the document with ttl.
func (c *JWKSCache) Set(ctx context.Context, jwks *models.JWKS, ttl time.Duration) error {
	if jwks == nil {
		return errors.ErrInvalidArgument.WithMessage("jwks is required")
	}
	if ttl <= 0 {
		return errors.ErrInvalidArgument.WithMessage("jwks cache ttl must be positive")
	}
	data, err := json.Marshal(jwks)
	if err != nil {
		return errors.ErrInternal.WithMessage("failed to encode jwks").WithCause(err)
	}
	if err := c.client.Set(ctx, c.key, data, ttl).Err(); err != nil {
		return errors.Storage("redis.jwks.set", err)
	}
	return nil
}

// Invalidate deletes the entry. Deleting a missing entry succeeds.
func (c *JWKSCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return errors.Storage("redis.jwks.invalidate", err)
	}
	return nil
}
