// Package redis provides the Redis-backed shared stores of the credential core:
// the JWKS cache and the sliding-window rate-limit buckets.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// RedisConnection manages the Redis client lifecycle. One address gives a
// standalone client; several give a cluster client.
type RedisConnection struct {
	config *config.RedisConfig
	client redis.UniversalClient
	logger logger.Logger
}

// NewRedisConnection creates a connection manager; call Connect before use.
func NewRedisConnection(cfg *config.RedisConfig, log logger.Logger) *RedisConnection {
	return &RedisConnection{
		config: cfg,
		logger: log.WithComponent("redis"),
	}
}

// NewRedisConnectionFromClient wraps an existing client.
func NewRedisConnectionFromClient(client redis.UniversalClient, log logger.Logger) *RedisConnection {
	return &RedisConnection{
		config: &config.RedisConfig{},
		client: client,
		logger: log.WithComponent("redis"),
	}
}

// Connect creates the client and verifies connectivity.
func (rc *RedisConnection) Connect(ctx context.Context) error {
	if rc.client != nil {
		rc.logger.Warn(ctx, "Redis connection already initialized")
		return nil
	}
	if len(rc.config.Addresses) == 0 {
		return errors.ErrInvalidArgument.WithMessage("redis addresses not configured")
	}

	poolSize := rc.config.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        rc.config.Addresses,
		Password:     rc.config.Password,
		DB:           rc.config.DB,
		PoolSize:     poolSize,
		MinIdleConns: rc.config.MinIdleConns,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rc.logger.Error(ctx, "Redis ping failed", err, logger.Strings("addresses", rc.config.Addresses))
		_ = client.Close()
		return errors.Storage("redis.connect", err)
	}

	rc.client = client
	rc.logger.Info(ctx, "Redis connection established successfully",
		logger.Strings("addresses", rc.config.Addresses),
		logger.Int("pool_size", poolSize),
	)
	return nil
}

// Client returns the underlying client.
func (rc *RedisConnection) Client() redis.UniversalClient {
	return rc.client
}

// Ping checks connectivity.
func (rc *RedisConnection) Ping(ctx context.Context) error {
	if rc.client == nil {
		return errors.ErrStorageUnavailable.WithMessage("redis client not initialized")
	}
	start := time.Now()
	if err := rc.client.Ping(ctx).Err(); err != nil {
		return errors.Storage("redis.ping", err)
	}
	if latency := time.Since(start); latency > 50*time.Millisecond {
		rc.logger.Warn(ctx, "high Redis latency detected", logger.Duration("latency", latency))
	}
	return nil
}

// Close releases the client.
func (rc *RedisConnection) Close() error {
	if rc.client == nil {
		return nil
	}
	rc.logger.Info(context.Background(), "closing Redis connection")
	err := rc.client.Close()
	rc.client = nil
	return err
}
