// Package cache provides the in-process JWKS cache.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/pkg/errors"
)

const jwksKey = "jwks"

// JWKSCache keeps one JWKSCacheEntry in a go-cache instance. Entries carry their
// own expiry, checked against the injected clock; go-cache evicts them in real time.
type JWKSCache struct {
	store *gocache.Cache
	now   func() time.Time
}

var _ service.JWKSCache = (*JWKSCache)(nil)

// Option configures a JWKSCache.
type Option func(*JWKSCache)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *JWKSCache) { c.now = now }
}

// NewJWKSCache creates an empty cache.
func NewJWKSCache(opts ...Option) *JWKSCache {
	c := &JWKSCache{
		store: gocache.New(gocache.NoExpiration, time.Minute),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the cached document if present and unexpired.
func (c *JWKSCache) Get(ctx context.Context) (*models.JWKS, bool, error) {
	v, ok := c.store.Get(jwksKey)
	if !ok {
		return nil, false, nil
	}
	entry := v.(*models.JWKSCacheEntry)
	if !entry.ValidAt(c.now()) {
		c.store.Delete(jwksKey)
		return nil, false, nil
	}
	return copyJWKS(entry.JWKS), true, nil
}

// Set stores a copy of jwks for ttl.
func (c *JWKSCache) Set(ctx context.Context, jwks *models.JWKS, ttl time.Duration) error {
	if jwks == nil {
		return errors.ErrInvalidArgument.WithMessage("jwks is required")
	}
	if ttl <= 0 {
		return errors.ErrInvalidArgument.WithMessage("jwks cache ttl must be positive")
	}
	entry := &models.JWKSCacheEntry{JWKS: copyJWKS(jwks), ExpiresAt: c.now().Add(ttl)}
	c.store.Set(jwksKey, entry, ttl)
	return nil
}

// Invalidate removes the entry.
func (c *JWKSCache) Invalidate(ctx context.Context) error {
	c.store.Delete(jwksKey)
	return nil
}

func copyJWKS(j *models.JWKS) *models.JWKS {
	keys := make([]models.JWK, len(j.Keys))
	copy(keys, j.Keys)
	return &models.JWKS{Keys: keys}
}
