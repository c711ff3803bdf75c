package ratelimit

import (
	"context"
	"time"

	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// Config holds the limiter parameters.
type Config struct {
	// MaxAttempts is the number of attempts allowed per key inside Window.
	MaxAttempts int
	// Window is the trailing window length.
	Window time.Duration
}

// SlidingWindowLimiter guards authentication attempts per key. Buckets live in
// a BucketStore; a shared store (Redis) makes the limit hold across instances,
// the in-memory store limits each process on its own.
type SlidingWindowLimiter struct {
	store    service.BucketStore
	fallback *MemoryBucketStore
	config   Config
	now      func() time.Time
	logger   logger.Logger
	metrics  *monitoring.Metrics
}

// Option configures a SlidingWindowLimiter.
type Option func(*SlidingWindowLimiter)

// WithLocalFallback answers from an in-process store while the primary store fails.
func WithLocalFallback() Option {
	return func(l *SlidingWindowLimiter) { l.fallback = NewMemoryBucketStore() }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindowLimiter) { l.now = now }
}

// WithMetrics records decisions.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(l *SlidingWindowLimiter) { l.metrics = m }
}

// NewSlidingWindowLimiter creates a limiter on store.
func NewSlidingWindowLimiter(store service.BucketStore, cfg Config, log logger.Logger, opts ...Option) (*SlidingWindowLimiter, error) {
	if store == nil {
		return nil, errors.ErrInvalidArgument.WithMessage("bucket store is required")
	}
	if cfg.MaxAttempts < 1 || cfg.Window <= 0 {
		return nil, errors.ErrInvalidArgument.WithMessage("rate limit needs max attempts >= 1 and a positive window")
	}
	l := &SlidingWindowLimiter{
		store:  store,
		config: cfg,
		now:    time.Now,
		logger: log.WithComponent("rate_limiter"),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.logger.Info(context.Background(), "rate limiter initialized",
		logger.Int("max_attempts", cfg.MaxAttempts),
		logger.Duration("window", cfg.Window),
		logger.Bool("local_fallback", l.fallback != nil),
	)
	return l, nil
}

// Allow reports whether an attempt for key is permitted and records it if so.
// When the store fails, the local fallback answers if enabled; otherwise the
// attempt is refused and the store error returned.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	allowed, err := l.store.Hit(ctx, key, now, l.config.Window, l.config.MaxAttempts)
	if err != nil {
		if l.fallback == nil {
			l.logger.Error(ctx, "rate limit store unavailable", err)
			return false, err
		}
		l.logger.Warn(ctx, "rate limit store unavailable, using local fallback", logger.Err(err))
		l.metrics.RecordRateLimit("fallback")
		allowed, _ = l.fallback.Hit(ctx, key, now, l.config.Window, l.config.MaxAttempts)
	}

	if allowed {
		l.metrics.RecordRateLimit("allowed")
	} else {
		l.metrics.RecordRateLimit("limited")
	}
	return allowed, nil
}

// Reset clears the bucket for key.
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	if l.fallback != nil {
		_ = l.fallback.Reset(ctx, key)
	}
	return l.store.Reset(ctx, key)
}

// Clear drops every bucket.
func (l *SlidingWindowLimiter) Clear(ctx context.Context) error {
	if l.fallback != nil {
		_ = l.fallback.Clear(ctx)
	}
	return l.store.Clear(ctx)
}

// CleanupLocalBuckets drops idle buckets of the in-memory stores.
func (l *SlidingWindowLimiter) CleanupLocalBuckets() int {
	now := l.now()
	removed := 0
	if mem, ok := l.store.(*MemoryBucketStore); ok {
		removed += mem.Cleanup(now, l.config.Window)
	}
	if l.fallback != nil {
		removed += l.fallback.Cleanup(now, l.config.Window)
	}
	if removed > 0 {
		l.logger.Debug(context.Background(), "cleaned up idle buckets", logger.Int("count", removed))
	}
	return removed
}

// Config returns the limiter parameters.
func (l *SlidingWindowLimiter) Config() Config {
	return l.config
}
