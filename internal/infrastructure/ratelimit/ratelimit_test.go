package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/credcore/internal/domain/service/mocks"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLimiter(t *testing.T, maxAttempts int, window time.Duration, opts ...Option) (*SlidingWindowLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	l, err := NewSlidingWindowLimiter(NewMemoryBucketStore(), Config{MaxAttempts: maxAttempts, Window: window}, logger.NewNoopLogger(), opts...)
	require.NoError(t, err)
	return l, clock
}

func TestSlidingWindowLimiter_AllowsMaxAttemptsThenBlocksThenRecovers(t *testing.T) {
	ctx := context.Background()
	l, clock := newLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "login:alice")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
		clock.Advance(time.Second)
	}

	ok, err := l.Allow(ctx, "login:alice")
	require.NoError(t, err)
	assert.False(t, ok)

	// the first hit was at t0; at t0+window it has left the window
	clock.Advance(time.Minute - 3*time.Second)
	ok, err = l.Allow(ctx, "login:alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, "login:alice")
	require.NoError(t, err)
	assert.False(t, ok, "second and third hits are still inside the window")
}

func TestSlidingWindowLimiter_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t, 1, time.Minute)

	ok, _ := l.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "a")
	assert.False(t, ok)
	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok)
}

func TestSlidingWindowLimiter_ResetAndClear(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t, 1, time.Minute)

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")

	require.NoError(t, l.Reset(ctx, "a"))
	ok, _ := l.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "b")
	assert.False(t, ok)

	require.NoError(t, l.Clear(ctx))
	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok)
}

func TestSlidingWindowLimiter_ConcurrentHitsAreNotLost(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t, 25, time.Minute)

	var (
		wg      sync.WaitGroup
		allowed atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow(ctx, "hot"); ok {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(25), allowed.Load())
}

func TestSlidingWindowLimiter_StoreFailure(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.Storage("redis.ratelimit.hit", assert.AnError)

	t.Run("without fallback the attempt is refused", func(t *testing.T) {
		store := new(mocks.MockBucketStore)
		store.On("Hit", mock.Anything, "k", mock.Anything, time.Minute, 2).Return(false, storeErr)
		l, err := NewSlidingWindowLimiter(store, Config{MaxAttempts: 2, Window: time.Minute}, logger.NewNoopLogger())
		require.NoError(t, err)

		ok, err := l.Allow(ctx, "k")
		assert.False(t, ok)
		assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
		store.AssertExpectations(t)
	})

	t.Run("with fallback the local store answers", func(t *testing.T) {
		store := new(mocks.MockBucketStore)
		store.On("Hit", mock.Anything, "k", mock.Anything, time.Minute, 2).Return(false, storeErr)
		metrics := monitoring.NewMetrics(prometheus.NewRegistry())
		l, err := NewSlidingWindowLimiter(store, Config{MaxAttempts: 2, Window: time.Minute}, logger.NewNoopLogger(),
			WithLocalFallback(), WithMetrics(metrics))
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			ok, err := l.Allow(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
		}
		ok, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.Equal(t, float64(3), testutil.ToFloat64(metrics.RateLimitDecisions.WithLabelValues("fallback")))
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RateLimitDecisions.WithLabelValues("limited")))
	})
}

func TestNewSlidingWindowLimiter_RejectsBadConfig(t *testing.T) {
	_, err := NewSlidingWindowLimiter(NewMemoryBucketStore(), Config{MaxAttempts: 0, Window: time.Minute}, logger.NewNoopLogger())
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	_, err = NewSlidingWindowLimiter(NewMemoryBucketStore(), Config{MaxAttempts: 1}, logger.NewNoopLogger())
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	_, err = NewSlidingWindowLimiter(nil, Config{MaxAttempts: 1, Window: time.Minute}, logger.NewNoopLogger())
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestMemoryBucketStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBucketStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, _ = store.Hit(ctx, "old", now, time.Minute, 5)
	_, _ = store.Hit(ctx, "fresh", now.Add(50*time.Second), time.Minute, 5)
	require.Equal(t, 2, store.Size())

	assert.Equal(t, 1, store.Cleanup(now.Add(time.Minute), time.Minute))
	assert.Equal(t, 1, store.Size())

	// a hit after cleanup lands in a live bucket
	ok, err := store.Hit(ctx, "old", now.Add(time.Minute), time.Minute, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = store.Hit(ctx, "old", now.Add(time.Minute), time.Minute, 1)
	assert.False(t, ok)
}
