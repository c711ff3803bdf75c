package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// slidingWindowScript prunes, counts and records in one atomic step.
// KEYS[1] bucket; ARGV now, cutoff, limit, member, ttl (ms). Scores are
// microseconds passed as strings so Lua does no arithmetic on them.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
local allowed = 0
if count < tonumber(ARGV[3]) then
	redis.call('ZADD', key, ARGV[1], ARGV[4])
	allowed = 1
end
redis.call('PEXPIRE', key, ARGV[5])
return allowed
`)

// BucketStore keeps rate-limit buckets as sorted sets of hit timestamps so
// every instance shares the same counts.
type BucketStore struct {
	client redis.UniversalClient
	prefix string
}

var _ service.BucketStore = (*BucketStore)(nil)

// NewBucketStore creates a Redis bucket store.
func NewBucketStore(conn *RedisConnection) *BucketStore {
	return &BucketStore{client: conn.Client(), prefix: constants.RedisKeyRateLimitPrefix}
}

// Hit records an attempt for key if fewer than limit hits fall inside the window.
// Hits exactly one window old are pruned.
func (s *BucketStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, error) {
	nowMicros := now.UnixMicro()
	ttl := window.Milliseconds()
	if ttl < 1 {
		ttl = 1
	}
	allowed, err := slidingWindowScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		strconv.FormatInt(nowMicros, 10),
		strconv.FormatInt(nowMicros-window.Microseconds(), 10),
		limit,
		strconv.FormatInt(nowMicros, 10)+"-"+uuid.NewString(),
		ttl,
	).Int()
	if err != nil {
		return false, errors.Storage("redis.ratelimit.hit", err)
	}
	return allowed == 1, nil
}

// Reset drops the bucket for key.
func (s *BucketStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Storage("redis.ratelimit.reset", err)
	}
	return nil
}

// Clear drops every bucket under the prefix.
func (s *BucketStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Storage("redis.ratelimit.clear", err)
	}
	for _, k := range keys {
		if err := s.client.Del(ctx, k).Err(); err != nil {
			return errors.Storage("redis.ratelimit.clear", err)
		}
	}
	return nil
}
