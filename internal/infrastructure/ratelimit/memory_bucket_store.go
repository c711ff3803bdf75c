// Package ratelimit provides sliding-window rate limiting for authentication attempts.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/credcore/internal/domain/service"
)

// bucket holds the hit timestamps of one key, oldest first.
type bucket struct {
	mu   sync.Mutex
	hits []time.Time
	// dead is set when Cleanup unlinks the bucket from the store.
	dead bool
}

// prune drops hits at or before now-window. Must be called with mu held.
func (b *bucket) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(b.hits) && !b.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.hits = append(b.hits[:0], b.hits[i:]...)
	}
}

// MemoryBucketStore keeps buckets in process memory. Hits for one key are
// serialized by that bucket's mutex; different keys proceed in parallel.
type MemoryBucketStore struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

var _ service.BucketStore = (*MemoryBucketStore)(nil)

// NewMemoryBucketStore creates an empty store.
func NewMemoryBucketStore() *MemoryBucketStore {
	return &MemoryBucketStore{buckets: make(map[string]*bucket)}
}

func (s *MemoryBucketStore) bucketFor(key string) *bucket {
	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[key]; !ok {
		b = &bucket{}
		s.buckets[key] = b
	}
	return b
}

// Hit prunes the bucket and records now if fewer than limit hits remain.
func (s *MemoryBucketStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, error) {
	b := s.bucketFor(key)
	b.mu.Lock()
	for b.dead {
		b.mu.Unlock()
		b = s.bucketFor(key)
		b.mu.Lock()
	}
	defer b.mu.Unlock()

	b.prune(now, window)
	if len(b.hits) >= limit {
		return false, nil
	}
	b.hits = append(b.hits, now)
	return true, nil
}

// Reset drops the bucket for key.
func (s *MemoryBucketStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// Clear drops every bucket.
func (s *MemoryBucketStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = make(map[string]*bucket)
	return nil
}

// Cleanup removes buckets with no hit inside the window and returns how many
// were removed.
func (s *MemoryBucketStore) Cleanup(now time.Time, window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, b := range s.buckets {
		b.mu.Lock()
		b.prune(now, window)
		empty := len(b.hits) == 0
		if empty {
			b.dead = true
		}
		b.mu.Unlock()
		if empty {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of buckets held.
func (s *MemoryBucketStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}
