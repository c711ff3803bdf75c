package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/errors"
)

func TestJWKSCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewJWKSCache(WithClock(func() time.Time { return now }))
	doc := &models.JWKS{Keys: []models.JWK{{Kty: "RSA", Use: "sig", Kid: "k1", Alg: "RS256", N: "n", E: "AQAB"}}}

	_, ok, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, doc, time.Minute))
	got, ok, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc, got)

	got.Keys[0].Kid = "mutated"
	again, _, _ := c.Get(ctx)
	assert.Equal(t, "k1", again.Keys[0].Kid, "callers receive copies")

	require.NoError(t, c.Invalidate(ctx))
	_, ok, _ = c.Get(ctx)
	assert.False(t, ok)
}

func TestJWKSCache_ExpiresOnInjectedClock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewJWKSCache(WithClock(func() time.Time { return now }))

	require.NoError(t, c.Set(ctx, &models.JWKS{Keys: []models.JWK{}}, time.Hour))
	now = now.Add(59 * time.Minute)
	_, ok, _ := c.Get(ctx)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx)
	assert.False(t, ok, "entry expires exactly at its ttl")
}

func TestJWKSCache_RejectsBadInput(t *testing.T) {
	c := NewJWKSCache()
	assert.ErrorIs(t, c.Set(context.Background(), nil, time.Minute), errors.ErrInvalidArgument)
	assert.ErrorIs(t, c.Set(context.Background(), &models.JWKS{}, 0), errors.ErrInvalidArgument)
}
