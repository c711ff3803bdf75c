package application

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service/mocks"
	"github.com/turtacn/credcore/internal/infrastructure/cache"
	"github.com/turtacn/credcore/internal/infrastructure/crypto"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

func TestBuild_PublishesUsableRSAKeys(t *testing.T) {
	ks := rotatingKeySet(t)
	ks.Keys["C"] = models.SigningKey{Kid: "C", Algorithm: constants.AlgRS256, Material: testPEM(t, 2), RetiredAt: timePtr(t0.Add(-2 * time.Hour))}
	ks.Keys["H"] = models.SigningKey{Kid: "H", Algorithm: constants.AlgHS256, Material: []byte(strings.Repeat("k", 32))}

	jwks, err := Build(ks, t0)
	require.NoError(t, err)
	// C is past grace, H has no public form, B is pending and published ahead of promotion.
	assert.Equal(t, []string{"A", "B"}, jwksKids(jwks))

	for _, k := range jwks.Keys {
		assert.Equal(t, "RSA", k.Kty)
		assert.Equal(t, "sig", k.Use)
		assert.Equal(t, constants.AlgRS256, k.Alg)
	}

	priv, err := crypto.ParseRSAPrivateKeyPEM(testPEM(t, 0))
	require.NoError(t, err)
	assertJWKMatches(t, &priv.PublicKey, jwks.Keys[0])

	// retired A stays published within grace, then drops out
	ks.ActiveKid, ks.NextKid = "B", ""
	jwks, err = Build(ks, t0.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, jwksKids(jwks))

	jwks, err = Build(ks, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, jwksKids(jwks))
}

func TestBuild_OverdueActiveKeyStaysPublished(t *testing.T) {
	ks := rotatingKeySet(t)
	ks.NextKid = ""
	delete(ks.Keys, "B")

	jwks, err := Build(ks, t0.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, jwksKids(jwks))
}

func TestBuild_RejectsInconsistentKeySet(t *testing.T) {
	ks := rotatingKeySet(t)
	ks.ActiveKid = "missing"
	_, err := Build(ks, t0)
	assert.ErrorIs(t, err, errors.ErrKeySetInconsistent)
}

func assertJWKMatches(t *testing.T, pub *rsa.PublicKey, jwk models.JWK) {
	t.Helper()
	n, err := base64.RawURLEncoding.DecodeString(jwk.N)
	require.NoError(t, err)
	e, err := base64.RawURLEncoding.DecodeString(jwk.E)
	require.NoError(t, err)
	assert.Equal(t, 0, pub.N.Cmp(new(big.Int).SetBytes(n)))
	assert.Equal(t, int64(pub.E), new(big.Int).SetBytes(e).Int64())
	assert.Equal(t, "AQAB", jwk.E)
}

func TestJWKSPublisher_CachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	f := newRotationFixture(t, rotatingKeySet(t), nil, nil)

	first, err := f.publisher.GetOrBuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, jwksKids(first))

	_, err = f.publisher.GetOrBuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.JWKSCacheLookups.WithLabelValues("miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.JWKSCacheLookups.WithLabelValues("hit")))

	next := rotatingKeySet(t)
	delete(next.Keys, "A")
	next.ActiveKid, next.NextKid, next.Version = "B", "", 2
	require.NoError(t, f.holder.Swap(next))

	cached, err := f.publisher.GetOrBuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, jwksKids(cached), "served from cache until invalidated")

	require.NoError(t, f.publisher.Invalidate(ctx))
	rebuilt, err := f.publisher.GetOrBuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, jwksKids(rebuilt))
}

func TestJWKSPublisher_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	f := newRotationFixture(t, rotatingKeySet(t), nil, nil)

	_, err := f.publisher.GetOrBuild(ctx)
	require.NoError(t, err)
	f.now = f.now.Add(5*time.Minute + time.Second)
	_, err = f.publisher.GetOrBuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.JWKSCacheLookups.WithLabelValues("miss")))
}

func TestJWKSPublisher_DegradedModeOnCacheFailure(t *testing.T) {
	ctx := context.Background()
	down := errors.Storage("redis.get", assert.AnError)

	t.Run("get fails", func(t *testing.T) {
		m := &mocks.MockJWKSCache{}
		m.On("Get", mock.Anything).Return(nil, false, down)
		f := newRotationFixture(t, rotatingKeySet(t), m, nil)

		jwks, err := f.publisher.GetOrBuild(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, jwksKids(jwks))
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.JWKSCacheLookups.WithLabelValues("degraded")))
		m.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("set fails", func(t *testing.T) {
		m := &mocks.MockJWKSCache{}
		m.On("Get", mock.Anything).Return(nil, false, nil)
		m.On("Set", mock.Anything, mock.Anything, 5*time.Minute).Return(down)
		f := newRotationFixture(t, rotatingKeySet(t), m, nil)

		jwks, err := f.publisher.GetOrBuild(ctx)
		require.NoError(t, err)
		assert.Len(t, jwks.Keys, 2)
		m.AssertExpectations(t)
	})
}

func TestJWKSPublisher_ConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	f := newRotationFixture(t, rotatingKeySet(t), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jwks, err := f.publisher.GetOrBuild(ctx)
			assert.NoError(t, err)
			assert.Len(t, jwks.Keys, 2)
		}()
	}
	wg.Wait()
}

// gatedCache holds Set until release is closed.
type gatedCache struct {
	*cache.JWKSCache
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCache) Set(ctx context.Context, jwks *models.JWKS, ttl time.Duration) error {
	close(g.entered)
	<-g.release
	return g.JWKSCache.Set(ctx, jwks, ttl)
}

func TestJWKSPublisher_RotationDuringMissIsNotCached(t *testing.T) {
	ctx := context.Background()
	initial := rotatingKeySet(t)
	delete(initial.Keys, "B")
	initial.NextKid = ""

	gated := &gatedCache{
		JWKSCache: cache.NewJWKSCache(cache.WithClock(func() time.Time { return t0 })),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	f := newRotationFixture(t, initial, gated, nil)

	first := make(chan *models.JWKS, 1)
	go func() {
		jwks, err := f.publisher.GetOrBuild(ctx)
		assert.NoError(t, err)
		first <- jwks
	}()
	<-gated.entered

	rotated := rotatingKeySet(t)
	rotated.ActiveKid, rotated.NextKid = "B", ""
	rotated.Version = 2
	require.NoError(t, f.holder.Swap(rotated))
	require.NoError(t, f.publisher.Invalidate(ctx))
	close(gated.release)

	assert.Contains(t, jwksKids(<-first), "B")

	jwks, ok, err := gated.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "document built from the replaced keyring must not stay cached")
	assert.Nil(t, jwks)
}
