package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/repository"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/cache"
	"github.com/turtacn/credcore/internal/infrastructure/crypto"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/internal/infrastructure/persistence/memory"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/logger"
)

var (
	pemOnce sync.Once
	pems    [3][]byte
)

func testPEM(t *testing.T, i int) []byte {
	t.Helper()
	pemOnce.Do(func() {
		for n := range pems {
			p, err := crypto.GenerateRSAKeyPEM(2048)
			if err != nil {
				panic(err)
			}
			pems[n] = p
		}
	})
	return pems[i]
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }

// rotatingKeySet has A active until t0+1h and B waiting as next, with one hour of grace.
func rotatingKeySet(t *testing.T) *models.KeySet {
	return &models.KeySet{
		Keys: map[string]models.SigningKey{
			"A": {Kid: "A", Algorithm: constants.AlgRS256, Material: testPEM(t, 0), RetiredAt: timePtr(t0.Add(time.Hour))},
			"B": {Kid: "B", Algorithm: constants.AlgRS256, Material: testPEM(t, 1)},
		},
		ActiveKid:          "A",
		NextKid:            "B",
		GracePeriodSeconds: 3600,
		Version:            1,
	}
}

type rotationFixture struct {
	now       time.Time
	repo      repository.KeySetRepository
	holder    *crypto.KeyringHolder
	cache     *cache.JWKSCache
	publisher *JWKSPublisher
	metrics   *monitoring.Metrics
	applier   *RotationApplier
}

func (f *rotationFixture) clock() time.Time { return f.now }

func newRotationFixture(t *testing.T, ks *models.KeySet, jwksCache service.JWKSCache, audit service.AuditService) *rotationFixture {
	t.Helper()
	f := &rotationFixture{now: t0, repo: memory.NewKeySetStore()}
	require.NoError(t, f.repo.Save(context.Background(), ks, ks.Version-1))

	holder, err := crypto.NewKeyringHolder(ks)
	require.NoError(t, err)
	f.holder = holder

	f.cache = cache.NewJWKSCache(cache.WithClock(f.clock))
	if jwksCache == nil {
		jwksCache = f.cache
	}
	f.metrics = monitoring.NewMetrics(prometheus.NewRegistry())
	f.publisher = NewJWKSPublisher(holder, jwksCache, 5*time.Minute, logger.NewNoopLogger(),
		WithPublisherClock(f.clock), WithPublisherMetrics(f.metrics))
	f.applier = NewRotationApplier(f.repo, holder, f.publisher, audit, logger.NewNoopLogger(), f.metrics)
	return f
}

func jwksKids(jwks *models.JWKS) []string {
	kids := make([]string, 0, len(jwks.Keys))
	for _, k := range jwks.Keys {
		kids = append(kids, k.Kid)
	}
	return kids
}
