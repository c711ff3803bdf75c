package application

import (
	"context"
	"encoding/base64"
	"math/big"
	"time"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/crypto"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// JWKSPublisher serves the public JWKS document. The cache is an accelerator
// only: every document can be rebuilt from the current Keyring, and a failing
// cache degrades to rebuilding on each request.
type JWKSPublisher struct {
	holder  *crypto.KeyringHolder
	cache   service.JWKSCache
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
	logger  logger.Logger
	metrics *monitoring.Metrics
}

// PublisherOption configures a JWKSPublisher.
type PublisherOption func(*JWKSPublisher)

// WithPublisherClock overrides the time source used to decide key usability.
func WithPublisherClock(now func() time.Time) PublisherOption {
	return func(p *JWKSPublisher) { p.now = now }
}

// WithPublisherMetrics records cache hits, misses and degraded lookups.
func WithPublisherMetrics(m *monitoring.Metrics) PublisherOption {
	return func(p *JWKSPublisher) { p.metrics = m }
}

// NewJWKSPublisher creates a publisher caching documents for ttl.
func NewJWKSPublisher(holder *crypto.KeyringHolder, cache service.JWKSCache, ttl time.Duration, log logger.Logger, opts ...PublisherOption) *JWKSPublisher {
	p := &JWKSPublisher{
		holder: holder,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		logger: log.WithComponent("jwks_publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Build returns the JWKS for keySet at now: the public half of every RS256 key
// that is active or retired within grace. Keys past grace are omitted.
func Build(keySet *models.KeySet, now time.Time) (*models.JWKS, error) {
	ring, err := crypto.NewKeyring(keySet)
	if err != nil {
		return nil, err
	}
	return buildFromKeyring(ring, now), nil
}

func buildFromKeyring(ring *crypto.Keyring, now time.Time) *models.JWKS {
	pubs := ring.PublicKeys(now)
	jwks := &models.JWKS{Keys: make([]models.JWK, 0, len(pubs))}
	for _, pk := range pubs {
		jwks.Keys = append(jwks.Keys, models.JWK{
			Kty: constants.JWKKeyTypeRSA,
			Use: constants.JWKUseSignature,
			Kid: pk.Kid,
			Alg: pk.Alg,
			N:   base64.RawURLEncoding.EncodeToString(pk.Key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pk.Key.E)).Bytes()),
		})
	}
	return jwks
}

// GetOrBuild returns the cached document, or builds, caches and returns it.
// Concurrent misses share one build. Cache failures are logged as degraded
// mode and never fail the request.
func (p *JWKSPublisher) GetOrBuild(ctx context.Context) (*models.JWKS, error) {
	jwks, ok, err := p.cache.Get(ctx)
	switch {
	case err != nil:
		p.logger.Warn(ctx, "JWKS cache unavailable, serving rebuilt document (degraded mode)", logger.Err(err))
		p.metrics.RecordJWKSLookup("degraded")
		return buildFromKeyring(p.holder.Current(), p.now()), nil
	case ok:
		p.metrics.RecordJWKSLookup("hit")
		return jwks, nil
	}

	p.metrics.RecordJWKSLookup("miss")
	v, err, _ := p.group.Do("jwks", func() (interface{}, error) {
		ring := p.holder.Current()
		built := buildFromKeyring(ring, p.now())
		if err := p.cache.Set(ctx, built, p.ttl); err != nil {
			p.logger.Warn(ctx, "failed to cache JWKS (degraded mode)", logger.Err(err))
			p.metrics.RecordJWKSLookup("degraded")
			return built, nil
		}
		// A swap between build and Set may have been invalidated before our Set landed.
		if current := p.holder.Current(); current != ring {
			if err := p.cache.Invalidate(ctx); err != nil {
				p.logger.Warn(ctx, "failed to drop JWKS built from a replaced keyring", logger.Err(err))
				p.metrics.RecordJWKSInvalidationFailure()
			}
			return buildFromKeyring(current, p.now()), nil
		}
		return built, nil
	})
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	return v.(*models.JWKS), nil
}

// Invalidate drops the cached document.
func (p *JWKSPublisher) Invalidate(ctx context.Context) error {
	return p.cache.Invalidate(ctx)
}

// CacheTTL returns the cache lifetime, also advertised to HTTP clients.
func (p *JWKSPublisher) CacheTTL() time.Duration {
	return p.ttl
}
