package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/turtacn/credcore/internal/application"
	appservice "github.com/turtacn/credcore/internal/application/service"
	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/domain/repository"
	domainservice "github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/audit"
	"github.com/turtacn/credcore/internal/infrastructure/cache"
	"github.com/turtacn/credcore/internal/infrastructure/crypto"
	"github.com/turtacn/credcore/internal/infrastructure/directory"
	"github.com/turtacn/credcore/internal/infrastructure/kms"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/internal/infrastructure/persistence/memory"
	"github.com/turtacn/credcore/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/credcore/internal/infrastructure/persistence/redis"
	"github.com/turtacn/credcore/internal/infrastructure/ratelimit"
	httpapi "github.com/turtacn/credcore/internal/interfaces/http"
	"github.com/turtacn/credcore/internal/interfaces/http/handlers"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

const generatedKeyBits = 2048

// stores holds the persistence backends selected by configuration.
type stores struct {
	keySets       repository.KeySetRepository
	refreshTokens repository.RefreshTokenRepository
	gormDB        *gorm.DB
	redis         *redis.RedisConnection
	health        map[string]handlers.Pinger
	closers       []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := config.LoadConfig(os.Getenv("CREDCORE_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := monitoring.NewZapLogger(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.Error(ctx, "server exited with error", err)
		os.Exit(1)
	}
	appLogger.Info(ctx, "server stopped")
}

func run(ctx context.Context, cfg *config.Config, appLogger logger.Logger) error {
	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)

	// Tracing
	if provider := monitoring.NewTracerProvider(&cfg.Tracing, appLogger); provider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				appLogger.Warn(shutdownCtx, "tracer provider shutdown failed", logger.Err(err))
			}
		}()
	}

	// Persistence
	st, err := openStores(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer st.close()

	// Key set
	source, err := keySource(cfg, appLogger)
	if err != nil {
		return err
	}
	keySet, err := application.BootstrapKeySet(ctx, st.keySets, source, appLogger)
	if err != nil {
		return err
	}
	holder, err := crypto.NewKeyringHolder(keySet)
	if err != nil {
		return err
	}

	// Audit
	auditService, closeAudit, err := auditSinks(cfg, st, appLogger, metrics)
	if err != nil {
		return err
	}
	defer closeAudit()

	// JWKS
	var jwksCache domainservice.JWKSCache = cache.NewJWKSCache()
	if cfg.JWKS.CacheBackend == "redis" {
		jwksCache = redis.NewJWKSCache(st.redis, appLogger)
	}
	publisher := application.NewJWKSPublisher(holder, jwksCache, cfg.JWKS.CacheTTL(), appLogger,
		application.WithPublisherMetrics(metrics))

	// Rate limiting
	var bucketStore domainservice.BucketStore = ratelimit.NewMemoryBucketStore()
	var limiterOpts []ratelimit.Option
	limiterOpts = append(limiterOpts, ratelimit.WithMetrics(metrics))
	if cfg.RateLimit.Backend == "redis" {
		bucketStore = redis.NewBucketStore(st.redis)
		if cfg.RateLimit.LocalFallback {
			limiterOpts = append(limiterOpts, ratelimit.WithLocalFallback())
		}
	}
	limiter, err := ratelimit.NewSlidingWindowLimiter(bucketStore,
		ratelimit.Config{MaxAttempts: cfg.RateLimit.MaxAttempts, Window: cfg.RateLimit.Window()},
		appLogger, limiterOpts...)
	if err != nil {
		return err
	}

	// Tokens and authentication
	ledger := domainservice.NewRefreshTokenLedger(st.refreshTokens, appLogger)
	issuer := crypto.NewJWTManager(holder, ledger, appLogger)
	users, err := directory.NewStaticDirectory(cfg.Users)
	if err != nil {
		return err
	}
	authService := appservice.NewAuthAppService(issuer, ledger, users, users, limiter, auditService,
		appservice.AuthConfig{AccessTTL: cfg.Tokens.AccessTTL, RefreshTTL: cfg.Tokens.RefreshTTL},
		appLogger, appservice.WithAuthMetrics(metrics))

	// Background jobs
	applier := application.NewRotationApplier(st.keySets, holder, publisher, auditService, appLogger, metrics)
	scheduler := application.NewRotationScheduler(st.keySets, holder, applier, publisher,
		cfg.Rotation.CheckInterval, appLogger, nil)
	sweeper := application.NewExpirySweeper(ledger, auditService, cfg.RefreshSweep.Interval, appLogger, metrics, nil)

	router := httpapi.NewRouter(cfg.Server, appLogger, authService, publisher,
		handlers.NewHealthHandler(st.health, appLogger), metrics, registry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return router.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(cfg.RateLimit.Window())
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				limiter.CleanupLocalBuckets()
			}
		}
	})
	return g.Wait()
}

// openStores opens the configured database and redis backends.
func openStores(ctx context.Context, cfg *config.Config, appLogger logger.Logger) (*stores, error) {
	st := &stores{health: make(map[string]handlers.Pinger)}

	if cfg.JWKS.CacheBackend == "redis" || cfg.RateLimit.Backend == "redis" {
		conn := redis.NewRedisConnection(&cfg.Redis, appLogger)
		if err := conn.Connect(ctx); err != nil {
			return nil, err
		}
		st.redis = conn
		st.health["redis"] = conn
		st.closers = append(st.closers, func() { _ = conn.Close() })
	}

	switch cfg.Database.Driver {
	case "memory":
		appLogger.Warn(ctx, "using in-memory stores; key set and refresh tokens are lost on restart")
		st.keySets = memory.NewKeySetStore()
		st.refreshTokens = memory.NewRefreshTokenStore()
		return st, nil
	case "postgres", "sqlite":
	default:
		return nil, errors.ErrInvalidArgument.WithMessage("unsupported database driver %q", cfg.Database.Driver)
	}

	db, err := postgres.OpenGorm(&cfg.Database)
	if err != nil {
		st.close()
		return nil, err
	}
	if err := postgres.AutoMigrate(db); err != nil {
		st.close()
		return nil, err
	}
	st.gormDB = db
	st.health["database"] = postgres.NewGormHealth(db)
	st.keySets = postgres.NewKeySetRepository(db)
	st.refreshTokens = postgres.NewRefreshTokenRepository(db)
	st.closers = append(st.closers, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if cfg.Database.RefreshTokenDriver == "pgx" {
		conn, err := postgres.NewDBConnection(ctx, &cfg.Database, appLogger)
		if err != nil {
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, conn.Close)
		if err := postgres.EnsureRefreshTokenSchema(ctx, conn); err != nil {
			st.close()
			return nil, err
		}
		st.health["pgx"] = conn
		st.refreshTokens = postgres.NewRefreshTokenRepositoryPgx(conn, appLogger)
	}
	return st, nil
}

// keySource selects where the initial key set comes from.
func keySource(cfg *config.Config, appLogger logger.Logger) (kms.KeySource, error) {
	switch cfg.Keys.Source {
	case "vault":
		vcfg := vault.DefaultConfig()
		vcfg.Address = cfg.Vault.Address
		client, err := vault.NewClient(vcfg)
		if err != nil {
			return nil, errors.Storage("vault.client", err)
		}
		client.SetToken(cfg.Vault.Token)
		return kms.NewVaultKeySource(client, cfg.Vault.MountPath, cfg.Vault.SecretPath, cfg.Vault.CacheTTL, appLogger), nil
	case "generate":
		return kms.NewGeneratedKeySource(generatedKeyBits, cfg.Keys.GracePeriodSeconds), nil
	default:
		ks, err := cfg.Keys.BuildKeySet()
		if err != nil {
			return nil, err
		}
		return kms.NewStaticKeySource(ks), nil
	}
}

// auditSinks builds the configured audit fan-out, optionally HMAC-signed.
func auditSinks(cfg *config.Config, st *stores, appLogger logger.Logger, metrics *monitoring.Metrics) (domainservice.AuditService, func(), error) {
	var (
		sinks   []audit.Sink
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, name := range cfg.Audit.Sinks {
		switch name {
		case "log":
			sinks = append(sinks, audit.Sink{Name: name, Service: audit.NewLogAuditService(appLogger)})
		case "kafka":
			producer, err := audit.NewKafkaProducer(cfg.Kafka, appLogger)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, func() { _ = producer.Close() })
			sinks = append(sinks, audit.Sink{Name: name, Service: producer})
		case "database":
			store := audit.NewGormAuditService(st.gormDB)
			if err := store.Migrate(); err != nil {
				closeAll()
				return nil, nil, err
			}
			sinks = append(sinks, audit.Sink{Name: name, Service: store})
		}
	}

	var svc domainservice.AuditService = audit.NewMultiAuditService(appLogger, metrics, sinks...)
	if cfg.Audit.HMACKey != "" {
		signed, err := audit.NewSignedAuditService(svc, []byte(cfg.Audit.HMACKey))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		svc = signed
	}
	return svc, closeAll, nil
}
