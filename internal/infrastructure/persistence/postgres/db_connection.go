// Package postgres provides the SQL-backed repositories of the credential core:
// gorm repositories that run on PostgreSQL or SQLite, and a pgx repository for
// refresh tokens on PostgreSQL.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// DBConnection manages a PostgreSQL connection pool.
type DBConnection struct {
	pool   *pgxpool.Pool
	config *config.DatabaseConfig
	logger logger.Logger
}

// NewDBConnection creates the pool and performs an initial health check.
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	if cfg == nil {
		return nil, errors.ErrInvalidArgument.WithMessage("database config is required")
	}
	log = log.WithComponent("pgx")

	log.Info(ctx, "initializing PostgreSQL connection pool",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database),
		logger.Int("max_conns", cfg.MaxConns),
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		log.Error(ctx, "failed to parse database connection string", err)
		return nil, errors.Storage("pgx.parse_config", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MinConns = int32(cfg.MinConns)
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	connectCtx := ctx
	if cfg.ConnTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.ConnTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		log.Error(ctx, "failed to create database connection pool", err)
		return nil, errors.Storage("pgx.connect", err)
	}

	dbConn := &DBConnection{pool: pool, config: cfg, logger: log}
	if err := dbConn.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return dbConn, nil
}

// NewDBConnectionFromPool wraps an existing pool.
func NewDBConnectionFromPool(pool *pgxpool.Pool, log logger.Logger) *DBConnection {
	return &DBConnection{pool: pool, config: &config.DatabaseConfig{}, logger: log.WithComponent("pgx")}
}

// Pool returns the underlying pool.
func (db *DBConnection) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping verifies database connectivity and warns on high latency.
func (db *DBConnection) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	startTime := time.Now()
	if err := db.pool.Ping(pingCtx); err != nil {
		db.logger.Error(ctx, "database ping failed", err)
		return errors.Storage("pgx.ping", err)
	}

	// Warn if latency is high (> 100ms)
	if latency := time.Since(startTime); latency > 100*time.Millisecond {
		db.logger.Warn(ctx, "high database latency detected", logger.Duration("latency", latency))
	}
	return nil
}

// Close shuts the pool down.
func (db *DBConnection) Close() {
	db.logger.Info(context.Background(), "closing PostgreSQL connection pool",
		logger.Int("total_conns", int(db.pool.Stat().TotalConns())))
	db.pool.Close()
}
