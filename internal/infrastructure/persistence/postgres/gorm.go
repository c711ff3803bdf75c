package postgres

import (
	"context"

	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/errors"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenGorm opens a gorm database for the configured driver (postgres or sqlite).
// Driver errors are translated so unique violations surface as gorm.ErrDuplicatedKey.
func OpenGorm(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = gormpostgres.Open(cfg.GetDSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, errors.ErrInvalidArgument.WithMessage("unsupported gorm driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	if err != nil {
		return nil, errors.Storage("gorm.open", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Storage("gorm.open", err)
	}
	switch {
	case cfg.Driver == "sqlite":
		// one writer; also keeps ":memory:" databases on a single connection
		sqlDB.SetMaxOpenConns(1)
	case cfg.MaxConns > 0:
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxConnLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	if cfg.MaxConnIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	}
	return db, nil
}

// AutoMigrate creates or updates the tables owned by this package.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&keySetRow{}, &signingKeyRow{}, &models.RefreshToken{}); err != nil {
		return errors.Storage("gorm.migrate", err)
	}
	return nil
}

// GormHealth pings the database behind a gorm handle.
type GormHealth struct {
	db *gorm.DB
}

// NewGormHealth creates a health check for db.
func NewGormHealth(db *gorm.DB) *GormHealth {
	return &GormHealth{db: db}
}

// Ping checks that the database answers.
func (h *GormHealth) Ping(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return errors.Storage("gorm.ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.Storage("gorm.ping", err)
	}
	return nil
}
