package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// Config holds the application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Keys         KeysConfig         `mapstructure:"keys"`
	Rotation     RotationConfig     `mapstructure:"rotation"`
	JWKS         JWKSConfig         `mapstructure:"jwks"`
	Tokens       TokensConfig       `mapstructure:"tokens"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	RefreshSweep RefreshSweepConfig `mapstructure:"refresh_sweep"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Vault        VaultConfig        `mapstructure:"vault"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Users        []UserConfig       `mapstructure:"users" validate:"dive"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path"`
}

// TracingConfig controls the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name" validate:"required_if=Enabled true"`
	Environment  string  `mapstructure:"environment"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"min=0,max=1"`
}

// KeysConfig describes where the initial KeySet comes from.
type KeysConfig struct {
	Source             string                       `mapstructure:"source" validate:"oneof=config vault generate"`
	ActiveKid          string                       `mapstructure:"active_kid"`
	NextKid            string                       `mapstructure:"next_kid"`
	GracePeriodSeconds int64                        `mapstructure:"grace_period_seconds" validate:"min=0"`
	Material           map[string]KeyMaterialConfig `mapstructure:"material" validate:"dive"`
}

// KeyMaterialConfig is the configuration of one signing key. RS256 keys take the
// PEM inline or from PEMFile; HS256 keys take Secret.
type KeyMaterialConfig struct {
	Algorithm string `mapstructure:"algorithm" validate:"oneof=RS256 HS256"`
	PEM       string `mapstructure:"pem"`
	PEMFile   string `mapstructure:"pem_file"`
	Secret    string `mapstructure:"secret"`
	RetiredAt string `mapstructure:"retired_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type RotationConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval" validate:"gt=0"`
}

type JWKSConfig struct {
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds" validate:"min=1"`
	CacheBackend    string `mapstructure:"cache_backend" validate:"oneof=memory redis"`
}

// CacheTTL returns the JWKS cache TTL as a duration.
func (c JWKSConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

type TokensConfig struct {
	AccessTTL  time.Duration `mapstructure:"access_ttl" validate:"gt=0"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl" validate:"gt=0"`
}

type RateLimitConfig struct {
	MaxAttempts   int    `mapstructure:"max_attempts" validate:"min=1"`
	WindowSeconds int    `mapstructure:"window_seconds" validate:"min=1"`
	Backend       string `mapstructure:"backend" validate:"oneof=memory redis"`
	LocalFallback bool   `mapstructure:"local_fallback"`
}

// Window returns the sliding window length.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type RefreshSweepConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver             string        `mapstructure:"driver" validate:"oneof=memory postgres sqlite"`
	RefreshTokenDriver string        `mapstructure:"refresh_token_driver" validate:"oneof=gorm pgx"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	Database           string        `mapstructure:"database"`
	SSLMode            string        `mapstructure:"ssl_mode"`
	SQLitePath         string        `mapstructure:"sqlite_path"`
	MaxConns           int           `mapstructure:"max_conns" validate:"min=0"`
	MinConns           int           `mapstructure:"min_conns" validate:"min=0"`
	MaxConnLifetime    time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime    time.Duration `mapstructure:"max_conn_idle_time"`
	ConnTimeout        time.Duration `mapstructure:"conn_timeout"`
}

// GetDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Addresses    []string `mapstructure:"addresses"`
	Password     string   `mapstructure:"password"`
	DB           int      `mapstructure:"db"`
	PoolSize     int      `mapstructure:"pool_size"`
	MinIdleConns int      `mapstructure:"min_idle_conns"`
}

type VaultConfig struct {
	Address    string        `mapstructure:"address"`
	Token      string        `mapstructure:"token"`
	MountPath  string        `mapstructure:"mount_path"`
	SecretPath string        `mapstructure:"secret_path"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	AuditTopic string   `mapstructure:"audit_topic"`
}

// AuditConfig selects the audit sinks. HMACKey, when set, signs every event.
type AuditConfig struct {
	Sinks   []string `mapstructure:"sinks" validate:"dive,oneof=log kafka database"`
	HMACKey string   `mapstructure:"hmac_key"`
}

// UserConfig is an entry of the static credential directory.
type UserConfig struct {
	Username     string            `mapstructure:"username" validate:"required"`
	PasswordHash string            `mapstructure:"password_hash" validate:"required"`
	Subject      string            `mapstructure:"subject" validate:"required"`
	Roles        []string          `mapstructure:"roles"`
	Attributes   map[string]string `mapstructure:"attributes"`
}

// Validate checks field constraints and the cross-section rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.ErrInvalidArgument.WithMessage("invalid configuration").WithCause(err)
	}

	if c.Keys.Source == "config" {
		if _, ok := c.Keys.Material[c.Keys.ActiveKid]; !ok {
			return errors.ErrInvalidArgument.WithMessage("keys.active_kid %q has no entry in keys.material", c.Keys.ActiveKid)
		}
	}
	if c.Keys.Source == "vault" && (c.Vault.Address == "" || c.Vault.SecretPath == "") {
		return errors.ErrInvalidArgument.WithMessage("keys.source vault requires vault.address and vault.secret_path")
	}
	needsRedis := c.JWKS.CacheBackend == "redis" || c.RateLimit.Backend == "redis"
	if needsRedis && len(c.Redis.Addresses) == 0 {
		return errors.ErrInvalidArgument.WithMessage("redis backend selected but redis.addresses is empty")
	}
	for _, sink := range c.Audit.Sinks {
		if sink == "kafka" && (len(c.Kafka.Brokers) == 0 || c.Kafka.AuditTopic == "") {
			return errors.ErrInvalidArgument.WithMessage("kafka audit sink requires kafka.brokers and kafka.audit_topic")
		}
		if sink == "database" && c.Database.Driver == "memory" {
			return errors.ErrInvalidArgument.WithMessage("database audit sink requires a postgres or sqlite database")
		}
	}
	if c.Database.RefreshTokenDriver == "pgx" && c.Database.Driver != "postgres" {
		return errors.ErrInvalidArgument.WithMessage("database.refresh_token_driver pgx requires database.driver postgres")
	}
	return nil
}

// BuildKeySet converts the keys section into a KeySet. PEM files are read from disk.
func (c KeysConfig) BuildKeySet() (*models.KeySet, error) {
	ks := &models.KeySet{
		Keys:               make(map[string]models.SigningKey, len(c.Material)),
		ActiveKid:          c.ActiveKid,
		NextKid:            c.NextKid,
		GracePeriodSeconds: c.GracePeriodSeconds,
	}
	for kid, m := range c.Material {
		key := models.SigningKey{Kid: kid, Algorithm: m.Algorithm}
		switch m.Algorithm {
		case constants.AlgRS256:
			material := []byte(m.PEM)
			if m.PEMFile != "" {
				data, err := os.ReadFile(m.PEMFile)
				if err != nil {
					return nil, errors.ErrInvalidArgument.WithMessage("cannot read pem_file for key %q", kid).WithCause(err)
				}
				material = data
			}
			key.Material = material
		case constants.AlgHS256:
			key.Material = []byte(m.Secret)
		}
		if m.RetiredAt != "" {
			t, err := time.Parse(time.RFC3339, m.RetiredAt)
			if err != nil {
				return nil, errors.ErrInvalidArgument.WithMessage("invalid retired_at for key %q", kid).WithCause(err)
			}
			key.RetiredAt = &t
		}
		ks.Keys[kid] = key
	}
	if err := ks.Validate(); err != nil {
		return nil, err
	}
	return ks, nil
}
