package config

import (
	"strings"

	"github.com/spf13/viper"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// LoadConfig loads the configuration from file and environment variables.
// An explicit path overrides the search in /etc/credcore/ and the working directory.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Load from config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("credcore")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/credcore/")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ErrInvalidArgument.WithMessage("failed to read config file").WithCause(err)
		}
	}

	// Load from environment variables
	v.SetEnvPrefix("CREDCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ErrInvalidArgument.WithMessage("failed to unmarshal config").WithCause(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("log.level", string(constants.LogLevelInfo))
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("tracing.enabled", true)
	v.SetDefault("tracing.service_name", "credcore")
	v.SetDefault("tracing.environment", "production")
	v.SetDefault("tracing.sampling_rate", 1.0)

	v.SetDefault("keys.source", "config")
	v.SetDefault("keys.grace_period_seconds", constants.DefaultGracePeriodSeconds)

	v.SetDefault("rotation.check_interval", constants.DefaultRotationInterval)
	v.SetDefault("jwks.cache_ttl_seconds", int(constants.DefaultJWKSCacheTTL.Seconds()))
	v.SetDefault("jwks.cache_backend", "memory")
	v.SetDefault("tokens.access_ttl", constants.DefaultAccessTokenTTL)
	v.SetDefault("tokens.refresh_ttl", constants.DefaultRefreshTokenTTL)

	v.SetDefault("rate_limit.max_attempts", constants.DefaultRateLimitAttempts)
	v.SetDefault("rate_limit.window_seconds", int(constants.DefaultRateLimitWindow.Seconds()))
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.local_fallback", true)

	v.SetDefault("refresh_sweep.interval", constants.DefaultSweepInterval)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.refresh_token_driver", "gorm")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite_path", "credcore.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.conn_timeout", "5s")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.secret_path", "credcore/keyset")
	v.SetDefault("vault.cache_ttl", "1m")

	v.SetDefault("kafka.audit_topic", "credcore.audit")
	v.SetDefault("audit.sinks", []string{"log"})
}
