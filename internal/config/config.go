// Package config binds the service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service. The mapstructure tags are
// the lower-cased names of the environment variables.
type Config struct {
	AppEnv         string `mapstructure:"app_env"`
	Port           string `mapstructure:"port" validate:"required"`
	SentryDSN      string `mapstructure:"sentry_dsn"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	CronSecret     string `mapstructure:"cron_secret"`

	DatabaseURL              string `mapstructure:"database_url" validate:"required"`
	DBMaxOpenConns           int    `mapstructure:"db_max_open_conns" validate:"gt=0"`
	DBMaxIdleConns           int    `mapstructure:"db_max_idle_conns" validate:"gte=0"`
	DBConnMaxLifetimeMinutes int    `mapstructure:"db_conn_max_lifetime_minutes" validate:"gt=0"`
	DBConnMaxIdleTimeMinutes int    `mapstructure:"db_conn_max_idle_time_minutes" validate:"gt=0"`
	RunMigrationsOnStartup   bool   `mapstructure:"run_migrations_on_startup"`

	JWTSecret              string `mapstructure:"jwt_secret" validate:"required,min=32"`
	JWTIssuer              string `mapstructure:"jwt_issuer" validate:"required"`
	JWTAudience            string `mapstructure:"jwt_audience" validate:"required"`
	AccessTokenTTLMinutes  int    `mapstructure:"access_token_ttl_minutes" validate:"gt=0"`
	RefreshTokenTTLMinutes int    `mapstructure:"refresh_token_ttl_minutes" validate:"gtfield=AccessTokenTTLMinutes"`

	LoginMaxAttempts            int `mapstructure:"login_max_attempts" validate:"gt=0"`
	LoginLockMinutes            int `mapstructure:"login_lock_minutes" validate:"gt=0"`
	LoginRateLimitMax           int `mapstructure:"login_rate_limit_max" validate:"gt=0"`
	LoginRateLimitWindowSeconds int `mapstructure:"login_rate_limit_window_seconds" validate:"gt=0"`
	AuthCleanupBatchSize        int `mapstructure:"auth_cleanup_batch_size" validate:"gt=0"`

	AdminEmail    string `mapstructure:"admin_email" validate:"omitempty,email"`
	AdminPassword string `mapstructure:"admin_password"`

	ProductDefaultPageSize int `mapstructure:"product_default_page_size" validate:"gt=0"`
	ProductMaxPageSize     int `mapstructure:"product_max_page_size" validate:"gtefield=ProductDefaultPageSize"`

	LockBackend     string        `mapstructure:"lock_backend" validate:"oneof=memory etcd redis"`
	LockWaitSeconds int           `mapstructure:"lock_wait_seconds" validate:"gt=0"`
	LockTTLSeconds  int           `mapstructure:"lock_ttl_seconds" validate:"gt=0"`
	EtcdEndpoints   []string      `mapstructure:"etcd_endpoints" validate:"required_if=LockBackend etcd"`
	EtcdDialTimeout time.Duration `mapstructure:"etcd_dial_timeout" validate:"gt=0"`

	CacheBackend  string `mapstructure:"cache_backend" validate:"oneof=memory redis"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

type LoadOptions struct {
	// DotEnv loads a .env file from the working directory first when present.
	DotEnv bool
}

var defaults = map[string]any{
	"app_env":                         "development",
	"port":                            "8080",
	"sentry_dsn":                      "",
	"tracing_enabled":                 false,
	"cron_secret":                     "",
	"database_url":                    "",
	"db_max_open_conns":               10,
	"db_max_idle_conns":               5,
	"db_conn_max_lifetime_minutes":    30,
	"db_conn_max_idle_time_minutes":   10,
	"run_migrations_on_startup":       false,
	"jwt_secret":                      "",
	"jwt_issuer":                      "store-core",
	"jwt_audience":                    "store-clients",
	"access_token_ttl_minutes":        15,
	"refresh_token_ttl_minutes":       7 * 24 * 60,
	"login_max_attempts":              5,
	"login_lock_minutes":              15,
	"login_rate_limit_max":            10,
	"login_rate_limit_window_seconds": 60,
	"auth_cleanup_batch_size":         500,
	"admin_email":                     "",
	"admin_password":                  "",
	"product_default_page_size":       10,
	"product_max_page_size":           100,
	"lock_backend":                    "memory",
	"lock_wait_seconds":               5,
	"lock_ttl_seconds":                30,
	"etcd_endpoints":                  []string{"localhost:2379"},
	"etcd_dial_timeout":               "5s",
	"cache_backend":                   "memory",
	"redis_addr":                      "localhost:6379",
	"redis_password":                  "",
	"redis_db":                        0,
	"key_prefix":                      "store-core:",
}

// Load reads defaults and the environment into a validated Config.
func Load(opts LoadOptions) (*Config, error) {
	if opts.DotEnv {
		_ = godotenv.Load()
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if (cfg.LockBackend == "redis" || cfg.CacheBackend == "redis") && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("invalid config: REDIS_ADDR is required for the redis backend")
	}

	return &cfg, nil
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLMinutes) * time.Minute
}

func (c *Config) LoginLockDuration() time.Duration {
	return time.Duration(c.LoginLockMinutes) * time.Minute
}

func (c *Config) LoginRateLimitWindow() time.Duration {
	return time.Duration(c.LoginRateLimitWindowSeconds) * time.Second
}

func (c *Config) LockWait() time.Duration {
	return time.Duration(c.LockWaitSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c *Config) DBConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeMinutes) * time.Minute
}

func (c *Config) DBConnMaxIdleTime() time.Duration {
	return time.Duration(c.DBConnMaxIdleTimeMinutes) * time.Minute
}
