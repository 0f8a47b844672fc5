package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// Link allocation and caching policy
	Link LinkConfig `mapstructure:"link"`

	// Rate limiting
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`

	// Background reconciliation
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MonitorPort int    `mapstructure:"monitor_port"`
}

type PrometheusConfig struct {
	Port           int    `mapstructure:"port"`
	Retention      string `mapstructure:"retention"`
	ScrapeInterval string `mapstructure:"scrape_interval"`
	Target         string `mapstructure:"target"`
}

type LinkConfig struct {
	CodeLength        int      `mapstructure:"code_length"`
	MinCustomLength   int      `mapstructure:"min_custom_length"`
	MaxCustomLength   int      `mapstructure:"max_custom_length"`
	DefaultExpiryDays int      `mapstructure:"default_expiry_days"`
	MaxExpiryDays     int      `mapstructure:"max_expiry_days"`
	ReservedCodes     []string `mapstructure:"reserved_codes"`
	BlockedDomains    []string `mapstructure:"blocked_domains"`
	CacheTTLCeiling   string   `mapstructure:"cache_ttl_ceiling"`
}

type RateLimitConfig struct {
	PerWindow int    `mapstructure:"per_window"`
	Window    string `mapstructure:"window"`
}

type ReconcilerConfig struct {
	Interval      string `mapstructure:"interval"`
	DeleteExpired bool   `mapstructure:"delete_expired"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// CacheTTLCeiling parses the configured ceiling, defaulting to 24 hours.
func (c LinkConfig) CacheTTLCeilingDuration() time.Duration {
	if d, err := time.ParseDuration(c.CacheTTLCeiling); err == nil && d > 0 {
		return d
	}
	return 24 * time.Hour
}

// WindowDuration parses the configured rate-limit window, defaulting to an hour.
func (c RateLimitConfig) WindowDuration() time.Duration {
	if d, err := time.ParseDuration(c.Window); err == nil && d > 0 {
		return d
	}
	return time.Hour
}

// IntervalDuration parses the reconciler interval, defaulting to an hour.
func (c ReconcilerConfig) IntervalDuration() time.Duration {
	if d, err := time.ParseDuration(c.Interval); err == nil && d > 0 {
		return d
	}
	return time.Hour
}

func bindEnvVars(v *viper.Viper) {
	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")
	v.BindEnv("prometheus.retention", "PROM_RETENTION")
	v.BindEnv("prometheus.scrape_interval", "PROM_SCRAPE_INTERVAL")
	v.BindEnv("prometheus.target", "PROM_TARGET")

	// Link policy
	v.BindEnv("link.code_length", "LINK_CODE_LENGTH")
	v.BindEnv("link.default_expiry_days", "LINK_DEFAULT_EXPIRY_DAYS")
	v.BindEnv("link.max_expiry_days", "LINK_MAX_EXPIRY_DAYS")
	v.BindEnv("link.cache_ttl_ceiling", "LINK_CACHE_TTL_CEILING")

	// Rate limiting
	v.BindEnv("ratelimit.per_window", "RATELIMIT_PER_WINDOW")
	v.BindEnv("ratelimit.window", "RATELIMIT_WINDOW")

	// Reconciler
	v.BindEnv("reconciler.interval", "RECONCILER_INTERVAL")
	v.BindEnv("reconciler.delete_expired", "RECONCILER_DELETE_EXPIRED")
}
