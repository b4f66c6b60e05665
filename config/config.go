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

	// Application behaviour
	App AppConfig `mapstructure:"app"`

	// Burst protection thresholds
	Burst BurstConfig `mapstructure:"burst"`

	// Background workers
	Workers WorkersConfig `mapstructure:"workers"`

	// GeoIP database
	GeoIP GeoIPConfig `mapstructure:"geoip"`
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
	PoolSize int    `mapstructure:"pool_size"`
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

// AppConfig carries the runtime knobs of the shortener itself. String-typed
// entries in the app_config table override these at startup.
type AppConfig struct {
	ShortCodeLength        int    `mapstructure:"short_code_length"`
	ShortCodePoolSize      int    `mapstructure:"short_code_pool_size"`
	IPSalt                 string `mapstructure:"ip_salt"`
	RateLimitIP            string `mapstructure:"rate_limit_ip"`
	RateLimitUser          string `mapstructure:"rate_limit_user"`
	MaxURLsPerUser         int    `mapstructure:"max_urls_per_user"`
	MaxBatchSize           int    `mapstructure:"max_batch_size"`
	URLMappingCacheTimeout int    `mapstructure:"url_mapping_cache_timeout"`
	AnalyticsTrackIP       bool   `mapstructure:"analytics_track_ip"`
	RequestTimeoutSeconds  int    `mapstructure:"request_timeout_seconds"`
}

type BurstConfig struct {
	ShortWindowSeconds  int   `mapstructure:"short_window_seconds"`
	ShortLimit          int64 `mapstructure:"short_limit"`
	MediumWindowSeconds int   `mapstructure:"medium_window_seconds"`
	MediumLimit         int64 `mapstructure:"medium_limit"`
	LongWindowSeconds   int   `mapstructure:"long_window_seconds"`
	LongLimit           int64 `mapstructure:"long_limit"`
}

type WorkersConfig struct {
	PoolRefillSpec    string `mapstructure:"pool_refill_spec"`
	AnalyticsSpec     string `mapstructure:"analytics_spec"`
	ExpirySweepSpec   string `mapstructure:"expiry_sweep_spec"`
	LinkRotSpec       string `mapstructure:"link_rot_spec"`
	LinkRotStaleDays  int    `mapstructure:"link_rot_stale_days"`
	AnalyticsBatch    int    `mapstructure:"analytics_batch"`
	LinkRotTimeoutSec int    `mapstructure:"link_rot_timeout_seconds"`
}

type GeoIPConfig struct {
	DatabasePath string `mapstructure:"database_path"`
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

	setDefaults(v)

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

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.App.ShortCodeLength < 4 || c.App.ShortCodeLength > 128 {
		return fmt.Errorf("config: short_code_length must be in [4, 128], got %d", c.App.ShortCodeLength)
	}
	if c.App.ShortCodePoolSize <= 0 {
		return fmt.Errorf("config: short_code_pool_size must be positive, got %d", c.App.ShortCodePoolSize)
	}
	if c.App.IPSalt == "" {
		return fmt.Errorf("config: ip_salt must be set; changing it invalidates new-visitor detection")
	}
	return nil
}

// RequestTimeout returns the per-request deadline for the redirect path.
func (c *AppConfig) RequestTimeout() time.Duration {
	if c.RequestTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// RateLimit describes a parsed "<count>/<unit>" limit string.
type RateLimit struct {
	Count  int
	Window time.Duration
}

// ParseRateLimit parses strings such as "100/hour", "20/minute" or "5/second".
func ParseRateLimit(s string) (RateLimit, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return RateLimit{}, fmt.Errorf("config: invalid rate limit %q", s)
	}

	var count int
	if _, err := fmt.Sscanf(parts[0], "%d", &count); err != nil || count <= 0 {
		return RateLimit{}, fmt.Errorf("config: invalid rate limit count %q", parts[0])
	}

	var window time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[1])) {
	case "second", "sec", "s":
		window = time.Second
	case "minute", "min", "m":
		window = time.Minute
	case "hour", "h":
		window = time.Hour
	default:
		return RateLimit{}, fmt.Errorf("config: invalid rate limit unit %q", parts[1])
	}

	return RateLimit{Count: count, Window: window}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.short_code_length", 8)
	v.SetDefault("app.short_code_pool_size", 10000)
	v.SetDefault("app.rate_limit_ip", "100/minute")
	v.SetDefault("app.rate_limit_user", "1000/hour")
	v.SetDefault("app.max_urls_per_user", 100)
	v.SetDefault("app.max_batch_size", 50)
	v.SetDefault("app.url_mapping_cache_timeout", 300)
	v.SetDefault("app.analytics_track_ip", true)
	v.SetDefault("app.request_timeout_seconds", 10)

	v.SetDefault("burst.short_window_seconds", 10)
	v.SetDefault("burst.short_limit", 10)
	v.SetDefault("burst.medium_window_seconds", 60)
	v.SetDefault("burst.medium_limit", 50)
	v.SetDefault("burst.long_window_seconds", 3600)
	v.SetDefault("burst.long_limit", 1000)

	v.SetDefault("workers.pool_refill_spec", "@every 10m")
	v.SetDefault("workers.analytics_spec", "@every 30s")
	v.SetDefault("workers.expiry_sweep_spec", "0 0 * * *")
	v.SetDefault("workers.link_rot_spec", "0 0 * * 0")
	v.SetDefault("workers.link_rot_stale_days", 7)
	v.SetDefault("workers.analytics_batch", 100)
	v.SetDefault("workers.link_rot_timeout_seconds", 10)
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

	// Application secrets
	v.BindEnv("app.ip_salt", "IP_HASH_SALT")
	v.BindEnv("geoip.database_path", "GEOIP_DB_PATH")
}
