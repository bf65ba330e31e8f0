package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	ServerPort     string        `koanf:"server_port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`

	DBHost         string `koanf:"db_host"`
	DBPort         string `koanf:"db_port"`
	DBUser         string `koanf:"db_user"`
	DBPassword     string `koanf:"db_password"`
	DBName         string `koanf:"db_name"`
	DBSSLMode      string `koanf:"db_sslmode"`
	DBMaxOpenConns int    `koanf:"db_max_open_conns"`
	DBMaxIdleConns int    `koanf:"db_max_idle_conns"`
	DBAutoMigrate  bool   `koanf:"db_auto_migrate"`

	// RedisURL is optional. Without it each instance keeps its own trending snapshot.
	RedisURL string `koanf:"redis_url"`

	JWTSecret string `koanf:"jwt_secret"`

	TrendingTTL     time.Duration `koanf:"trending_ttl"`
	TrendingWindow  time.Duration `koanf:"trending_window"`
	RecentWindow    time.Duration `koanf:"recent_window"`
	PopularMinViews int           `koanf:"popular_min_views"`
	RandomSeed      int64         `koanf:"random_seed"`

	// TrendingRefreshInterval enables the background refresher when positive.
	TrendingRefreshInterval time.Duration `koanf:"trending_refresh_interval"`

	FeedDefaultLimit int `koanf:"feed_default_limit"`
	FeedMaxLimit     int `koanf:"feed_max_limit"`

	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// Default returns the configuration used when no environment override is present.
func Default() Config {
	return Config{
		ServerPort:     "8080",
		RequestTimeout: 10 * time.Second,

		DBHost:         "localhost",
		DBPort:         "5432",
		DBSSLMode:      "require",
		DBMaxOpenConns: 25,
		DBMaxIdleConns: 5,

		TrendingTTL:     time.Hour,
		TrendingWindow:  24 * time.Hour,
		RecentWindow:    24 * time.Hour,
		PopularMinViews: 10,

		FeedDefaultLimit: 20,
		FeedMaxLimit:     50,

		RateLimitRequests: 120,
		RateLimitWindow:   time.Minute,

		LogLevel:  "info",
		LogFormat: "json",
	}
}

// LoadConfig reads .env (if any), then layers environment variables over Default.
// DB_HOST maps to db_host, TRENDING_TTL to trending_ttl and so on.
func LoadConfig() (*Config, error) {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.DBName == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.TrendingTTL <= 0 {
		errs = append(errs, fmt.Errorf("TRENDING_TTL must be positive, got %s", c.TrendingTTL))
	}
	if c.TrendingWindow <= 0 || c.RecentWindow <= 0 {
		errs = append(errs, errors.New("TRENDING_WINDOW and RECENT_WINDOW must be positive"))
	}
	if c.FeedDefaultLimit <= 0 || c.FeedMaxLimit < c.FeedDefaultLimit {
		errs = append(errs, fmt.Errorf("invalid feed limits: default=%d max=%d", c.FeedDefaultLimit, c.FeedMaxLimit))
	}
	if c.PopularMinViews < 0 {
		errs = append(errs, fmt.Errorf("POPULAR_MIN_VIEWS must not be negative, got %d", c.PopularMinViews))
	}
	if c.TrendingRefreshInterval < 0 {
		errs = append(errs, errors.New("TRENDING_REFRESH_INTERVAL must not be negative"))
	}
	if c.RateLimitRequests < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS must not be negative"))
	}
	return errors.Join(errs...)
}

// DSN builds the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

// MigrateURL builds the URL form golang-migrate expects.
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}
