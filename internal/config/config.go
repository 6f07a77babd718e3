// Package config defines the top-level configuration for the prediction bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PREDBOT_* environment variables.
type Config struct {
	Fixtures  FixturesConfig  `toml:"fixtures"`
	Supabase  SupabaseConfig  `toml:"supabase"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Resolver  ResolverConfig  `toml:"resolver"`
	Retention RetentionConfig `toml:"retention"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// FixturesConfig holds the live fixture feed endpoint and credentials.
type FixturesConfig struct {
	BaseURL           string   `toml:"base_url"`
	APIKey            string   `toml:"api_key"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Timeout           duration `toml:"timeout"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. With Redis disabled the
// resolver runs without the snapshot cache, the cross-replica tick lock and
// the event bus.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	KeyPrefix    string   `toml:"key_prefix"`
	SnapshotTTL  duration `toml:"snapshot_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ResolverConfig controls the resolution loop.
type ResolverConfig struct {
	Interval     duration `toml:"interval"`
	Concurrency  int      `toml:"concurrency"`
	FetchTimeout duration `toml:"fetch_timeout"`
	UseLock      bool     `toml:"use_lock"`
}

// RetentionConfig controls cleanup of completed predictions.
type RetentionConfig struct {
	Enabled     bool   `toml:"enabled"`
	Days        int    `toml:"days"`
	Cron        string `toml:"cron"`
	ArchiveToS3 bool   `toml:"archive_to_s3"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
	// RateLimitPerMinute caps requests per client IP; 0 disables. Needs Redis.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with the values in config.example.toml.
func Defaults() Config {
	return Config{
		Fixtures: FixturesConfig{
			BaseURL:           "https://v3.football.api-sports.io",
			RequestsPerSecond: 5,
			Timeout:           duration{10 * time.Second},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      true,
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			KeyPrefix:    "predbot:",
			SnapshotTTL:  duration{20 * time.Second},
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Region:         "us-east-1",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Resolver: ResolverConfig{
			Interval:     duration{30 * time.Second},
			Concurrency:  8,
			FetchTimeout: duration{5 * time.Second},
			UseLock:      true,
		},
		Retention: RetentionConfig{
			Enabled: true,
			Days:    2,
			Cron:    "0 4 * * *",
		},
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:        []string{"*"},
			ShutdownTimeout:    duration{10 * time.Second},
			RateLimitPerMinute: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"prediction_won", "prediction_lost", "tick_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"resolver": true,
	"server":   true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsResolver reports whether the configured mode runs the resolution loop.
func (c *Config) RunsResolver() bool {
	m := strings.ToLower(c.Mode)
	return m == "resolver" || m == "full"
}

// RunsServer reports whether the configured mode serves HTTP.
func (c *Config) RunsServer() bool {
	m := strings.ToLower(c.Mode)
	return m == "server" || m == "full"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: resolver, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Fixture feed is only needed where the resolver runs.
	if c.RunsResolver() {
		if c.Fixtures.BaseURL == "" {
			errs = append(errs, "fixtures: base_url must not be empty")
		}
		if c.Fixtures.APIKey == "" {
			errs = append(errs, "fixtures: api_key must not be empty")
		}
	}
	if c.Fixtures.RequestsPerSecond < 0 {
		errs = append(errs, "fixtures: requests_per_second must be >= 0")
	}

	// Supabase
	if strings.TrimSpace(c.Supabase.DSN) == "" {
		if c.Supabase.Host == "" {
			errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
		}
		if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
			errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
		}
		if c.Supabase.Database == "" {
			errs = append(errs, "supabase: database must not be empty")
		}
	}
	if c.Supabase.PoolMaxConns < 1 {
		errs = append(errs, "supabase: pool_max_conns must be >= 1")
	}
	if c.Supabase.PoolMinConns < 0 {
		errs = append(errs, "supabase: pool_min_conns must be >= 0")
	}
	if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
		errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Resolver
	if c.Resolver.Interval.Duration <= 0 {
		errs = append(errs, "resolver: interval must be > 0")
	}
	if c.Resolver.Concurrency < 1 {
		errs = append(errs, "resolver: concurrency must be >= 1")
	}
	if c.Resolver.FetchTimeout.Duration <= 0 {
		errs = append(errs, "resolver: fetch_timeout must be > 0")
	}

	// Retention
	if c.Retention.Enabled {
		if c.Retention.Days < 1 {
			errs = append(errs, "retention: days must be >= 1")
		}
		if len(strings.Fields(c.Retention.Cron)) != 5 {
			errs = append(errs, fmt.Sprintf("retention: cron must have 5 fields, got %q", c.Retention.Cron))
		}
		if c.Retention.ArchiveToS3 {
			if c.S3.Bucket == "" {
				errs = append(errs, "s3: bucket must not be empty when retention.archive_to_s3 is set")
			}
			if c.S3.Region == "" {
				errs = append(errs, "s3: region must not be empty when retention.archive_to_s3 is set")
			}
		}
	}

	// Server
	if c.RunsServer() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMinute < 0 {
			errs = append(errs, "server: rate_limit_per_minute must be >= 0")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
