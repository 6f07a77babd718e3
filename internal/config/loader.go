package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads PREDBOT_* environment variables and overwrites the
// matching Config fields when a variable is set and non-empty.
func applyEnvOverrides(cfg *Config) {
	// ── Fixtures ──
	setStr(&cfg.Fixtures.BaseURL, "PREDBOT_FIXTURES_BASE_URL")
	setStr(&cfg.Fixtures.APIKey, "API_FOOTBALL_KEY") // compatibility alias
	setStr(&cfg.Fixtures.APIKey, "PREDBOT_FIXTURES_API_KEY")
	setFloat64(&cfg.Fixtures.RequestsPerSecond, "PREDBOT_FIXTURES_REQUESTS_PER_SECOND")
	setDuration(&cfg.Fixtures.Timeout, "PREDBOT_FIXTURES_TIMEOUT")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.DSN, "PREDBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.Host, "PREDBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "PREDBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "PREDBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "PREDBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "PREDBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "PREDBOT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "PREDBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "PREDBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "PREDBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PREDBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PREDBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "PREDBOT_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.SnapshotTTL, "PREDBOT_REDIS_SNAPSHOT_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "PREDBOT_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDBOT_S3_FORCE_PATH_STYLE")

	// ── Resolver ──
	setDuration(&cfg.Resolver.Interval, "PREDBOT_RESOLVER_INTERVAL")
	setInt(&cfg.Resolver.Concurrency, "PREDBOT_RESOLVER_CONCURRENCY")
	setDuration(&cfg.Resolver.FetchTimeout, "PREDBOT_RESOLVER_FETCH_TIMEOUT")
	setBool(&cfg.Resolver.UseLock, "PREDBOT_RESOLVER_USE_LOCK")

	// ── Retention ──
	setBool(&cfg.Retention.Enabled, "PREDBOT_RETENTION_ENABLED")
	setInt(&cfg.Retention.Days, "PREDBOT_RETENTION_DAYS")
	setStr(&cfg.Retention.Cron, "PREDBOT_RETENTION_CRON")
	setBool(&cfg.Retention.ArchiveToS3, "PREDBOT_RETENTION_ARCHIVE_TO_S3")

	// ── Server ──
	setInt(&cfg.Server.Port, "PORT") // compatibility alias for PaaS hosts
	setInt(&cfg.Server.Port, "PREDBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "PREDBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDBOT_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.ShutdownTimeout, "PREDBOT_SERVER_SHUTDOWN_TIMEOUT")
	setInt(&cfg.Server.RateLimitPerMinute, "PREDBOT_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDBOT_MODE")
	setStr(&cfg.LogLevel, "PREDBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
