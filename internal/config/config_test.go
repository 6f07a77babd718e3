package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Fixtures.APIKey = "key"
	return cfg
}

func TestDefaultsValidateOnceKeySet(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "arb" }, "unknown mode"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{"missing api key", func(c *Config) { c.Fixtures.APIKey = "" }, "fixtures: api_key"},
		{"zero interval", func(c *Config) { c.Resolver.Interval.Duration = 0 }, "resolver: interval"},
		{"zero concurrency", func(c *Config) { c.Resolver.Concurrency = 0 }, "resolver: concurrency"},
		{"bad cron", func(c *Config) { c.Retention.Cron = "0 4 * *" }, "retention: cron"},
		{"zero days", func(c *Config) { c.Retention.Days = 0 }, "retention: days"},
		{"archive without bucket", func(c *Config) { c.Retention.ArchiveToS3 = true }, "s3: bucket"},
		{"half telegram", func(c *Config) { c.Notify.TelegramToken = "t" }, "telegram_token"},
		{"pool min > max", func(c *Config) { c.Supabase.PoolMinConns = 20 }, "pool_min_conns"},
		{"redis without addr", func(c *Config) { c.Redis.Addr = "" }, "redis: addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestValidateServerModeSkipsFixtureKey(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateRedisDisabledSkipsAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Enabled = false
	cfg.Redis.Addr = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestModes(t *testing.T) {
	tests := []struct {
		mode             string
		resolver, server bool
	}{
		{"resolver", true, false},
		{"server", false, true},
		{"full", true, true},
		{"FULL", true, true},
	}
	for _, tt := range tests {
		cfg := Config{Mode: tt.mode}
		if cfg.RunsResolver() != tt.resolver || cfg.RunsServer() != tt.server {
			t.Errorf("mode %q: resolver=%v server=%v", tt.mode, cfg.RunsResolver(), cfg.RunsServer())
		}
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "resolver"

[fixtures]
api_key = "from-file"

[resolver]
interval = "45s"
concurrency = 3

[retention]
days = 5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PREDBOT_RESOLVER_CONCURRENCY", "12")
	t.Setenv("PREDBOT_NOTIFY_EVENTS", "prediction_won, ,tick_failed")
	t.Setenv("PREDBOT_REDIS_SNAPSHOT_TTL", "1m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Mode != "resolver" {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.Fixtures.APIKey != "from-file" {
		t.Errorf("APIKey = %q", cfg.Fixtures.APIKey)
	}
	if cfg.Resolver.Interval.Duration != 45*time.Second {
		t.Errorf("Interval = %v", cfg.Resolver.Interval.Duration)
	}
	if cfg.Resolver.Concurrency != 12 {
		t.Errorf("Concurrency = %d, want env override 12", cfg.Resolver.Concurrency)
	}
	if cfg.Retention.Days != 5 {
		t.Errorf("Days = %d", cfg.Retention.Days)
	}
	if cfg.Redis.SnapshotTTL.Duration != time.Minute {
		t.Errorf("SnapshotTTL = %v", cfg.Redis.SnapshotTTL.Duration)
	}
	if got := strings.Join(cfg.Notify.Events, "|"); got != "prediction_won|tick_failed" {
		t.Errorf("Events = %q", got)
	}
	// Untouched sections keep their defaults.
	if cfg.Retention.Cron != "0 4 * * *" {
		t.Errorf("Cron = %q", cfg.Retention.Cron)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("Load() error = nil for missing file")
	}
}

func TestPrefixedEnvWinsOverAlias(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://alias")
	t.Setenv("PREDBOT_SUPABASE_DSN", "postgres://primary")
	cfg := Defaults()
	applyEnvOverrides(&cfg)
	if cfg.Supabase.DSN != "postgres://primary" {
		t.Fatalf("DSN = %q", cfg.Supabase.DSN)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Supabase.Password = "pw"
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Notify.Events = []string{"prediction_won"}

	red := RedactedConfig(&cfg)
	if red.Fixtures.APIKey != "***" || red.Supabase.Password != "***" || red.Notify.TelegramToken != "***" {
		t.Fatalf("secrets not redacted: %+v", red)
	}
	if red.Redis.Password != "" {
		t.Errorf("empty secret should stay empty, got %q", red.Redis.Password)
	}
	if cfg.Fixtures.APIKey != "key" {
		t.Errorf("original mutated: %q", cfg.Fixtures.APIKey)
	}
	red.Notify.Events[0] = "x"
	if cfg.Notify.Events[0] != "prediction_won" {
		t.Errorf("events slice shared with original")
	}
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	if err != nil {
		t.Fatalf("Load(config.example.toml) error = %v", err)
	}
	def := Defaults()
	if !reflect.DeepEqual(*cfg, def) {
		t.Errorf("config.example.toml drifted from Defaults():\n got  %+v\n want %+v", *cfg, def)
	}
}
