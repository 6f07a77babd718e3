package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	s3blob "github.com/alanyoungcy/predictionbot/internal/blob/s3"
	"github.com/alanyoungcy/predictionbot/internal/cache/redis"
	"github.com/alanyoungcy/predictionbot/internal/config"
	"github.com/alanyoungcy/predictionbot/internal/domain"
	"github.com/alanyoungcy/predictionbot/internal/metrics"
	"github.com/alanyoungcy/predictionbot/internal/notify"
	"github.com/alanyoungcy/predictionbot/internal/platform/fixtures"
	"github.com/alanyoungcy/predictionbot/internal/server/handler"
	"github.com/alanyoungcy/predictionbot/internal/store/postgres"
)

// Dependencies bundles the concrete implementations the modes run on.
// Redis-backed fields are nil when redis.enabled is false; blob fields are
// nil without an S3 bucket.
type Dependencies struct {
	// Stores
	Predictions domain.PredictionStore
	Audit       domain.AuditStore

	// Fixture feed, wrapped in the snapshot cache when Redis is on.
	Gateway domain.SnapshotGateway

	// Redis
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Observability
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// Health lists the dependencies pinged by /api/health.
	Health map[string]handler.Pinger
}

// Wire constructs every dependency from cfg and returns them with a cleanup
// function that releases connections in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Health:  make(map[string]handler.Pinger),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Supabase.DSN,
		Host:     cfg.Supabase.Host,
		Port:     cfg.Supabase.Port,
		Database: cfg.Supabase.Database,
		User:     cfg.Supabase.User,
		Password: cfg.Supabase.Password,
		SSLMode:  cfg.Supabase.SSLMode,
		MaxConns: cfg.Supabase.PoolMaxConns,
		MinConns: cfg.Supabase.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Health["postgres"] = pgClient

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Predictions = postgres.NewPredictionStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- Redis ---
	var snapshotCache domain.SnapshotCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Health["redis"] = redisClient

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		snapshotCache = redis.NewSnapshotCache(redisClient, cfg.Redis.SnapshotTTL.Duration)
	} else {
		logger.Warn("redis disabled: no snapshot cache, tick lock or event bus")
	}

	// --- Fixture feed ---
	opts := []fixtures.Option{
		fixtures.WithHTTPClient(&http.Client{Timeout: cfg.Fixtures.Timeout.Duration}),
	}
	if deps.RateLimiter != nil {
		opts = append(opts, fixtures.WithSharedRateLimiter(deps.RateLimiter, int(cfg.Fixtures.RequestsPerSecond)))
	}
	var gateway domain.SnapshotGateway = fixtures.NewClient(
		cfg.Fixtures.BaseURL,
		cfg.Fixtures.APIKey,
		cfg.Fixtures.RequestsPerSecond,
		opts...,
	)
	if snapshotCache != nil {
		gateway = fixtures.NewCachedGateway(gateway, snapshotCache, logger)
	}
	deps.Gateway = gateway

	// --- S3 blob storage ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		if cfg.Retention.ArchiveToS3 {
			deps.Archiver = s3blob.NewPredictionArchiver(s3blob.NewWriter(s3Client), reader, deps.Audit)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Notifier.OnSend = deps.Metrics.ObserveNotification

	return deps, cleanup, nil
}
