package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/predictionbot/internal/blob/s3"
	"github.com/alanyoungcy/predictionbot/internal/domain"
	"github.com/alanyoungcy/predictionbot/internal/server"
	"github.com/alanyoungcy/predictionbot/internal/server/handler"
	"github.com/alanyoungcy/predictionbot/internal/server/ws"
	"github.com/alanyoungcy/predictionbot/internal/service"
)

// ResolverMode runs the resolution loop and the retention job.
func (a *App) ResolverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting resolver mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startResolver(ctx, g, deps)
	return g.Wait()
}

// ServerMode serves the status API only. Resolver status reports that this
// process does not resolve.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// FullMode runs the resolver, the retention job and the status API in one
// process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	resolver := a.startResolver(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, resolver)
	return g.Wait()
}

// startResolver builds the resolution and retention services and adds them
// to g.
func (a *App) startResolver(ctx context.Context, g *errgroup.Group, deps *Dependencies) *service.ResolutionService {
	rc := a.cfg.Resolver
	resolver := service.NewResolutionService(deps.Predictions, deps.Gateway, service.ResolutionConfig{
		Interval:     rc.Interval.Duration,
		Concurrency:  rc.Concurrency,
		FetchTimeout: rc.FetchTimeout.Duration,
		UseLock:      rc.UseLock,
	}, a.logger).
		WithAudit(deps.Audit).
		WithNotifier(deps.Notifier).
		WithMetrics(deps.Metrics)
	if deps.LockManager != nil {
		resolver.WithLock(deps.LockManager)
	}
	if deps.SignalBus != nil {
		resolver.WithBus(deps.SignalBus)
	}

	g.Go(func() error {
		return resolver.Run(ctx)
	})

	if a.cfg.Retention.Enabled {
		retention := service.NewRetentionService(deps.Predictions, deps.Archiver, a.cfg.Retention.Days, a.logger).
			WithAudit(deps.Audit).
			WithMetrics(deps.Metrics).
			WithNotifier(deps.Notifier)
		g.Go(func() error {
			return retention.RunCron(ctx, a.cfg.Retention.Cron)
		})
	} else {
		a.logger.InfoContext(ctx, "retention disabled")
	}

	return resolver
}

// startHTTPServer adds the status API, and the websocket hub when a signal
// bus is available, to g. resolver may be nil.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, resolver *service.ResolutionService) {
	var status handler.ResolverStatus
	if resolver != nil {
		status = resolver
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(deps.Health, a.logger),
		Resolver:    handler.NewResolverHandler(a.cfg.Mode, status),
		Predictions: handler.NewPredictionHandler(deps.Predictions, a.logger),
		Risk:        handler.NewRiskHandler(),
		Audit:       handler.NewAuditHandler(deps.Audit, a.logger),
		Metrics:     promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, s3blob.ArchivePrefix, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:         a.cfg.Mode,
			StartedAt:    time.Now().UTC(),
			Channel:      domain.ChannelPredictionResolved,
			ReplayStream: domain.StreamPredictionResolved,
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srvCfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}
	if deps.RateLimiter != nil && a.cfg.Server.RateLimitPerMinute > 0 {
		srvCfg.RateLimiter = deps.RateLimiter
		srvCfg.RateLimit = a.cfg.Server.RateLimitPerMinute
		srvCfg.RateWindow = time.Minute
	}
	srv := server.NewServer(srvCfg, handlers, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
			return err
		}
		return nil
	})
}
