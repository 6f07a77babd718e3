package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predictionbot/internal/domain"
	"github.com/alanyoungcy/predictionbot/internal/notify"
)

// RetentionMetrics records retention runs.
type RetentionMetrics interface {
	ObserveRetention(archived int, deleted int64)
}

// RetentionNotifier receives a short report after each run.
type RetentionNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// RetentionResult describes one retention run.
type RetentionResult struct {
	Cutoff      time.Time `json:"cutoff"`
	Archived    int       `json:"archived"`
	ArchivePath string    `json:"archive_path,omitempty"`
	Deleted     int64     `json:"deleted"`
}

// RetentionService removes completed predictions once they are older than
// the retention window, archiving them to cold storage first when an
// Archiver is configured.
type RetentionService struct {
	store    domain.PredictionStore
	archiver domain.Archiver
	days     int
	logger   *slog.Logger
	audit    domain.AuditStore
	metrics  RetentionMetrics
	notifier RetentionNotifier
	now      func() time.Time
}

// NewRetentionService creates a RetentionService. archiver may be nil, in
// which case rows are deleted without being archived.
func NewRetentionService(store domain.PredictionStore, archiver domain.Archiver, days int, logger *slog.Logger) *RetentionService {
	if days <= 0 {
		days = 2
	}
	return &RetentionService{
		store:    store,
		archiver: archiver,
		days:     days,
		logger:   logger.With(slog.String("component", "retention")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithAudit records each run in the audit log.
func (r *RetentionService) WithAudit(audit domain.AuditStore) *RetentionService {
	r.audit = audit
	return r
}

// WithMetrics records run counts.
func (r *RetentionService) WithMetrics(m RetentionMetrics) *RetentionService {
	r.metrics = m
	return r
}

// WithNotifier reports each run that removed rows.
func (r *RetentionService) WithNotifier(n RetentionNotifier) *RetentionService {
	r.notifier = n
	return r
}

// RunOnce archives and deletes completed predictions last updated before
// now minus the retention window. If archiving fails nothing is deleted.
func (r *RetentionService) RunOnce(ctx context.Context) (RetentionResult, error) {
	res := RetentionResult{Cutoff: r.now().Add(-time.Duration(r.days) * 24 * time.Hour)}
	r.logger.InfoContext(ctx, "starting retention run",
		slog.Time("cutoff", res.Cutoff),
		slog.Int("retention_days", r.days),
	)

	if r.archiver != nil {
		preds, err := r.store.ListCompletedBefore(ctx, res.Cutoff)
		if err != nil {
			return res, fmt.Errorf("retention: list completed before %v: %w", res.Cutoff, err)
		}
		path, err := r.archiver.ArchivePredictions(ctx, preds, res.Cutoff)
		if err != nil {
			return res, fmt.Errorf("retention: archive %d predictions: %w", len(preds), err)
		}
		res.Archived = len(preds)
		res.ArchivePath = path
	}

	deleted, err := r.store.DeleteCompletedBefore(ctx, res.Cutoff)
	if err != nil {
		return res, fmt.Errorf("retention: delete completed before %v: %w", res.Cutoff, err)
	}
	res.Deleted = deleted

	if r.metrics != nil {
		r.metrics.ObserveRetention(res.Archived, res.Deleted)
	}
	if r.audit != nil {
		if err := r.audit.Log(ctx, "retention.run", map[string]any{
			"cutoff":       res.Cutoff.Format(time.RFC3339),
			"archived":     res.Archived,
			"archive_path": res.ArchivePath,
			"deleted":      res.Deleted,
		}); err != nil {
			r.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	if r.notifier != nil && res.Deleted > 0 {
		msg := fmt.Sprintf("Removed %d completed predictions older than %s", res.Deleted, res.Cutoff.Format(time.RFC3339))
		if res.ArchivePath != "" {
			msg += "\nArchive: " + res.ArchivePath
		}
		if err := r.notifier.Notify(ctx, notify.EventRetention, "Retention run", msg); err != nil {
			r.logger.WarnContext(ctx, "retention notification failed", slog.String("error", err.Error()))
		}
	}

	r.logger.InfoContext(ctx, "retention run complete",
		slog.Int("archived", res.Archived),
		slog.Int64("deleted", res.Deleted),
		slog.String("archive_path", res.ArchivePath),
	)
	return res, nil
}

// RunCron runs RunOnce on a 5-field cron schedule (UTC) until ctx is done.
// Example: "0 4 * * *" runs daily at 04:00.
func (r *RetentionService) RunCron(ctx context.Context, expr string) error {
	sched, err := parseCron(expr)
	if err != nil {
		return fmt.Errorf("retention: parsing cron expression %q: %w", expr, err)
	}
	r.logger.InfoContext(ctx, "retention cron started", slog.String("cron", expr))

	for {
		next, err := sched.next(r.now())
		if err != nil {
			return fmt.Errorf("retention: %q: %w", expr, err)
		}
		wait := time.Until(next)
		r.logger.DebugContext(ctx, "retention waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.InfoContext(ctx, "retention cron stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "retention run failed", slog.String("error", err.Error()))
			}
		}
	}
}
