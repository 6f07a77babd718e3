package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/alanyoungcy/predictionbot/internal/domain"
	"github.com/alanyoungcy/predictionbot/internal/market"
	"github.com/alanyoungcy/predictionbot/internal/resolver"
)

// TickLockKey is the LockManager key held for the duration of a tick.
const TickLockKey = "resolver:tick"

// Skip reasons reported to ResolutionMetrics.
const (
	SkipBusy       = "busy"
	SkipLockHeld   = "lock_held"
	SkipLockFailed = "lock_failed"
)

// ResolutionNotifier receives terminal transitions and tick failures.
type ResolutionNotifier interface {
	NotifyResolved(ctx context.Context, ev domain.ResolvedEvent) error
	NotifyTickFailed(ctx context.Context, err error) error
}

// ResolutionMetrics records tick outcomes.
type ResolutionMetrics interface {
	ObserveTick(s domain.TickSummary)
	ObserveResolved(result domain.PredictionResult)
	ObserveSkipped(reason string)
}

// ResolutionConfig holds the scheduler knobs.
type ResolutionConfig struct {
	Interval     time.Duration
	Concurrency  int
	FetchTimeout time.Duration
	UseLock      bool
}

// ResolutionService drives active predictions to a terminal result: every
// interval it lists active predictions, fetches match snapshots, evaluates
// each market and completes the ones whose outcome is decided.
type ResolutionService struct {
	store    domain.PredictionStore
	gateway  domain.SnapshotGateway
	cfg      ResolutionConfig
	logger   *slog.Logger
	lock     domain.LockManager
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier ResolutionNotifier
	metrics  ResolutionMetrics

	flight  singleflight.Group
	running atomic.Bool
	last    atomic.Pointer[domain.TickSummary]
	now     func() time.Time
}

// NewResolutionService creates a ResolutionService. Optional collaborators
// are attached with the With* methods before Run is called.
func NewResolutionService(
	store domain.PredictionStore,
	gateway domain.SnapshotGateway,
	cfg ResolutionConfig,
	logger *slog.Logger,
) *ResolutionService {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	return &ResolutionService{
		store:   store,
		gateway: gateway,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "resolution_service")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithLock serialises ticks across replicas.
func (s *ResolutionService) WithLock(lock domain.LockManager) *ResolutionService {
	s.lock = lock
	return s
}

// WithBus publishes resolution events.
func (s *ResolutionService) WithBus(bus domain.SignalBus) *ResolutionService {
	s.bus = bus
	return s
}

// WithAudit records every transition in the audit log.
func (s *ResolutionService) WithAudit(audit domain.AuditStore) *ResolutionService {
	s.audit = audit
	return s
}

// WithNotifier forwards transitions to chat channels.
func (s *ResolutionService) WithNotifier(n ResolutionNotifier) *ResolutionService {
	s.notifier = n
	return s
}

// WithMetrics records tick metrics.
func (s *ResolutionService) WithMetrics(m ResolutionMetrics) *ResolutionService {
	s.metrics = m
	return s
}

// Run ticks once immediately and then on every interval until ctx is done.
// Call in a goroutine.
func (s *ResolutionService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "resolver started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("concurrency", s.cfg.Concurrency),
	)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.scheduledTick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "resolver stopped")
			return ctx.Err()
		case <-ticker.C:
			s.scheduledTick(ctx)
		}
	}
}

// scheduledTick runs a tick unless one is already in flight locally or,
// when locking is enabled, on another replica.
func (s *ResolutionService) scheduledTick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped(ctx, SkipBusy)
		return
	}
	defer s.running.Store(false)

	if s.cfg.UseLock && s.lock != nil {
		unlock, err := s.lock.Acquire(ctx, TickLockKey, s.cfg.Interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.skipped(ctx, SkipLockHeld)
				return
			}
			s.logger.ErrorContext(ctx, "acquire tick lock failed", slog.String("error", err.Error()))
			s.skipped(ctx, SkipLockFailed)
			return
		}
		defer unlock()
	}

	if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "resolver tick failed", slog.String("error", err.Error()))
	}
}

func (s *ResolutionService) skipped(ctx context.Context, reason string) {
	s.logger.DebugContext(ctx, "tick skipped", slog.String("reason", reason))
	if s.metrics != nil {
		s.metrics.ObserveSkipped(reason)
	}
}

// predictionOutcome is what one worker contributes to the summary.
type predictionOutcome struct {
	evaluated    bool
	unknown      bool
	transitioned bool
	failure      *domain.TickFailure
}

// Tick runs one resolution pass. Failures on individual predictions are
// reported in the summary; only a failure to list active predictions is
// returned as an error.
func (s *ResolutionService) Tick(ctx context.Context) (domain.TickSummary, error) {
	summary := domain.TickSummary{StartedAt: s.now(), Failures: []domain.TickFailure{}}

	preds, err := s.store.ListActive(ctx)
	if err != nil {
		err = fmt.Errorf("resolution_service: list active: %w", err)
		if s.notifier != nil {
			if nerr := s.notifier.NotifyTickFailed(ctx, err); nerr != nil {
				s.logger.WarnContext(ctx, "tick failure notification failed", slog.String("error", nerr.Error()))
			}
		}
		return summary, err
	}
	summary.Active = len(preds)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)
	for _, p := range preds {
		g.Go(func() error {
			out := s.resolveOne(ctx, p)
			mu.Lock()
			defer mu.Unlock()
			if out.evaluated {
				summary.Evaluated++
			}
			if out.unknown {
				summary.Unknown++
			}
			if out.transitioned {
				summary.Transitioned++
			}
			if out.failure != nil {
				summary.Failures = append(summary.Failures, *out.failure)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = s.now().Sub(summary.StartedAt)
	s.last.Store(&summary)
	if s.metrics != nil {
		s.metrics.ObserveTick(summary)
	}

	s.logger.InfoContext(ctx, "tick complete",
		slog.Int("active", summary.Active),
		slog.Int("evaluated", summary.Evaluated),
		slog.Int("transitioned", summary.Transitioned),
		slog.Int("unknown", summary.Unknown),
		slog.Int("failures", len(summary.Failures)),
		slog.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// LastSummary returns the most recent tick summary, or false if no tick has
// completed yet.
func (s *ResolutionService) LastSummary() (domain.TickSummary, bool) {
	sum := s.last.Load()
	if sum == nil {
		return domain.TickSummary{}, false
	}
	return *sum, true
}

// Running reports whether a tick is in flight.
func (s *ResolutionService) Running() bool {
	return s.running.Load()
}

func (s *ResolutionService) resolveOne(ctx context.Context, p domain.Prediction) predictionOutcome {
	log := s.logger.With(
		slog.String("prediction_id", p.ID),
		slog.String("match_id", p.MatchID),
	)

	spec := market.Classify(p.Label)
	if spec.IsUnknown() {
		log.WarnContext(ctx, "unknown market left pending", slog.String("label", p.Label))
		return predictionOutcome{
			unknown: true,
			failure: failure(p.ID, fmt.Errorf("%w: %q", domain.ErrUnknownMarket, p.Label)),
		}
	}

	snap, err := s.fetch(ctx, p.MatchID)
	if err == nil {
		err = snap.Validate()
	}
	if err != nil {
		log.WarnContext(ctx, "snapshot fetch failed", slog.String("error", err.Error()))
		return predictionOutcome{failure: failure(p.ID, err)}
	}

	decision := resolver.Evaluate(spec, snap)
	out := predictionOutcome{evaluated: true}
	if !decision.Outcome.Terminal() {
		return out
	}

	at := s.now()
	result := decision.Outcome.Result()
	ok, err := s.store.TryComplete(ctx, p.ID, result, decision.Scoreboard, at)
	if errors.Is(err, domain.ErrWriteConflict) {
		ok, err = false, nil
	}
	if err != nil {
		log.ErrorContext(ctx, "complete prediction failed", slog.String("error", err.Error()))
		out.failure = &domain.TickFailure{PredictionID: p.ID, Reason: domain.ReasonWriteFailed, Detail: err.Error()}
		return out
	}
	if !ok {
		// Already completed elsewhere.
		log.DebugContext(ctx, "prediction already completed")
		return out
	}
	out.transitioned = true

	log.InfoContext(ctx, "prediction resolved",
		slog.String("label", p.Label),
		slog.String("result", string(result)),
		slog.String("scoreboard", decision.Scoreboard.String()),
	)
	s.announce(ctx, domain.ResolvedEvent{
		Event:        domain.EventPredictionResolved,
		PredictionID: p.ID,
		MatchID:      p.MatchID,
		Label:        p.Label,
		Result:       result,
		Home:         decision.Scoreboard.Home,
		Away:         decision.Scoreboard.Away,
		ResolvedAt:   at,
	})
	return out
}

// fetch loads a snapshot, coalescing concurrent requests for the same match.
func (s *ResolutionService) fetch(ctx context.Context, matchID string) (domain.FixtureSnapshot, error) {
	v, err, _ := s.flight.Do(matchID, func() (any, error) {
		fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
		snap, err := s.gateway.FetchSnapshot(fctx, matchID)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", domain.ErrExternalTimeout, err)
		}
		return snap, err
	})
	if err != nil {
		return domain.FixtureSnapshot{}, err
	}
	return v.(domain.FixtureSnapshot), nil
}

// announce fans a completed transition out to the bus, audit log, metrics
// and notifier. None of these can undo the transition, so errors are logged.
func (s *ResolutionService) announce(ctx context.Context, ev domain.ResolvedEvent) {
	if s.metrics != nil {
		s.metrics.ObserveResolved(ev.Result)
	}

	if s.bus != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			if err := s.bus.Publish(ctx, domain.ChannelPredictionResolved, payload); err != nil {
				s.logger.WarnContext(ctx, "publish resolution failed", slog.String("error", err.Error()))
			}
			if err := s.bus.StreamAppend(ctx, domain.StreamPredictionResolved, payload); err != nil {
				s.logger.WarnContext(ctx, "append resolution stream failed", slog.String("error", err.Error()))
			}
		}
	}

	if s.audit != nil {
		detail := map[string]any{
			"prediction_id": ev.PredictionID,
			"match_id":      ev.MatchID,
			"label":         ev.Label,
			"result":        string(ev.Result),
			"home":          ev.Home,
			"away":          ev.Away,
		}
		if err := s.audit.Log(ctx, "prediction.resolved", detail); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyResolved(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "resolution notification failed", slog.String("error", err.Error()))
		}
	}
}

func failure(id string, err error) *domain.TickFailure {
	return &domain.TickFailure{PredictionID: id, Reason: failureReason(err), Detail: err.Error()}
}

// failureReason maps an error to the reason kind reported in a TickSummary.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownMarket):
		return domain.ReasonClassificationUnknown
	case errors.Is(err, domain.ErrExternalTimeout), errors.Is(err, context.DeadlineExceeded):
		return domain.ReasonExternalTimeout
	case errors.Is(err, domain.ErrNotFound):
		return domain.ReasonNotFound
	case errors.Is(err, domain.ErrSnapshotMalformed):
		return domain.ReasonSnapshotMalformed
	case errors.Is(err, domain.ErrRateLimited):
		return domain.ReasonRateLimited
	default:
		return domain.ReasonSnapshotUnavailable
	}
}
