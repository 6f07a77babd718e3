package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 20, 45, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory PredictionStore with compare-and-set completion.
type memStore struct {
	mu        sync.Mutex
	rows      map[string]domain.Prediction
	listErr   error
	writeErr  error
	conflict  bool // TryComplete reports the row as already completed
	listCalls atomic.Int32
}

func newMemStore(preds ...domain.Prediction) *memStore {
	s := &memStore{rows: make(map[string]domain.Prediction)}
	for _, p := range preds {
		if p.Status == "" {
			p.Status = domain.PredictionActive
		}
		s.rows[p.ID] = p
	}
	return s
}

func (s *memStore) Create(_ context.Context, p domain.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[p.ID] = p
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return domain.Prediction{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memStore) List(_ context.Context, status domain.PredictionStatus, _ domain.ListOpts) ([]domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Prediction
	for _, p := range s.rows {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) ListActive(ctx context.Context) ([]domain.Prediction, error) {
	s.listCalls.Add(1)
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.List(ctx, domain.PredictionActive, domain.ListOpts{})
}

func (s *memStore) TryComplete(_ context.Context, id string, result domain.PredictionResult, board domain.Score, at time.Time) (bool, error) {
	if s.writeErr != nil {
		return false, s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok || s.conflict || p.Status != domain.PredictionActive {
		return false, nil
	}
	home, away := board.Home, board.Away
	p.Status = domain.PredictionCompleted
	p.Result = result
	p.HomeScore = &home
	p.AwayScore = &away
	p.UpdatedAt = at
	s.rows[id] = p
	return true, nil
}

func (s *memStore) ListCompletedBefore(_ context.Context, before time.Time) ([]domain.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Prediction
	for _, p := range s.rows {
		if p.Status == domain.PredictionCompleted && p.UpdatedAt.Before(before) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) DeleteCompletedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, p := range s.rows {
		if p.Status == domain.PredictionCompleted && p.UpdatedAt.Before(before) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// stubGateway serves snapshots (or errors) per match.
type stubGateway struct {
	mu    sync.Mutex
	snaps map[string]domain.FixtureSnapshot
	errs  map[string]error
	calls atomic.Int32
	block chan struct{} // when set, FetchSnapshot waits for it or ctx
}

func newStubGateway() *stubGateway {
	return &stubGateway{snaps: make(map[string]domain.FixtureSnapshot), errs: make(map[string]error)}
}

func (g *stubGateway) set(s domain.FixtureSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snaps[s.MatchID] = s
}

func (g *stubGateway) FetchSnapshot(ctx context.Context, matchID string) (domain.FixtureSnapshot, error) {
	g.calls.Add(1)
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return domain.FixtureSnapshot{}, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.errs[matchID]; ok {
		return domain.FixtureSnapshot{}, err
	}
	s, ok := g.snaps[matchID]
	if !ok {
		return domain.FixtureSnapshot{}, fmt.Errorf("stub: %w", domain.ErrNotFound)
	}
	return s, nil
}

type recordingBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newRecordingBus() *recordingBus {
	return &recordingBus{published: make(map[string][][]byte), streamed: make(map[string][][]byte)}
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *recordingBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed[stream] = append(b.streamed[stream], payload)
	return nil
}

func (b *recordingBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type recordingNotifier struct {
	mu         sync.Mutex
	resolved   []domain.ResolvedEvent
	tickFailed int
}

func (n *recordingNotifier) NotifyResolved(_ context.Context, ev domain.ResolvedEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, ev)
	return nil
}

func (n *recordingNotifier) NotifyTickFailed(context.Context, error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tickFailed++
	return nil
}

type recordingMetrics struct {
	mu       sync.Mutex
	ticks    int
	resolved map[domain.PredictionResult]int
	skipped  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{resolved: make(map[domain.PredictionResult]int), skipped: make(map[string]int)}
}

func (m *recordingMetrics) ObserveTick(domain.TickSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
}

func (m *recordingMetrics) ObserveResolved(r domain.PredictionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved[r]++
}

func (m *recordingMetrics) ObserveSkipped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped[reason]++
}

type stubLock struct {
	err      error
	acquired int
	released int
}

func (l *stubLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() { l.released++ }, nil
}

func newTestService(store domain.PredictionStore, gw domain.SnapshotGateway, cfg ResolutionConfig) *ResolutionService {
	svc := NewResolutionService(store, gw, cfg, discardLogger())
	svc.now = func() time.Time { return testNow }
	return svc
}

func pred(id, match, label string) domain.Prediction {
	return domain.Prediction{ID: id, MatchID: match, Label: label, Odds: 1.8, Status: domain.PredictionActive}
}

func fixture(match string, status domain.FixtureStatus, home, away int) domain.FixtureSnapshot {
	return domain.FixtureSnapshot{MatchID: match, Status: status, Goals: domain.Score{Home: home, Away: away}}
}

func TestTickOverGoalsEarlyWin(t *testing.T) {
	store := newMemStore(pred("p1", "1001", "2.5Ü MB"))
	gw := newStubGateway()
	bus := newRecordingBus()
	audit := &recordingAudit{}
	notifier := &recordingNotifier{}
	m := newRecordingMetrics()
	svc := newTestService(store, gw, ResolutionConfig{}).
		WithBus(bus).WithAudit(audit).WithNotifier(notifier).WithMetrics(m)
	ctx := context.Background()

	// First half, 1-0: not enough goals yet.
	gw.set(fixture("1001", domain.StatusFirstHalf, 1, 0))
	sum, err := svc.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if sum.Evaluated != 1 || sum.Transitioned != 0 || len(sum.Failures) != 0 {
		t.Fatalf("first tick summary = %+v", sum)
	}
	p, _ := store.GetByID(ctx, "p1")
	if p.Status != domain.PredictionActive {
		t.Fatalf("status after 1-0 = %s, want active", p.Status)
	}

	// Second half, 2-1: three goals beat 2.5.
	gw.set(fixture("1001", domain.StatusSecondHalf, 2, 1))
	sum, err = svc.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if sum.Transitioned != 1 {
		t.Fatalf("second tick transitioned = %d, want 1", sum.Transitioned)
	}
	p, _ = store.GetByID(ctx, "p1")
	if p.Status != domain.PredictionCompleted || p.Result != domain.ResultWon {
		t.Fatalf("prediction = %s/%s, want completed/won", p.Status, p.Result)
	}
	if p.HomeScore == nil || p.AwayScore == nil || *p.HomeScore != 2 || *p.AwayScore != 1 {
		t.Fatalf("scoreboard = %v-%v, want 2-1", p.HomeScore, p.AwayScore)
	}
	if !p.UpdatedAt.Equal(testNow) {
		t.Errorf("UpdatedAt = %v, want %v", p.UpdatedAt, testNow)
	}

	msgs := bus.published[domain.ChannelPredictionResolved]
	if len(msgs) != 1 {
		t.Fatalf("published %d events, want 1", len(msgs))
	}
	var ev domain.ResolvedEvent
	if err := json.Unmarshal(msgs[0], &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Event != domain.EventPredictionResolved || ev.PredictionID != "p1" || ev.Result != domain.ResultWon || ev.Home != 2 || ev.Away != 1 {
		t.Errorf("event = %+v", ev)
	}
	if len(bus.streamed[domain.StreamPredictionResolved]) != 1 {
		t.Errorf("stream entries = %d, want 1", len(bus.streamed[domain.StreamPredictionResolved]))
	}
	if len(audit.events) != 1 || audit.events[0] != "prediction.resolved" {
		t.Errorf("audit events = %v", audit.events)
	}
	if len(notifier.resolved) != 1 {
		t.Errorf("notifications = %d, want 1", len(notifier.resolved))
	}
	if m.ticks != 2 || m.resolved[domain.ResultWon] != 1 {
		t.Errorf("metrics ticks=%d resolved=%v", m.ticks, m.resolved)
	}

	// A third tick finds nothing active and leaves the result alone.
	gw.set(fixture("1001", domain.StatusFullTime, 2, 1))
	sum, _ = svc.Tick(ctx)
	if sum.Active != 0 || sum.Transitioned != 0 {
		t.Errorf("third tick summary = %+v", sum)
	}
}

func TestTickFullMatchLossOnlyAtFullTime(t *testing.T) {
	store := newMemStore(pred("p1", "2002", "KG VAR MB"))
	gw := newStubGateway()
	svc := newTestService(store, gw, ResolutionConfig{})
	ctx := context.Background()

	gw.set(fixture("2002", domain.StatusSecondHalf, 3, 0))
	if sum, _ := svc.Tick(ctx); sum.Transitioned != 0 {
		t.Fatalf("live 3-0 transitioned = %d, want 0", sum.Transitioned)
	}

	gw.set(fixture("2002", domain.StatusFullTime, 3, 0))
	if sum, _ := svc.Tick(ctx); sum.Transitioned != 1 {
		t.Fatalf("FT 3-0 transitioned = %d, want 1", sum.Transitioned)
	}
	p, _ := store.GetByID(ctx, "p1")
	if p.Result != domain.ResultLost {
		t.Errorf("result = %s, want lost", p.Result)
	}
}

func TestTickWriteConflictIsNoOp(t *testing.T) {
	tests := []struct {
		name     string
		conflict bool
		writeErr error
	}{
		{"reported as false", true, nil},
		{"reported as error", false, fmt.Errorf("store: %w", domain.ErrWriteConflict)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(pred("p1", "1001", "0.5Ü MB"))
			store.conflict = tt.conflict
			store.writeErr = tt.writeErr
			gw := newStubGateway()
			gw.set(fixture("1001", domain.StatusFirstHalf, 1, 0))
			bus := newRecordingBus()
			notifier := &recordingNotifier{}
			svc := newTestService(store, gw, ResolutionConfig{}).WithBus(bus).WithNotifier(notifier)

			sum, err := svc.Tick(context.Background())
			if err != nil {
				t.Fatalf("Tick() error = %v", err)
			}
			if sum.Evaluated != 1 || sum.Transitioned != 0 || len(sum.Failures) != 0 {
				t.Errorf("summary = %+v, want evaluated with no transition and no failure", sum)
			}
			if len(bus.published) != 0 || len(notifier.resolved) != 0 {
				t.Errorf("conflict must not announce: bus=%v notified=%d", bus.published, len(notifier.resolved))
			}
		})
	}
}

func TestTickIsolatesFailures(t *testing.T) {
	store := newMemStore(
		pred("ok", "1", "1.5Ü MB"),
		pred("missing", "2", "1.5Ü MB"),
		pred("down", "3", "1.5Ü MB"),
		pred("bad", "4", "1.5Ü MB"),
		pred("unknown", "5", "3.5Ä MB"),
		pred("limited", "6", "1.5Ü MB"),
	)
	gw := newStubGateway()
	gw.set(fixture("1", domain.StatusSecondHalf, 1, 1))
	gw.errs["3"] = fmt.Errorf("fixtures: %w: status 502", domain.ErrSnapshotUnavailable)
	gw.set(domain.FixtureSnapshot{MatchID: "4", Status: domain.StatusFirstHalf, Goals: domain.Score{Home: -1}})
	gw.errs["6"] = fmt.Errorf("fixtures: %w", domain.ErrRateLimited)
	svc := newTestService(store, gw, ResolutionConfig{Concurrency: 2})

	sum, err := svc.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if sum.Active != 6 || sum.Evaluated != 1 || sum.Transitioned != 1 || sum.Unknown != 1 {
		t.Errorf("summary = %+v", sum)
	}

	want := map[string]string{
		"missing": domain.ReasonNotFound,
		"down":    domain.ReasonSnapshotUnavailable,
		"bad":     domain.ReasonSnapshotMalformed,
		"unknown": domain.ReasonClassificationUnknown,
		"limited": domain.ReasonRateLimited,
	}
	got := make(map[string]string)
	for _, f := range sum.Failures {
		got[f.PredictionID] = f.Reason
	}
	if len(got) != len(want) {
		t.Fatalf("failures = %+v", sum.Failures)
	}
	for id, reason := range want {
		if got[id] != reason {
			t.Errorf("failure[%s] = %q, want %q", id, got[id], reason)
		}
	}

	p, _ := store.GetByID(context.Background(), "unknown")
	if p.Status != domain.PredictionActive {
		t.Errorf("unknown market status = %s, want active", p.Status)
	}
}

func TestTickFetchTimeout(t *testing.T) {
	store := newMemStore(pred("p1", "1001", "1.5Ü MB"))
	gw := newStubGateway()
	gw.block = make(chan struct{}) // never released
	svc := newTestService(store, gw, ResolutionConfig{FetchTimeout: 20 * time.Millisecond})

	sum, err := svc.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if len(sum.Failures) != 1 || sum.Failures[0].Reason != domain.ReasonExternalTimeout {
		t.Errorf("failures = %+v, want one external_timeout", sum.Failures)
	}
}

func TestTickWriteFailure(t *testing.T) {
	store := newMemStore(pred("p1", "1001", "0.5Ü MB"))
	store.writeErr = errors.New("connection reset")
	gw := newStubGateway()
	gw.set(fixture("1001", domain.StatusSecondHalf, 1, 0))
	svc := newTestService(store, gw, ResolutionConfig{})

	sum, _ := svc.Tick(context.Background())
	if len(sum.Failures) != 1 || sum.Failures[0].Reason != domain.ReasonWriteFailed {
		t.Errorf("failures = %+v, want one write_failed", sum.Failures)
	}
}

func TestTickCoalescesFetchesPerMatch(t *testing.T) {
	store := newMemStore(
		pred("a", "1001", "0.5Ü MB"),
		pred("b", "1001", "1.5Ü MB"),
		pred("c", "1001", "KG VAR MB"),
		pred("d", "1001", "0.5Ü İY"),
	)
	gw := newStubGateway()
	gw.set(fixture("1001", domain.StatusFirstHalf, 1, 0))
	gw.block = make(chan struct{})
	svc := newTestService(store, gw, ResolutionConfig{Concurrency: 4})

	done := make(chan domain.TickSummary)
	go func() {
		sum, _ := svc.Tick(context.Background())
		done <- sum
	}()

	deadline := time.After(2 * time.Second)
	for gw.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("gateway never called")
		case <-time.After(time.Millisecond):
		}
	}
	time.Sleep(50 * time.Millisecond) // let the other workers join the flight
	close(gw.block)

	sum := <-done
	if got := gw.calls.Load(); got != 1 {
		t.Errorf("gateway calls = %d, want 1", got)
	}
	if sum.Evaluated != 4 {
		t.Errorf("evaluated = %d, want 4", sum.Evaluated)
	}
}

func TestTickListFailure(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("db down")
	notifier := &recordingNotifier{}
	svc := newTestService(store, newStubGateway(), ResolutionConfig{}).WithNotifier(notifier)

	if _, err := svc.Tick(context.Background()); err == nil {
		t.Fatal("Tick() error = nil, want list failure")
	}
	if notifier.tickFailed != 1 {
		t.Errorf("tick failure notifications = %d, want 1", notifier.tickFailed)
	}
	if _, ok := svc.LastSummary(); ok {
		t.Error("LastSummary() reported a summary after a failed tick")
	}
}

func TestLastSummary(t *testing.T) {
	store := newMemStore(pred("p1", "1001", "0.5Ü MB"))
	gw := newStubGateway()
	gw.set(fixture("1001", domain.StatusNotStarted, 0, 0))
	svc := newTestService(store, gw, ResolutionConfig{})

	if _, ok := svc.LastSummary(); ok {
		t.Fatal("LastSummary() before any tick reported ok")
	}
	_, _ = svc.Tick(context.Background())
	sum, ok := svc.LastSummary()
	if !ok || sum.Active != 1 || !sum.StartedAt.Equal(testNow) {
		t.Errorf("LastSummary() = %+v, %v", sum, ok)
	}
}

func TestScheduledTickSkips(t *testing.T) {
	t.Run("busy", func(t *testing.T) {
		store := newMemStore()
		m := newRecordingMetrics()
		svc := newTestService(store, newStubGateway(), ResolutionConfig{}).WithMetrics(m)
		svc.running.Store(true)

		svc.scheduledTick(context.Background())
		if store.listCalls.Load() != 0 || m.skipped[SkipBusy] != 1 {
			t.Errorf("listCalls=%d skipped=%v", store.listCalls.Load(), m.skipped)
		}
	})

	t.Run("lock held", func(t *testing.T) {
		store := newMemStore()
		m := newRecordingMetrics()
		lock := &stubLock{err: fmt.Errorf("redis: lock %s: %w", TickLockKey, domain.ErrLockHeld)}
		svc := newTestService(store, newStubGateway(), ResolutionConfig{UseLock: true}).WithLock(lock).WithMetrics(m)

		svc.scheduledTick(context.Background())
		if store.listCalls.Load() != 0 || m.skipped[SkipLockHeld] != 1 {
			t.Errorf("listCalls=%d skipped=%v", store.listCalls.Load(), m.skipped)
		}
		if svc.Running() {
			t.Error("running flag left set")
		}
	})

	t.Run("lock acquired and released", func(t *testing.T) {
		store := newMemStore()
		lock := &stubLock{}
		svc := newTestService(store, newStubGateway(), ResolutionConfig{UseLock: true}).WithLock(lock)

		svc.scheduledTick(context.Background())
		if store.listCalls.Load() != 1 || lock.acquired != 1 || lock.released != 1 {
			t.Errorf("listCalls=%d acquired=%d released=%d", store.listCalls.Load(), lock.acquired, lock.released)
		}
	})
}

func TestRunTicksImmediatelyAndStops(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, newStubGateway(), ResolutionConfig{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- svc.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for store.listCalls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("Run() did not tick immediately")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", domain.ErrUnknownMarket), domain.ReasonClassificationUnknown},
		{fmt.Errorf("x: %w", domain.ErrExternalTimeout), domain.ReasonExternalTimeout},
		{context.DeadlineExceeded, domain.ReasonExternalTimeout},
		{fmt.Errorf("x: %w", domain.ErrNotFound), domain.ReasonNotFound},
		{fmt.Errorf("x: %w", domain.ErrSnapshotMalformed), domain.ReasonSnapshotMalformed},
		{fmt.Errorf("x: %w", domain.ErrRateLimited), domain.ReasonRateLimited},
		{fmt.Errorf("x: %w", domain.ErrSnapshotUnavailable), domain.ReasonSnapshotUnavailable},
		{errors.New("anything else"), domain.ReasonSnapshotUnavailable},
	}
	for _, tt := range tests {
		if got := failureReason(tt.err); got != tt.want {
			t.Errorf("failureReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
