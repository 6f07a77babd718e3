package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ClientConfig{DSN: "postgres://x", Host: "ignored"},
			want: "postgres://x",
		},
		{
			name: "defaults",
			cfg:  ClientConfig{Host: "db", Database: "predictions", User: "bot", Password: "pw"},
			want: "postgres://bot:pw@db:5432/predictions?sslmode=disable",
		},
		{
			name: "custom port and ssl",
			cfg:  ClientConfig{Host: "db", Port: 6543, Database: "postgres", User: "u", Password: "p", SSLMode: "require"},
			want: "postgres://u:p@db:6543/postgres?sslmode=require",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMigrationFilesOrdered(t *testing.T) {
	names, err := migrationFiles()
	if err != nil {
		t.Fatalf("migrationFiles() error = %v", err)
	}
	want := []string{"001_predictions.sql", "002_audit_log.sql"}
	if len(names) != len(want) {
		t.Fatalf("migrationFiles() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("migrationFiles()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestListQuery(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := newListQuery(`SELECT id FROM predictions WHERE 1=1`)
	q.where("status = %s", "completed")
	q.apply("created_at", domain.ListOpts{Since: &since, Limit: 10, Offset: 20})

	want := `SELECT id FROM predictions WHERE 1=1 AND status = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	if got := q.String(); got != want {
		t.Errorf("query =\n  %s\nwant\n  %s", got, want)
	}
	if len(q.args) != 4 {
		t.Errorf("args = %v, want 4 values", q.args)
	}
}

// testStore connects to PREDBOT_TEST_DATABASE_URL; tests are skipped when it
// is unset.
func testStore(t *testing.T) *PredictionStore {
	t.Helper()
	dsn := os.Getenv("PREDBOT_TEST_DATABASE_URL")
	if dsn == "" || testing.Short() {
		t.Skip("PREDBOT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(c.Close)
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return NewPredictionStore(c.Pool())
}

func TestPredictionStoreTryComplete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	p := domain.Prediction{ID: uuid.NewString(), MatchID: "0042", Label: "2.5Ü MB", Odds: 1.8}
	if err := s.Create(ctx, p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Create(ctx, p); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("duplicate Create() error = %v, want ErrAlreadyExists", err)
	}

	ok, err := s.TryComplete(ctx, p.ID, domain.ResultWon, domain.Score{Home: 2, Away: 1}, time.Now())
	if err != nil || !ok {
		t.Fatalf("TryComplete() = %v, %v; want true, nil", ok, err)
	}
	ok, err = s.TryComplete(ctx, p.ID, domain.ResultLost, domain.Score{}, time.Now())
	if err != nil || ok {
		t.Fatalf("second TryComplete() = %v, %v; want false, nil", ok, err)
	}

	got, err := s.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.PredictionCompleted || got.Result != domain.ResultWon {
		t.Errorf("status/result = %s/%s, want completed/won", got.Status, got.Result)
	}
	if got.MatchID != "0042" || got.Label != "2.5Ü MB" {
		t.Errorf("match/label changed: %q %q", got.MatchID, got.Label)
	}
	if got.HomeScore == nil || *got.HomeScore != 2 || got.AwayScore == nil || *got.AwayScore != 1 {
		t.Errorf("scoreboard = %v-%v, want 2-1", got.HomeScore, got.AwayScore)
	}

	if _, err := s.GetByID(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}
