package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

const predictionColumns = `id, match_id, label, odds, status, COALESCE(result, ''), home_score, away_score, created_at, updated_at`

// PredictionStore implements domain.PredictionStore using PostgreSQL.
type PredictionStore struct {
	pool *pgxpool.Pool
}

// NewPredictionStore creates a new PredictionStore.
func NewPredictionStore(pool *pgxpool.Pool) *PredictionStore {
	return &PredictionStore{pool: pool}
}

// Create inserts a new active prediction. An empty ID is filled with a uuid.
func (s *PredictionStore) Create(ctx context.Context, p domain.Prediction) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.PredictionActive
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("postgres: create prediction: %w", err)
	}

	const query = `
		INSERT INTO predictions (id, match_id, label, odds, status, result, home_score, away_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10)`
	_, err := s.pool.Exec(ctx, query,
		p.ID, p.MatchID, p.Label, p.Odds, string(p.Status), string(p.Result),
		p.HomeScore, p.AwayScore, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: create prediction %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create prediction %s: %w", p.ID, err)
	}
	return nil
}

// GetByID returns one prediction or domain.ErrNotFound.
func (s *PredictionStore) GetByID(ctx context.Context, id string) (domain.Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE id = $1`
	p, err := scanPrediction(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Prediction{}, fmt.Errorf("postgres: get prediction %s: %w", id, domain.ErrNotFound)
		}
		return domain.Prediction{}, fmt.Errorf("postgres: get prediction %s: %w", id, err)
	}
	return p, nil
}

// List returns predictions in the given status, newest first. An empty status
// lists all.
func (s *PredictionStore) List(ctx context.Context, status domain.PredictionStatus, opts domain.ListOpts) ([]domain.Prediction, error) {
	q := newListQuery(`SELECT ` + predictionColumns + ` FROM predictions WHERE 1=1`)
	if status != "" {
		q.where("status = %s", string(status))
	}
	q.apply("created_at", opts)

	list, err := s.queryPredictions(ctx, q.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list predictions: %w", err)
	}
	return list, nil
}

// ListActive returns every prediction still eligible for resolution, oldest
// first. The status filter is the single source of eligibility.
func (s *PredictionStore) ListActive(ctx context.Context) ([]domain.Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions WHERE status = 'active' ORDER BY created_at`
	list, err := s.queryPredictions(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active predictions: %w", err)
	}
	return list, nil
}

// TryComplete marks the prediction completed with result and the scoreboard
// it was decided on, but only if it is still active. It returns false when
// another writer got there first.
func (s *PredictionStore) TryComplete(ctx context.Context, id string, result domain.PredictionResult, board domain.Score, at time.Time) (bool, error) {
	if result != domain.ResultWon && result != domain.ResultLost {
		return false, fmt.Errorf("postgres: try complete prediction %s: invalid result %q", id, result)
	}

	const query = `
		UPDATE predictions SET
			status = 'completed', result = $2, home_score = $3, away_score = $4, updated_at = $5
		WHERE id = $1 AND status = 'active'`
	tag, err := s.pool.Exec(ctx, query, id, string(result), board.Home, board.Away, at)
	if err != nil {
		return false, fmt.Errorf("postgres: try complete prediction %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListCompletedBefore returns completed predictions last updated before t.
func (s *PredictionStore) ListCompletedBefore(ctx context.Context, before time.Time) ([]domain.Prediction, error) {
	query := `SELECT ` + predictionColumns + ` FROM predictions
		WHERE status = 'completed' AND updated_at < $1 ORDER BY updated_at`
	list, err := s.queryPredictions(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list completed predictions: %w", err)
	}
	return list, nil
}

// DeleteCompletedBefore removes completed predictions last updated before t
// and returns how many rows went.
func (s *PredictionStore) DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM predictions WHERE status = 'completed' AND updated_at < $1`
	tag, err := s.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete completed predictions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PredictionStore) queryPredictions(ctx context.Context, query string, args ...any) ([]domain.Prediction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func scanPrediction(row pgx.Row) (domain.Prediction, error) {
	var p domain.Prediction
	var status, result string
	err := row.Scan(
		&p.ID, &p.MatchID, &p.Label, &p.Odds, &status, &result,
		&p.HomeScore, &p.AwayScore, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Prediction{}, err
	}
	p.Status = domain.PredictionStatus(status)
	p.Result = domain.PredictionResult(result)
	return p, nil
}

var _ domain.PredictionStore = (*PredictionStore)(nil)
