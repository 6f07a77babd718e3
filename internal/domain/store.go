package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PredictionStore persists predictions. ListActive and TryComplete are the
// only operations the resolver depends on; TryComplete is a compare-and-set
// that only succeeds while the row is still active.
type PredictionStore interface {
	Create(ctx context.Context, p Prediction) error
	GetByID(ctx context.Context, id string) (Prediction, error)
	List(ctx context.Context, status PredictionStatus, opts ListOpts) ([]Prediction, error)
	ListActive(ctx context.Context) ([]Prediction, error)
	TryComplete(ctx context.Context, id string, result PredictionResult, board Score, at time.Time) (bool, error)
	ListCompletedBefore(ctx context.Context, before time.Time) ([]Prediction, error)
	DeleteCompletedBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
