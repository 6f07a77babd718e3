package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictionbot/internal/domain"
	"github.com/alanyoungcy/predictionbot/internal/market"
	"github.com/alanyoungcy/predictionbot/internal/risk"
)

// PredictionReader defines the read methods the prediction handler requires.
type PredictionReader interface {
	List(ctx context.Context, status domain.PredictionStatus, opts domain.ListOpts) ([]domain.Prediction, error)
	GetByID(ctx context.Context, id string) (domain.Prediction, error)
}

// PredictionHandler serves read-only prediction endpoints.
type PredictionHandler struct {
	predictions PredictionReader
	logger      *slog.Logger
}

// NewPredictionHandler creates a PredictionHandler.
func NewPredictionHandler(predictions PredictionReader, logger *slog.Logger) *PredictionHandler {
	return &PredictionHandler{predictions: predictions, logger: logger}
}

// predictionView is the JSON shape of a prediction. Market is the parsed
// label; it is "unknown" for labels the classifier does not recognise.
type predictionView struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id"`
	Label     string    `json:"label"`
	Market    string    `json:"market"`
	Odds      float64   `json:"odds"`
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	HomeScore *int      `json:"home_score,omitempty"`
	AwayScore *int      `json:"away_score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toView(p domain.Prediction) predictionView {
	return predictionView{
		ID:        p.ID,
		MatchID:   p.MatchID,
		Label:     p.Label,
		Market:    market.Classify(p.Label).String(),
		Odds:      p.Odds,
		Status:    string(p.Status),
		Result:    string(p.Result),
		HomeScore: p.HomeScore,
		AwayScore: p.AwayScore,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// ListPredictions returns predictions, optionally filtered by status.
// GET /api/predictions?status=active|completed&limit=&offset=&since=&until=
func (h *PredictionHandler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	status := domain.PredictionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.PredictionActive, domain.PredictionCompleted:
	default:
		writeError(w, http.StatusBadRequest, "status must be active or completed")
		return
	}

	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	preds, err := h.predictions.List(r.Context(), status, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list predictions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list predictions")
		return
	}

	views := make([]predictionView, 0, len(preds))
	for _, p := range preds {
		views = append(views, toView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"predictions": views,
		"count":       len(views),
		"limit":       opts.Limit,
		"offset":      opts.Offset,
	})
}

// GetPrediction returns one prediction with its risk profile. The risk
// filter is taken from the optional filter query parameter.
// GET /api/predictions/{id}
func (h *PredictionHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing prediction id")
		return
	}

	p, err := h.predictions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "prediction not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get prediction failed",
			slog.String("prediction_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get prediction")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"prediction": toView(p),
		"risk":       risk.CalculateSmartRisk(r.URL.Query().Get("filter"), p.Odds),
	})
}
