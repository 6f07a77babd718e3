package handler

import (
	"net/http"
	"strconv"

	"github.com/alanyoungcy/predictionbot/internal/risk"
)

// RiskHandler serves the smart-risk calculator.
type RiskHandler struct{}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler() *RiskHandler {
	return &RiskHandler{}
}

// GetRisk returns the success rate, badge and expected value for a filter
// at the given decimal odds. Missing odds count as unknown (EV 0).
// GET /api/risk?filter=filter3&odds=3.0
func (h *RiskHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var odds float64
	if v := q.Get("odds"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "odds must be a number")
			return
		}
		odds = f
	}
	writeJSON(w, http.StatusOK, risk.CalculateSmartRisk(q.Get("filter"), odds))
}

// ListFilters returns the success-rate table.
// GET /api/risk/filters
func (h *RiskHandler) ListFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"filters":         risk.Filters(),
		"default_success": risk.DefaultSuccessRate,
	})
}
