package handler

import (
	"net/http"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

// ResolverStatus is the read side of the resolution loop.
type ResolverStatus interface {
	LastSummary() (domain.TickSummary, bool)
	Running() bool
}

// ResolverHandler reports the state of the resolution loop.
type ResolverHandler struct {
	mode     string
	resolver ResolverStatus // nil when this process does not resolve
}

// NewResolverHandler creates a ResolverHandler. resolver may be nil.
func NewResolverHandler(mode string, resolver ResolverStatus) *ResolverHandler {
	return &ResolverHandler{mode: mode, resolver: resolver}
}

// GetStatus returns the process mode and the last tick summary.
// GET /api/resolver/status
func (h *ResolverHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":      h.mode,
		"resolving": h.resolver != nil,
		"running":   false,
		"last_tick": nil,
	}
	if h.resolver != nil {
		body["running"] = h.resolver.Running()
		if sum, ok := h.resolver.LastSummary(); ok {
			body["last_tick"] = tickView{
				TickSummary: sum,
				DurationMS:  sum.Duration.Milliseconds(),
			}
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// tickView adds a millisecond duration next to the nanosecond one.
type tickView struct {
	domain.TickSummary
	DurationMS int64 `json:"duration_ms"`
}
