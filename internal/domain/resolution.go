package domain

import "time"

// Outcome is the evaluator's verdict for one prediction on one snapshot.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeWon     Outcome = "won"
	OutcomeLost    Outcome = "lost"
)

// Terminal reports whether the outcome ends the prediction's lifecycle.
func (o Outcome) Terminal() bool {
	return o == OutcomeWon || o == OutcomeLost
}

// Result converts a terminal outcome to the persisted result.
func (o Outcome) Result() PredictionResult {
	switch o {
	case OutcomeWon:
		return ResultWon
	case OutcomeLost:
		return ResultLost
	default:
		return ResultNone
	}
}

// Decision is the evaluator output together with the scoreboard it was based on.
type Decision struct {
	Outcome    Outcome
	Scoreboard Score
}

// Failure reasons reported in a TickSummary.
const (
	ReasonClassificationUnknown = "classification_unknown"
	ReasonSnapshotUnavailable   = "snapshot_unavailable"
	ReasonSnapshotMalformed     = "snapshot_malformed"
	ReasonExternalTimeout       = "external_timeout"
	ReasonNotFound              = "not_found"
	ReasonRateLimited           = "rate_limited"
	ReasonWriteFailed           = "write_failed"
)

// TickFailure records one prediction that could not be evaluated in a tick.
type TickFailure struct {
	PredictionID string `json:"prediction_id"`
	Reason       string `json:"reason"`
	Detail       string `json:"detail,omitempty"`
}

// TickSummary is the outward report of one resolution tick.
type TickSummary struct {
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Active       int           `json:"active"`
	Evaluated    int           `json:"evaluated"`
	Transitioned int           `json:"transitioned"`
	Unknown      int           `json:"unknown"`
	Failures     []TickFailure `json:"failures"`
}

// Channel and stream names used for resolution events.
const (
	EventPredictionResolved   = "prediction_resolved"
	ChannelPredictionResolved = "predictions:resolved"
	StreamPredictionResolved  = "predictions:resolved:log"
)

// ResolvedEvent is published on the signal bus when a prediction completes.
type ResolvedEvent struct {
	Event        string           `json:"event"`
	PredictionID string           `json:"prediction_id"`
	MatchID      string           `json:"match_id"`
	Label        string           `json:"label"`
	Result       PredictionResult `json:"result"`
	Home         int              `json:"home"`
	Away         int              `json:"away"`
	ResolvedAt   time.Time        `json:"resolved_at"`
}
