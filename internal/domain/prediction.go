package domain

import (
	"errors"
	"time"
)

// PredictionStatus is the lifecycle state of a prediction.
type PredictionStatus string

const (
	PredictionActive    PredictionStatus = "active"
	PredictionCompleted PredictionStatus = "completed"
)

// PredictionResult is the terminal result of a completed prediction.
type PredictionResult string

const (
	ResultNone PredictionResult = ""
	ResultWon  PredictionResult = "won"
	ResultLost PredictionResult = "lost"
)

// Prediction is a placed bet on a single market of a single match.
//
// Label is the free-form market label ("2.5Ü MB", "1.5Ü İY") and is kept
// exactly as entered. Result is empty unless Status is completed; once
// completed, Result and the score fields never change.
type Prediction struct {
	ID        string
	MatchID   string // external fixture id, string-typed to keep leading zeros
	Label     string
	Odds      float64 // decimal odds, 0 = unknown
	Status    PredictionStatus
	Result    PredictionResult
	HomeScore *int // scoreboard captured at resolution
	AwayScore *int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the prediction is still eligible for resolution.
func (p Prediction) IsActive() bool {
	return p.Status == PredictionActive
}

// Validate checks that the prediction is well formed.
func (p Prediction) Validate() error {
	if p.ID == "" {
		return errors.New("prediction ID must not be empty")
	}
	if p.MatchID == "" {
		return errors.New("match ID must not be empty")
	}
	if p.Label == "" {
		return errors.New("label must not be empty")
	}
	if p.Odds < 0 {
		return errors.New("odds must not be negative")
	}
	switch p.Status {
	case PredictionActive:
		if p.Result != ResultNone {
			return errors.New("active prediction must not carry a result")
		}
	case PredictionCompleted:
		if p.Result != ResultWon && p.Result != ResultLost {
			return errors.New("completed prediction must be won or lost")
		}
	default:
		return errors.New("status must be active or completed")
	}
	return nil
}
