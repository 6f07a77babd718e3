package domain

import (
	"fmt"
	"time"
)

// FixtureStatus is the short status code reported by the fixture feed.
type FixtureStatus string

const (
	StatusTBD          FixtureStatus = "TBD"
	StatusNotStarted   FixtureStatus = "NS"
	StatusFirstHalf    FixtureStatus = "1H"
	StatusHalfTime     FixtureStatus = "HT"
	StatusSecondHalf   FixtureStatus = "2H"
	StatusExtraTime    FixtureStatus = "ET"
	StatusBreakTime    FixtureStatus = "BT"
	StatusPenalties    FixtureStatus = "P"
	StatusFullTime     FixtureStatus = "FT"
	StatusAfterExtra   FixtureStatus = "AET"
	StatusAfterPenalty FixtureStatus = "PEN"
	StatusSuspended    FixtureStatus = "SUSP"
	StatusInterrupted  FixtureStatus = "INT"
	StatusPostponed    FixtureStatus = "PST"
	StatusCancelled    FixtureStatus = "CANC"
	StatusAbandoned    FixtureStatus = "ABD"
)

// MatchPhase groups fixture statuses by what they allow the evaluator to do.
type MatchPhase string

const (
	PhaseNotStarted MatchPhase = "not_started"
	PhaseLive       MatchPhase = "live"
	PhaseFinished   MatchPhase = "finished"
	PhaseUnknown    MatchPhase = "unknown"
)

// Phase maps the status code onto a MatchPhase. Codes outside the known
// vocabulary (suspended, interrupted, postponed, ...) are PhaseUnknown.
func (s FixtureStatus) Phase() MatchPhase {
	switch s {
	case StatusTBD, StatusNotStarted:
		return PhaseNotStarted
	case StatusFirstHalf, StatusHalfTime, StatusSecondHalf,
		StatusExtraTime, StatusBreakTime, StatusPenalties:
		return PhaseLive
	case StatusFullTime, StatusAfterExtra, StatusAfterPenalty:
		return PhaseFinished
	default:
		return PhaseUnknown
	}
}

// HalfTimeReached reports whether the first half is over, i.e. the half-time
// score is final.
func (s FixtureStatus) HalfTimeReached() bool {
	switch s {
	case StatusHalfTime, StatusSecondHalf, StatusExtraTime, StatusBreakTime,
		StatusPenalties, StatusFullTime, StatusAfterExtra, StatusAfterPenalty:
		return true
	default:
		return false
	}
}

// Score is a home/away goal pair.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Total returns the combined goals.
func (s Score) Total() int {
	return s.Home + s.Away
}

func (s Score) String() string {
	return fmt.Sprintf("%d-%d", s.Home, s.Away)
}

// FixtureSnapshot is a point-in-time read of one match from the fixture feed.
// HalfTime is nil when the feed has not published a half-time score yet.
type FixtureSnapshot struct {
	MatchID   string
	Status    FixtureStatus
	Elapsed   int // minutes
	Goals     Score
	HalfTime  *Score
	FetchedAt time.Time
}

// Validate rejects snapshots the evaluator must not see.
func (s FixtureSnapshot) Validate() error {
	if s.Status == "" {
		return fmt.Errorf("%w: empty status for match %s", ErrSnapshotMalformed, s.MatchID)
	}
	if s.Goals.Home < 0 || s.Goals.Away < 0 {
		return fmt.Errorf("%w: negative goals for match %s", ErrSnapshotMalformed, s.MatchID)
	}
	if s.HalfTime != nil && (s.HalfTime.Home < 0 || s.HalfTime.Away < 0) {
		return fmt.Errorf("%w: negative half-time goals for match %s", ErrSnapshotMalformed, s.MatchID)
	}
	return nil
}
