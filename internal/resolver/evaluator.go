// Package resolver decides whether a prediction is won, lost or still
// pending given the current state of its match.
package resolver

import (
	"math"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

// WinningGoals returns the smallest goal total that beats an over line:
// floor(threshold) + 1. For the usual x.5 lines this is x+1.
func WinningGoals(threshold float64) int {
	return int(math.Floor(threshold)) + 1
}

// Evaluate returns the decision for one market against one snapshot. The
// snapshot is expected to have passed FixtureSnapshot.Validate.
//
// Terminal decisions are stable: once a later snapshot of the same match is
// fed in, a won market stays won and a lost market stays lost, because goal
// totals never decrease and finished statuses never revert.
func Evaluate(spec domain.MarketSpec, snap domain.FixtureSnapshot) domain.Decision {
	if spec.IsUnknown() {
		return pending(snap.Goals)
	}
	switch spec.Scope {
	case domain.ScopeFirstHalf:
		return evaluateFirstHalf(spec, snap)
	case domain.ScopeFullMatch:
		return evaluateFullMatch(spec, snap)
	default:
		return pending(snap.Goals)
	}
}

func evaluateFirstHalf(spec domain.MarketSpec, snap domain.FixtureSnapshot) domain.Decision {
	if !snap.Status.HalfTimeReached() || snap.HalfTime == nil {
		return pending(snap.Goals)
	}
	ht := *snap.HalfTime

	switch spec.Family {
	case domain.FamilyOverGoals:
		if ht.Total() >= WinningGoals(spec.Threshold) {
			return domain.Decision{Outcome: domain.OutcomeWon, Scoreboard: ht}
		}
		return domain.Decision{Outcome: domain.OutcomeLost, Scoreboard: ht}
	default:
		return pending(ht)
	}
}

func evaluateFullMatch(spec domain.MarketSpec, snap domain.FixtureSnapshot) domain.Decision {
	phase := snap.Status.Phase()
	if phase != domain.PhaseLive && phase != domain.PhaseFinished {
		return pending(snap.Goals)
	}

	var won bool
	switch spec.Family {
	case domain.FamilyOverGoals:
		won = snap.Goals.Total() >= WinningGoals(spec.Threshold)
	case domain.FamilyBothTeamsScore:
		won = snap.Goals.Home >= 1 && snap.Goals.Away >= 1
	default:
		return pending(snap.Goals)
	}

	switch {
	case won:
		return domain.Decision{Outcome: domain.OutcomeWon, Scoreboard: snap.Goals}
	case phase == domain.PhaseFinished:
		return domain.Decision{Outcome: domain.OutcomeLost, Scoreboard: snap.Goals}
	default:
		return pending(snap.Goals)
	}
}

func pending(board domain.Score) domain.Decision {
	return domain.Decision{Outcome: domain.OutcomePending, Scoreboard: board}
}
