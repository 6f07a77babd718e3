package domain

import (
	"fmt"
	"strconv"
)

// MarketScope selects which part of the match a market settles on.
type MarketScope string

const (
	ScopeFullMatch MarketScope = "full_match"
	ScopeFirstHalf MarketScope = "first_half"
)

// MarketFamily is the kind of proposition a market represents.
type MarketFamily string

const (
	FamilyOverGoals      MarketFamily = "over_goals"
	FamilyBothTeamsScore MarketFamily = "both_teams_score"
)

// MarketSpec is the structured form of a prediction label. The zero value is
// UnknownMarket: a label the classifier could not map to a supported market.
type MarketSpec struct {
	Known     bool
	Scope     MarketScope
	Family    MarketFamily
	Threshold float64 // goal line, only set for FamilyOverGoals
}

// UnknownMarket is returned for labels that match no supported market.
var UnknownMarket = MarketSpec{}

// IsUnknown reports whether the spec is UnknownMarket.
func (m MarketSpec) IsUnknown() bool {
	return !m.Known
}

// String renders a stable key such as "full_match/over_goals/2.5".
func (m MarketSpec) String() string {
	if !m.Known {
		return "unknown"
	}
	if m.Family == FamilyOverGoals {
		return fmt.Sprintf("%s/%s/%s", m.Scope, m.Family, strconv.FormatFloat(m.Threshold, 'f', 1, 64))
	}
	return fmt.Sprintf("%s/%s", m.Scope, m.Family)
}
