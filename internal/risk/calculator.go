// Package risk maps a prediction filter and its odds to a success-rate badge
// and an expected value.
package risk

import "github.com/shopspring/decimal"

// Badge is the risk tier shown next to a prediction.
type Badge string

const (
	BadgeUltraSafe    Badge = "ULTRA_SAFE"
	BadgeLowRisk      Badge = "LOW_RISK"
	BadgeMediumRisk   Badge = "MEDIUM_RISK"
	BadgeHighRisk     Badge = "HIGH_RISK"
	BadgeVeryHighRisk Badge = "VERY_HIGH_RISK"
)

// DefaultSuccessRate is used for filters missing from the table.
const DefaultSuccessRate = 65

// successRates holds the historical success rate (percent) per filter.
var successRates = map[string]int{
	"filter1": 85,
	"filter2": 80,
	"filter3": 72,
	"filter4": 70,
	"filter5": 65,
	"filter6": 60,
	"filter7": 55,
	"filter8": 45,
}

// SmartRisk is the result of CalculateSmartRisk.
type SmartRisk struct {
	Filter        string  `json:"filter"`
	SuccessRate   int     `json:"success_rate"`
	Badge         Badge   `json:"badge"`
	ExpectedValue float64 `json:"expected_value"`
	Known         bool    `json:"known_filter"`
}

// CalculateSmartRisk looks up the filter's success rate, classifies it into
// a badge and computes the expected value of a unit stake at the given
// decimal odds. Unknown filters fall back to DefaultSuccessRate.
func CalculateSmartRisk(filter string, odds float64) SmartRisk {
	rate, ok := successRates[filter]
	if !ok {
		rate = DefaultSuccessRate
	}
	return SmartRisk{
		Filter:        filter,
		SuccessRate:   rate,
		Badge:         BadgeFor(rate),
		ExpectedValue: ExpectedValue(rate, odds),
		Known:         ok,
	}
}

// BadgeFor returns the tier for a success rate in percent.
func BadgeFor(rate int) Badge {
	switch {
	case rate >= 80:
		return BadgeUltraSafe
	case rate >= 70:
		return BadgeLowRisk
	case rate >= 60:
		return BadgeMediumRisk
	case rate >= 50:
		return BadgeHighRisk
	default:
		return BadgeVeryHighRisk
	}
}

// ExpectedValue returns p*(odds-1) - (1-p) rounded to two decimals, where p is
// rate/100. Odds of zero or below mean "no price" and yield 0.
func ExpectedValue(rate int, odds float64) float64 {
	if odds <= 0 {
		return 0
	}
	one := decimal.NewFromInt(1)
	p := decimal.NewFromInt(int64(rate)).Div(decimal.NewFromInt(100))
	win := p.Mul(decimal.NewFromFloat(odds).Sub(one))
	loss := one.Sub(p)
	ev, _ := win.Sub(loss).Round(2).Float64()
	return ev
}

// Filters returns the known filter names and their success rates.
func Filters() map[string]int {
	out := make(map[string]int, len(successRates))
	for k, v := range successRates {
		out[k] = v
	}
	return out
}
