// Package market turns free-form prediction labels into structured market
// specifications.
package market

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

// Label tokens, in normalized form.
const (
	tokenFirstHalf      = "IY"     // İlk Yarı
	tokenFullMatch      = "MB"     // Maç Bonusu / maç sonu
	tokenOver           = "Ü"      // Üst
	tokenBothTeamsScore = "KG VAR" // Karşılıklı Gol var
)

// thresholds is searched in order; the first line found wins.
var thresholds = []struct {
	token string
	line  float64
}{
	{"0.5", 0.5},
	{"1.5", 1.5},
	{"2.5", 2.5},
	{"3.5", 3.5},
	{"4.5", 4.5},
}

// Classify maps a label onto a MarketSpec. Labels that cannot be mapped
// unambiguously return domain.UnknownMarket.
func Classify(label string) domain.MarketSpec {
	s := Normalize(label)
	if s == "" {
		return domain.UnknownMarket
	}

	var scope domain.MarketScope
	switch {
	case strings.Contains(s, tokenFirstHalf):
		scope = domain.ScopeFirstHalf
	case strings.Contains(s, tokenFullMatch):
		scope = domain.ScopeFullMatch
	default:
		return domain.UnknownMarket
	}

	if line, ok := overLine(s); ok {
		return domain.MarketSpec{
			Known:     true,
			Scope:     scope,
			Family:    domain.FamilyOverGoals,
			Threshold: line,
		}
	}

	if strings.Contains(s, tokenBothTeamsScore) {
		// Both-teams-score is only offered on the full match.
		if scope != domain.ScopeFullMatch {
			return domain.UnknownMarket
		}
		return domain.MarketSpec{
			Known:  true,
			Scope:  scope,
			Family: domain.FamilyBothTeamsScore,
		}
	}

	return domain.UnknownMarket
}

// Normalize returns the comparison form of a label: NFC, Turkish upper case,
// every I variant folded to ASCII I, decimal commas turned into points and
// runs of whitespace collapsed. The input is not modified.
func Normalize(label string) string {
	s := norm.NFC.String(label)
	s = cases.Upper(language.Turkish).String(s) // a Caser is not safe for concurrent use
	s = iFolder.Replace(s)
	s = strings.ReplaceAll(s, ",", ".")
	return strings.Join(strings.Fields(s), " ")
}

var iFolder = strings.NewReplacer(
	"İ", "I",
	"ı", "I",
	"i", "I",
)

// overLine finds the first "<line>Ü" token. The line must not be preceded by
// another digit, so "10.5Ü" does not match "0.5Ü".
func overLine(s string) (float64, bool) {
	for _, th := range thresholds {
		needle := th.token + tokenOver
		from := 0
		for {
			idx := strings.Index(s[from:], needle)
			if idx < 0 {
				break
			}
			idx += from
			if idx == 0 || !isDigit(s[idx-1]) {
				return th.line, true
			}
			from = idx + len(needle)
		}
	}
	return 0, false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
