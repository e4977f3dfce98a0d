package rules

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zecaptus/kasa-sub000/internal/database/repository"
)

// AmountTolerance is the currency-rounding tolerance used for amount
// constraints and everywhere two amounts are compared for equality.
var AmountTolerance = decimal.NewFromFloat(0.01)

// AmountsMatch reports whether two amounts are equal within AmountTolerance.
func AmountsMatch(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(AmountTolerance)
}

// Match returns the best rule for a label, or nil when nothing hits.
//
// A rule hits when its keyword is a substring of the normalized label and,
// if the rule carries an amount constraint, the transaction's absolute
// amount equals it within tolerance. Among all hits the longest keyword
// wins; system and user rules compete in the same pool.
func Match(label string, amount decimal.Decimal, ruleset []repository.CategoryRule) *repository.CategoryRule {
	normalized := Normalize(label)
	var best *repository.CategoryRule
	bestLen := 0
	for i := range ruleset {
		r := &ruleset[i]
		keyword := Normalize(r.Keyword)
		if keyword == "" || !strings.Contains(normalized, keyword) {
			continue
		}
		if r.Amount != nil && !AmountsMatch(amount.Abs(), r.Amount.Abs()) {
			continue
		}
		if len(keyword) > bestLen {
			best = r
			bestLen = len(keyword)
		}
	}
	return best
}

// Covers reports whether any rule keyword already matches the normalized
// label. Used by the suggestion engine to drop labels a rule handles.
func Covers(normalizedLabel string, ruleset []repository.CategoryRule) bool {
	for i := range ruleset {
		keyword := Normalize(ruleset[i].Keyword)
		if keyword != "" && strings.Contains(normalizedLabel, keyword) {
			return true
		}
	}
	return false
}
