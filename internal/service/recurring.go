package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zecaptus/kasa-sub000/internal/database/repository"
	"github.com/zecaptus/kasa-sub000/internal/rules"
)

// Frequency bands over the median day-gap, and the interval used to project
// the next occurrence.
const (
	weeklyMin, weeklyMax   = 5, 9
	monthlyMin, monthlyMax = 25, 35
	annualMin, annualMax   = 350, 380

	weeklyInterval  = 7
	monthlyInterval = 30
	annualInterval  = 365

	// maxAmountVariation is the coefficient-of-variation ceiling above
	// which a group's amounts are too irregular to be one recurring charge.
	maxAmountVariation = 0.10
)

// RecurringDetector (re)builds AUTO recurring patterns from a user's debit
// history. Manual patterns are never touched beyond transaction linking.
type RecurringDetector struct {
	Transactions *repository.TransactionRepo
	Patterns     *repository.PatternRepo

	// Now is injected for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *RecurringDetector) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Detect groups debits by normalized label, derives a frequency from the
// median day-gap, checks amount consistency, and upserts one AUTO pattern
// per keyword. AUTO patterns whose keyword was not re-detected are
// deactivated, not deleted. Running it twice on unchanged data converges.
func (s *RecurringDetector) Detect(ctx context.Context, userID string) error {
	txs, err := s.Transactions.List(ctx, userID, repository.TransactionFilters{DebitsOnly: true})
	if err != nil {
		return err
	}

	groups := make(map[string][]repository.Transaction)
	var keywords []string
	for _, tx := range txs {
		keyword := rules.Normalize(tx.Label)
		if keyword == "" {
			continue
		}
		if _, seen := groups[keyword]; !seen {
			keywords = append(keywords, keyword)
		}
		groups[keyword] = append(groups[keyword], tx)
	}
	sort.Strings(keywords)

	now := s.now()
	detected := make(map[string]bool)
	for _, keyword := range keywords {
		group := groups[keyword]
		frequency, ok := classifyGroup(group)
		if !ok {
			continue
		}
		detected[keyword] = true
		if err := s.upsertPattern(ctx, userID, keyword, frequency, group, now); err != nil {
			return err
		}
	}

	// Anything AUTO that this pass did not re-detect goes dormant.
	existing, err := s.Patterns.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p.Source != repository.SourceAuto || !p.IsActive || detected[p.Keyword] {
			continue
		}
		if err := s.Patterns.Deactivate(ctx, userID, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// classifyGroup decides whether a label group is recurring and at which
// frequency. A group needs at least two members (one measurable gap), a
// median gap inside one of the bands, and consistent amounts.
func classifyGroup(group []repository.Transaction) (string, bool) {
	if len(group) < 2 {
		return "", false
	}
	gaps := make([]float64, 0, len(group)-1)
	for i := 1; i < len(group); i++ {
		gaps = append(gaps, daysBetween(group[i-1].Date, group[i].Date))
	}
	gap := median(gaps)

	var frequency string
	switch {
	case gap >= weeklyMin && gap <= weeklyMax:
		frequency = repository.FrequencyWeekly
	case gap >= monthlyMin && gap <= monthlyMax:
		frequency = repository.FrequencyMonthly
	case gap >= annualMin && gap <= annualMax:
		frequency = repository.FrequencyAnnual
	default:
		return "", false
	}

	amounts := make([]float64, 0, len(group))
	for _, tx := range group {
		amounts = append(amounts, tx.AbsAmount().InexactFloat64())
	}
	m := mean(amounts)
	if m == 0 || stddev(amounts, m)/m >= maxAmountVariation {
		return "", false
	}
	return frequency, true
}

func (s *RecurringDetector) upsertPattern(ctx context.Context, userID, keyword, frequency string, group []repository.Transaction, now time.Time) error {
	last := group[len(group)-1].Date
	interval := frequencyIntervalDays(frequency)
	next := last.AddDate(0, 0, interval)
	active := daysBetween(last, now) <= float64(2*interval)
	amount := medianAmount(group)

	pattern, err := s.Patterns.GetAutoByKeyword(ctx, userID, keyword)
	if err != nil {
		return err
	}
	if pattern == nil {
		pattern = &repository.RecurringPattern{
			ID:      uuid.NewString(),
			UserID:  userID,
			Label:   group[0].Label,
			Keyword: keyword,
			Source:  repository.SourceAuto,
		}
		pattern.Amount = &amount
		pattern.Frequency = frequency
		pattern.IsActive = active
		pattern.NextOccurrence = &next
		if err := s.Patterns.Insert(ctx, *pattern); err != nil {
			return err
		}
	} else {
		pattern.Amount = &amount
		pattern.Frequency = frequency
		pattern.IsActive = active
		pattern.NextOccurrence = &next
		if err := s.Patterns.Update(ctx, *pattern); err != nil {
			return err
		}
	}

	for _, tx := range group {
		if tx.PatternID != nil && *tx.PatternID == pattern.ID {
			continue
		}
		id := pattern.ID
		if err := s.Transactions.SetPattern(ctx, tx.ID, &id); err != nil {
			return err
		}
	}
	return nil
}

func frequencyIntervalDays(frequency string) int {
	switch frequency {
	case repository.FrequencyWeekly:
		return weeklyInterval
	case repository.FrequencyAnnual:
		return annualInterval
	default:
		return monthlyInterval
	}
}

func daysBetween(a, b time.Time) float64 {
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}
	return math.Round(d.Hours() / 24)
}

// median averages the two middle values for even-length input.
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func medianAmount(group []repository.Transaction) decimal.Decimal {
	sorted := make([]decimal.Decimal, 0, len(group))
	for _, tx := range group {
		sorted = append(sorted, tx.AbsAmount())
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	if len(values) == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	return math.Sqrt(variance / float64(len(values)))
}
