package service

import (
	"context"
	"sort"

	"github.com/zecaptus/kasa-sub000/internal/database/repository"
	"github.com/zecaptus/kasa-sub000/internal/rules"
)

// minSuggestionCount is the smallest group size worth proposing as a rule.
const minSuggestionCount = 2

// RuleSuggestion is an advisory (keyword, matchCount) pair. Nothing is
// persisted; the caller decides whether to turn it into a CategoryRule.
type RuleSuggestion struct {
	Keyword    string `json:"keyword"`
	MatchCount int    `json:"matchCount"`
}

// Suggester mines frequently-recurring uncategorized labels for rule ideas.
type Suggester struct {
	Transactions *repository.TransactionRepo
	Rules        *repository.RuleRepo
}

// Suggest returns candidate keywords ranked by how many uncategorized
// transactions they would cover. Labels already covered by an existing rule
// keyword (substring match) are dropped.
func (s *Suggester) Suggest(ctx context.Context, userID string) ([]RuleSuggestion, error) {
	txs, err := s.Transactions.List(ctx, userID, repository.TransactionFilters{CategorySource: repository.SourceNone})
	if err != nil {
		return nil, err
	}

	ruleset, err := s.Rules.ListVisible(ctx, userID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, tx := range txs {
		label := rules.Normalize(tx.Label)
		if label == "" {
			continue
		}
		counts[label]++
	}

	out := make([]RuleSuggestion, 0, len(counts))
	for label, n := range counts {
		if n < minSuggestionCount {
			continue
		}
		if rules.Covers(label, ruleset) {
			continue
		}
		out = append(out, RuleSuggestion{Keyword: label, MatchCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchCount != out[j].MatchCount {
			return out[i].MatchCount > out[j].MatchCount
		}
		return out[i].Keyword < out[j].Keyword
	})
	return out, nil
}
