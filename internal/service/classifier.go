package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zecaptus/kasa-sub000/internal/ai"
	"github.com/zecaptus/kasa-sub000/internal/database/repository"
	"github.com/zecaptus/kasa-sub000/internal/rules"
)

// Classifier assigns categories to transactions from keyword rules, with an
// optional AI fallback for whatever the rules leave uncategorized. Rule
// mutations live here too so cache invalidation cannot be skipped.
type Classifier struct {
	Transactions *repository.TransactionRepo
	Rules        *repository.RuleRepo
	Categories   *repository.CategoryRepo
	Cache        *rules.Cache
	AI           ai.Classifier
}

// Classify applies the rule matcher to a batch. Transactions whose category
// was set manually are never touched. Returns the number changed.
func (s *Classifier) Classify(ctx context.Context, userID string, txs []repository.Transaction) (int, error) {
	ruleset, err := s.Cache.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, tx := range txs {
		if tx.CategorySource == repository.SourceManual {
			continue
		}
		r := rules.Match(tx.Label, tx.AbsAmount(), ruleset)
		if r == nil {
			continue
		}
		if tx.CategoryID != nil && *tx.CategoryID == r.CategoryID && tx.CategorySource == repository.SourceAuto {
			continue
		}
		categoryID := r.CategoryID
		if err := s.Transactions.UpdateCategory(ctx, tx.ID, &categoryID, repository.SourceAuto); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// ReclassifyUncategorized re-runs classification over every transaction still
// at category source NONE.
func (s *Classifier) ReclassifyUncategorized(ctx context.Context, userID string) (int, error) {
	txs, err := s.Transactions.List(ctx, userID, repository.TransactionFilters{CategorySource: repository.SourceNone})
	if err != nil {
		return 0, err
	}
	return s.Classify(ctx, userID, txs)
}

// ApplyAIFallback offers the remaining source-NONE transactions to the batch
// oracle. With the Noop classifier this is a no-op.
func (s *Classifier) ApplyAIFallback(ctx context.Context, userID string) (int, error) {
	if s.AI == nil {
		return 0, nil
	}
	txs, err := s.Transactions.List(ctx, userID, repository.TransactionFilters{CategorySource: repository.SourceNone})
	if err != nil {
		return 0, err
	}
	if len(txs) == 0 {
		return 0, nil
	}
	cats, err := s.Categories.ListVisible(ctx, userID)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(cats))
	req := ai.BatchRequest{}
	for _, c := range cats {
		known[c.ID] = true
		req.Categories = append(req.Categories, ai.CategoryOption{ID: c.ID, Name: c.Name})
	}
	byID := make(map[string]repository.Transaction, len(txs))
	for _, tx := range txs {
		byID[tx.ID] = tx
		cand := ai.Candidate{ID: tx.ID, Label: tx.Label}
		if tx.Detail != nil {
			cand.Detail = *tx.Detail
		}
		req.Candidates = append(req.Candidates, cand)
	}

	resp, err := s.AI.ClassifyBatch(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("ai fallback: %w", err)
	}

	changed := 0
	for id, categoryID := range resp.Assignments {
		tx, ok := byID[id]
		if !ok || !known[categoryID] {
			continue
		}
		if tx.CategorySource == repository.SourceManual {
			continue
		}
		catID := categoryID
		if err := s.Transactions.UpdateCategory(ctx, tx.ID, &catID, repository.SourceAuto); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// SetManualCategory records a user override. Overrides are sticky: nothing
// automated touches the transaction afterwards.
func (s *Classifier) SetManualCategory(ctx context.Context, userID, txID string, categoryID *string) error {
	tx, err := s.Transactions.Get(ctx, userID, txID)
	if err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("transaction %s: %w", txID, ErrNotFound)
	}
	if categoryID != nil {
		cat, err := s.Categories.Get(ctx, userID, *categoryID)
		if err != nil {
			return err
		}
		if cat == nil {
			return fmt.Errorf("category %s: %w", *categoryID, ErrNotFound)
		}
	}
	source := repository.SourceManual
	if categoryID == nil {
		source = repository.SourceNone
	}
	return s.Transactions.UpdateCategory(ctx, txID, categoryID, source)
}

// CreateRule persists a rule, invalidates the user's cache and re-runs
// classification over currently-uncategorized transactions. The returned
// count is the number of transactions the new rule categorized.
func (s *Classifier) CreateRule(ctx context.Context, userID, keyword, categoryID string, amount *decimal.Decimal) (*repository.CategoryRule, int, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, 0, fmt.Errorf("rule keyword required: %w", ErrValidation)
	}
	cat, err := s.Categories.Get(ctx, userID, categoryID)
	if err != nil {
		return nil, 0, err
	}
	if cat == nil {
		return nil, 0, fmt.Errorf("category %s: %w", categoryID, ErrNotFound)
	}
	rule := repository.CategoryRule{
		ID:         uuid.NewString(),
		UserID:     &userID,
		Keyword:    rules.Normalize(keyword),
		CategoryID: categoryID,
		Amount:     amount,
	}
	if err := s.Rules.Insert(ctx, rule); err != nil {
		return nil, 0, err
	}
	changed, err := s.afterRuleMutation(ctx, userID)
	return &rule, changed, err
}

// UpdateRule rewrites a user rule. System rules are read-only.
func (s *Classifier) UpdateRule(ctx context.Context, userID, id, keyword, categoryID string, amount *decimal.Decimal) (*repository.CategoryRule, int, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, 0, fmt.Errorf("rule keyword required: %w", ErrValidation)
	}
	existing, err := s.Rules.Get(ctx, userID, id)
	if err != nil {
		return nil, 0, err
	}
	if existing == nil {
		return nil, 0, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if existing.UserID == nil {
		return nil, 0, fmt.Errorf("system rule %s: %w", id, ErrForbidden)
	}
	cat, err := s.Categories.Get(ctx, userID, categoryID)
	if err != nil {
		return nil, 0, err
	}
	if cat == nil {
		return nil, 0, fmt.Errorf("category %s: %w", categoryID, ErrNotFound)
	}
	updated := *existing
	updated.Keyword = rules.Normalize(keyword)
	updated.CategoryID = categoryID
	updated.Amount = amount
	if err := s.Rules.Update(ctx, updated); err != nil {
		return nil, 0, err
	}
	changed, err := s.afterRuleMutation(ctx, userID)
	return &updated, changed, err
}

// DeleteRule removes a user rule. System rules are read-only.
func (s *Classifier) DeleteRule(ctx context.Context, userID, id string) (int, error) {
	existing, err := s.Rules.Get(ctx, userID, id)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		return 0, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if existing.UserID == nil {
		return 0, fmt.Errorf("system rule %s: %w", id, ErrForbidden)
	}
	if _, err := s.Rules.Delete(ctx, userID, id); err != nil {
		return 0, err
	}
	return s.afterRuleMutation(ctx, userID)
}

// afterRuleMutation invalidates the cache before any further read in the
// same request, then re-runs classification over uncategorized transactions.
func (s *Classifier) afterRuleMutation(ctx context.Context, userID string) (int, error) {
	s.Cache.Invalidate(userID)
	return s.ReclassifyUncategorized(ctx, userID)
}
