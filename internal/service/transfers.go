package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zecaptus/kasa-sub000/internal/database"
	"github.com/zecaptus/kasa-sub000/internal/database/repository"
	"github.com/zecaptus/kasa-sub000/internal/rules"
)

// DefaultTransferWindowDays is the conservative default date window for
// pairing transfer legs.
const DefaultTransferWindowDays = 3

// TransferDetector links pairs of transactions across a user's own accounts
// that represent one internal money movement. Only legs whose label matches
// a TransferLabelRule keyword are ever considered; the detector must never
// auto-link transactions not flagged as transfer-like.
type TransferDetector struct {
	DB           *sql.DB
	Transactions *repository.TransactionRepo
	Rules        *repository.RuleRepo

	// DateWindowDays widens or narrows the pairing window; zero means
	// DefaultTransferWindowDays.
	DateWindowDays int
}

func (s *TransferDetector) window() float64 {
	if s.DateWindowDays > 0 {
		return float64(s.DateWindowDays)
	}
	return DefaultTransferWindowDays
}

// Detect scans unlinked transfer-like transactions and links the best
// debit/credit pair per leg. Already-linked transactions are excluded, so
// re-running on unchanged data changes nothing.
func (s *TransferDetector) Detect(ctx context.Context, userID string) error {
	labelRules, err := s.Rules.ListTransferLabelRules(ctx, userID)
	if err != nil {
		return err
	}
	if len(labelRules) == 0 {
		return nil
	}

	txs, err := s.Transactions.List(ctx, userID, repository.TransactionFilters{Unlinked: true})
	if err != nil {
		return err
	}

	var debits, credits []repository.Transaction
	for _, tx := range txs {
		if !transferLike(tx, labelRules) {
			continue
		}
		if tx.Debit != nil {
			debits = append(debits, tx)
		} else {
			credits = append(credits, tx)
		}
	}

	used := make(map[string]bool)
	for _, debit := range debits {
		best := s.bestCredit(debit, credits, used)
		if best == nil {
			continue
		}
		err := database.WithTx(s.DB, func(tx *sql.Tx) error {
			return repository.NewTransactionRepo(tx).LinkTransferPeers(ctx, debit.ID, best.ID)
		})
		if errors.Is(err, repository.ErrAlreadyLinked) {
			// lost a race with a concurrent pass; leave both sides alone
			continue
		}
		if err != nil {
			return err
		}
		used[best.ID] = true
	}
	return nil
}

// bestCredit picks the candidate with the smallest date gap, then the
// smallest amount delta, then the lowest id for determinism.
func (s *TransferDetector) bestCredit(debit repository.Transaction, credits []repository.Transaction, used map[string]bool) *repository.Transaction {
	window := s.window()
	amount := debit.AbsAmount()

	var best *repository.Transaction
	var bestGap float64
	var bestDelta decimal.Decimal
	for i := range credits {
		credit := &credits[i]
		if used[credit.ID] || credit.AccountID == debit.AccountID {
			continue
		}
		delta := credit.AbsAmount().Sub(amount).Abs()
		if delta.GreaterThan(rules.AmountTolerance) {
			continue
		}
		gap := daysBetween(debit.Date, credit.Date)
		if gap > window {
			continue
		}
		if best == nil || gap < bestGap ||
			(gap == bestGap && delta.LessThan(bestDelta)) ||
			(gap == bestGap && delta.Equal(bestDelta) && credit.ID < best.ID) {
			best, bestGap, bestDelta = credit, gap, delta
		}
	}
	return best
}

// transferLike reports whether a transaction's label matches any transfer
// label rule (honoring the rule's optional amount constraint).
func transferLike(tx repository.Transaction, labelRules []repository.TransferLabelRule) bool {
	normalized := rules.Normalize(tx.Label)
	for _, r := range labelRules {
		keyword := rules.Normalize(r.Keyword)
		if keyword == "" || !strings.Contains(normalized, keyword) {
			continue
		}
		if r.Amount != nil && !rules.AmountsMatch(tx.AbsAmount(), r.Amount.Abs()) {
			continue
		}
		return true
	}
	return false
}

// CreateLabelRule adds a keyword to the transfer allowlist.
func (s *TransferDetector) CreateLabelRule(ctx context.Context, userID, keyword, label string, amount *decimal.Decimal) (*repository.TransferLabelRule, error) {
	if rules.Normalize(keyword) == "" {
		return nil, fmt.Errorf("keyword required: %w", ErrValidation)
	}
	if strings.TrimSpace(label) == "" {
		return nil, fmt.Errorf("label required: %w", ErrValidation)
	}
	if amount != nil && !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", ErrValidation)
	}
	r := repository.TransferLabelRule{
		ID:      uuid.NewString(),
		UserID:  userID,
		Keyword: strings.TrimSpace(keyword),
		Label:   strings.TrimSpace(label),
		Amount:  amount,
	}
	if err := s.Rules.InsertTransferLabelRule(ctx, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteLabelRule removes a rule. Existing links are kept; the allowlist
// only gates future detection passes.
func (s *TransferDetector) DeleteLabelRule(ctx context.Context, userID, id string) error {
	ok, err := s.Rules.DeleteTransferLabelRule(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("transfer label rule %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *TransferDetector) ListLabelRules(ctx context.Context, userID string) ([]repository.TransferLabelRule, error) {
	return s.Rules.ListTransferLabelRules(ctx, userID)
}

// DisplayLabel resolves the readable label for a transfer leg from the
// matching rule, falling back to the raw label.
func DisplayLabel(tx repository.Transaction, labelRules []repository.TransferLabelRule) string {
	normalized := rules.Normalize(tx.Label)
	for _, r := range labelRules {
		keyword := rules.Normalize(r.Keyword)
		if keyword != "" && strings.Contains(normalized, keyword) {
			return r.Label
		}
	}
	return tx.Label
}
