package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/zecaptus/kasa-sub000/internal/database"
	"github.com/zecaptus/kasa-sub000/internal/database/repository"
	"github.com/zecaptus/kasa-sub000/internal/rules"
)

// Scoring weights and confidence bands. Amount equality is a near-hard
// filter: a pair that fails it scores zero outright, so the amount weight is
// effectively a floor for any surviving candidate.
const (
	weightAmount = 0.6
	weightDate   = 0.25
	weightLabel  = 0.15

	dateCutoffDays = 5.0

	// HighThreshold auto-confirms a unique top match; PlausibleThreshold
	// splits the review list into "plausible" and "weak".
	HighThreshold      = 0.8
	PlausibleThreshold = 0.5

	// uniquenessEpsilon: a top score is only unique when the runner-up
	// trails it by at least this much.
	uniquenessEpsilon = 0.05
)

// ReviewCandidate is one scored pairing surfaced for user review.
type ReviewCandidate struct {
	TransactionID string
	ExpenseID     string
	Score         float64
	Confidence    string // "high", "plausible" or "weak"
}

// RunResult reports what a reconciliation pass did.
type RunResult struct {
	AutoMatched int
	Review      []ReviewCandidate
}

// Reconciler pairs unreconciled imported transactions with unreconciled
// manual expenses.
type Reconciler struct {
	DB              *sql.DB
	Transactions    *repository.TransactionRepo
	Expenses        *repository.ExpenseRepo
	Reconciliations *repository.ReconciliationRepo
}

// Run scores every unreconciled transaction against the unpaired expenses.
// A unique high-confidence top match is confirmed immediately with
// isAutoMatched=true; everything else is returned as review candidates.
// Already-reconciled pairs are never re-opened or re-scored.
func (s *Reconciler) Run(ctx context.Context, userID string) (RunResult, error) {
	var res RunResult

	txs, err := s.Transactions.List(ctx, userID, repository.TransactionFilters{Status: repository.StatusUnreconciled})
	if err != nil {
		return res, err
	}
	expenses, err := s.Expenses.ListUnreconciled(ctx, userID)
	if err != nil {
		return res, err
	}

	paired := make(map[string]bool)
	for _, tx := range txs {
		scored := scoreCandidates(tx, expenses, paired)
		if len(scored) == 0 {
			continue
		}

		top := scored[0]
		unique := len(scored) == 1 || top.Score-scored[1].Score >= uniquenessEpsilon
		if top.Score >= HighThreshold && unique {
			if err := s.link(ctx, tx.ID, top.ExpenseID, top.Score, true); err != nil {
				return res, err
			}
			paired[top.ExpenseID] = true
			res.AutoMatched++
			continue
		}
		res.Review = append(res.Review, scored...)
	}
	return res, nil
}

// Confirm force-links a specific pair regardless of score, validating first
// that both sides belong to the user and neither is already paired.
func (s *Reconciler) Confirm(ctx context.Context, userID, txID, expenseID string) (*repository.Reconciliation, error) {
	tx, err := s.Transactions.Get(ctx, userID, txID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction %s: %w", txID, ErrNotFound)
	}
	expense, err := s.Expenses.Get(ctx, userID, expenseID)
	if err != nil {
		return nil, err
	}
	if expense == nil {
		return nil, fmt.Errorf("expense %s: %w", expenseID, ErrNotFound)
	}
	if tx.Status != repository.StatusUnreconciled {
		return nil, fmt.Errorf("transaction %s is %s: %w", txID, tx.Status, ErrConflict)
	}
	if existing, err := s.Reconciliations.GetByExpense(ctx, expenseID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("expense %s already reconciled: %w", expenseID, ErrConflict)
	}

	score, _ := scorePair(*tx, *expense)
	if err := s.link(ctx, txID, expenseID, score, false); err != nil {
		return nil, err
	}
	return s.Reconciliations.GetByTransaction(ctx, txID)
}

// Undo is the only path that removes a reconciliation. It restores the
// transaction to unreconciled and frees the expense in the same transaction.
func (s *Reconciler) Undo(ctx context.Context, userID, reconciliationID string) error {
	rec, err := s.Reconciliations.Get(ctx, userID, reconciliationID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("reconciliation %s: %w", reconciliationID, ErrNotFound)
	}
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		if err := repository.NewReconciliationRepo(tx).Delete(ctx, rec.ID); err != nil {
			return err
		}
		return repository.NewTransactionRepo(tx).UpdateStatus(ctx, rec.TransactionID, repository.StatusUnreconciled)
	})
}

// Ignore parks an unreconciled transaction; Unignore brings it back.
func (s *Reconciler) Ignore(ctx context.Context, userID, txID string) error {
	return s.setStatus(ctx, userID, txID, repository.StatusUnreconciled, repository.StatusIgnored)
}

func (s *Reconciler) Unignore(ctx context.Context, userID, txID string) error {
	return s.setStatus(ctx, userID, txID, repository.StatusIgnored, repository.StatusUnreconciled)
}

func (s *Reconciler) setStatus(ctx context.Context, userID, txID, from, to string) error {
	tx, err := s.Transactions.Get(ctx, userID, txID)
	if err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("transaction %s: %w", txID, ErrNotFound)
	}
	if tx.Status != from {
		return fmt.Errorf("transaction %s is %s: %w", txID, tx.Status, ErrConflict)
	}
	return s.Transactions.UpdateStatus(ctx, txID, to)
}

func (s *Reconciler) link(ctx context.Context, txID, expenseID string, score float64, auto bool) error {
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		rec := repository.Reconciliation{
			ID:            uuid.NewString(),
			TransactionID: txID,
			ExpenseID:     expenseID,
			Score:         score,
			AutoMatched:   auto,
		}
		if err := repository.NewReconciliationRepo(tx).Insert(ctx, rec); err != nil {
			return err
		}
		return repository.NewTransactionRepo(tx).UpdateStatus(ctx, txID, repository.StatusReconciled)
	})
}

func scoreCandidates(tx repository.Transaction, expenses []repository.Expense, paired map[string]bool) []ReviewCandidate {
	var out []ReviewCandidate
	for _, e := range expenses {
		if paired[e.ID] {
			continue
		}
		score, ok := scorePair(tx, e)
		if !ok {
			continue
		}
		out = append(out, ReviewCandidate{
			TransactionID: tx.ID,
			ExpenseID:     e.ID,
			Score:         score,
			Confidence:    confidenceBand(score),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ExpenseID < out[j].ExpenseID
	})
	return out
}

// scorePair combines amount equality (near-hard filter), date proximity
// (linear decay to zero at the cutoff) and label/category similarity into a
// [0,1] score. ok is false when the pair is not a candidate at all.
func scorePair(tx repository.Transaction, e repository.Expense) (float64, bool) {
	if !rules.AmountsMatch(tx.AbsAmount(), e.Amount.Abs()) {
		return 0, false
	}

	gap := daysBetween(tx.Date, e.Date)
	if gap > dateCutoffDays {
		return 0, false
	}
	dateScore := 1 - gap/dateCutoffDays

	labelScore := labelSimilarity(tx.Label, e.Label)
	if tx.CategoryID != nil && e.CategoryID != nil && *tx.CategoryID == *e.CategoryID {
		labelScore = 1
	}

	return weightAmount + weightDate*dateScore + weightLabel*labelScore, true
}

func labelSimilarity(a, b string) float64 {
	na, nb := rules.Normalize(a), rules.Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	longest := len(na)
	if len(nb) > longest {
		longest = len(nb)
	}
	dist := levenshtein.ComputeDistance(na, nb)
	sim := 1 - float64(dist)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

func confidenceBand(score float64) string {
	switch {
	case score >= HighThreshold:
		return "high"
	case score >= PlausibleThreshold:
		return "plausible"
	default:
		return "weak"
	}
}
