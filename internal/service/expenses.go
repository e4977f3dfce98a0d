package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zecaptus/kasa-sub000/internal/database"
	"github.com/zecaptus/kasa-sub000/internal/database/repository"
)

// ExpenseInput carries the user-editable fields of a manual expense.
type ExpenseInput struct {
	Label      string
	Amount     decimal.Decimal
	Date       time.Time
	CategoryID *string
}

// Expenses manages manual expense entries. Creating one immediately attempts
// reconciliation against the user's unreconciled transactions.
type Expenses struct {
	DB              *sql.DB
	Repo            *repository.ExpenseRepo
	Categories      *repository.CategoryRepo
	Reconciliations *repository.ReconciliationRepo
	Reconciler      *Reconciler
}

// Create stores the expense and runs a reconciliation pass. The returned
// RunResult is informational; the create itself succeeds even when the pass
// fails.
func (s *Expenses) Create(ctx context.Context, userID string, in ExpenseInput) (*repository.Expense, *RunResult, error) {
	if err := s.validate(ctx, userID, in); err != nil {
		return nil, nil, err
	}
	e := repository.Expense{
		ID:             uuid.NewString(),
		UserID:         userID,
		Label:          strings.TrimSpace(in.Label),
		Amount:         in.Amount,
		Date:           in.Date,
		CategoryID:     in.CategoryID,
		CategorySource: categorySource(in.CategoryID),
	}
	if err := s.Repo.Insert(ctx, e); err != nil {
		return nil, nil, err
	}

	var run *RunResult
	if s.Reconciler != nil {
		if r, err := s.Reconciler.Run(ctx, userID); err == nil {
			run = &r
		}
	}
	stored, err := s.Repo.Get(ctx, userID, e.ID)
	if err != nil {
		return nil, nil, err
	}
	return stored, run, nil
}

// Update rewrites the editable fields. A reconciled expense stays reconciled;
// editing it never touches the paired transaction.
func (s *Expenses) Update(ctx context.Context, userID, id string, in ExpenseInput) (*repository.Expense, error) {
	if err := s.validate(ctx, userID, in); err != nil {
		return nil, err
	}
	existing, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	existing.Label = strings.TrimSpace(in.Label)
	existing.Amount = in.Amount
	existing.Date = in.Date
	existing.CategoryID = in.CategoryID
	existing.CategorySource = categorySource(in.CategoryID)
	if err := s.Repo.Update(ctx, *existing); err != nil {
		return nil, err
	}
	return s.Repo.Get(ctx, userID, id)
}

// Delete removes the expense. When it is reconciled, the paired transaction
// is restored to unreconciled and the reconciliation row removed in the same
// transaction, never leaving a dangling pair.
func (s *Expenses) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	rec, err := s.Reconciliations.GetByExpense(ctx, id)
	if err != nil {
		return err
	}
	return database.WithTx(s.DB, func(tx *sql.Tx) error {
		if rec != nil {
			if err := repository.NewReconciliationRepo(tx).Delete(ctx, rec.ID); err != nil {
				return err
			}
			if err := repository.NewTransactionRepo(tx).UpdateStatus(ctx, rec.TransactionID, repository.StatusUnreconciled); err != nil {
				return err
			}
		}
		ok, err := repository.NewExpenseRepo(tx).Delete(ctx, userID, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("expense %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

func (s *Expenses) Get(ctx context.Context, userID, id string) (*repository.Expense, error) {
	e, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("expense %s: %w", id, ErrNotFound)
	}
	return e, nil
}

func (s *Expenses) List(ctx context.Context, userID string) ([]repository.Expense, error) {
	return s.Repo.ListByUser(ctx, userID)
}

func (s *Expenses) validate(ctx context.Context, userID string, in ExpenseInput) error {
	if strings.TrimSpace(in.Label) == "" {
		return fmt.Errorf("label required: %w", ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive: %w", ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("date required: %w", ErrValidation)
	}
	if in.CategoryID != nil {
		cat, err := s.Categories.Get(ctx, userID, *in.CategoryID)
		if err != nil {
			return err
		}
		if cat == nil {
			return fmt.Errorf("category %s: %w", *in.CategoryID, ErrNotFound)
		}
	}
	return nil
}

func categorySource(categoryID *string) string {
	if categoryID == nil {
		return repository.SourceNone
	}
	return repository.SourceManual
}
