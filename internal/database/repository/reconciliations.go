package repository

import (
	"context"
	"database/sql"
)

// ReconciliationRepo handles the one-to-one transaction/expense join.
type ReconciliationRepo struct {
	db DBTX
}

func NewReconciliationRepo(db DBTX) *ReconciliationRepo { return &ReconciliationRepo{db: db} }

func (r *ReconciliationRepo) Insert(ctx context.Context, rc Reconciliation) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO reconciliations(id, transaction_id, expense_id, score, auto_matched, created_at)
	VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
	`, rc.ID, rc.TransactionID, rc.ExpenseID, rc.Score, rc.AutoMatched)
	return err
}

func (r *ReconciliationRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reconciliations WHERE id = ?`, id)
	return err
}

// Get returns the reconciliation only when its transaction belongs to userID.
func (r *ReconciliationRepo) Get(ctx context.Context, userID, id string) (*Reconciliation, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT rc.id, rc.transaction_id, rc.expense_id, rc.score, rc.auto_matched, rc.created_at
	FROM reconciliations rc
	JOIN transactions t ON t.id = rc.transaction_id
	JOIN accounts a ON a.id = t.account_id
	WHERE rc.id = ? AND a.user_id = ?`, id, userID)
	return scanReconciliationRow(row)
}

func (r *ReconciliationRepo) GetByTransaction(ctx context.Context, transactionID string) (*Reconciliation, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, transaction_id, expense_id, score, auto_matched, created_at
	FROM reconciliations WHERE transaction_id = ?`, transactionID)
	return scanReconciliationRow(row)
}

func (r *ReconciliationRepo) GetByExpense(ctx context.Context, expenseID string) (*Reconciliation, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, transaction_id, expense_id, score, auto_matched, created_at
	FROM reconciliations WHERE expense_id = ?`, expenseID)
	return scanReconciliationRow(row)
}

func scanReconciliationRow(row *sql.Row) (*Reconciliation, error) {
	var rc Reconciliation
	if err := row.Scan(&rc.ID, &rc.TransactionID, &rc.ExpenseID, &rc.Score, &rc.AutoMatched, &rc.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rc, nil
}
