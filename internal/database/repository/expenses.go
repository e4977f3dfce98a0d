package repository

import (
	"context"
	"database/sql"
)

const expenseColumns = `e.id, e.user_id, e.label, e.amount, e.date, e.category_id, e.category_source,
 e.created_at, e.updated_at`

// ExpenseRepo handles manual expenses.
type ExpenseRepo struct {
	db DBTX
}

func NewExpenseRepo(db DBTX) *ExpenseRepo { return &ExpenseRepo{db: db} }

func (r *ExpenseRepo) Insert(ctx context.Context, e Expense) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO expenses(id, user_id, label, amount, date, category_id, category_source, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, e.ID, e.UserID, e.Label, e.Amount.String(), e.Date, e.CategoryID, e.CategorySource)
	return err
}

func (r *ExpenseRepo) Update(ctx context.Context, e Expense) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE expenses SET label = ?, amount = ?, date = ?, category_id = ?, category_source = ?,
	  updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND user_id = ?`,
		e.Label, e.Amount.String(), e.Date, e.CategoryID, e.CategorySource, e.ID, e.UserID)
	return err
}

func (r *ExpenseRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *ExpenseRepo) Get(ctx context.Context, userID, id string) (*Expense, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT `+expenseColumns+` FROM expenses e WHERE e.id = ? AND e.user_id = ?`, id, userID)
	e, err := scanExpense(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *ExpenseRepo) ListByUser(ctx context.Context, userID string) ([]Expense, error) {
	return r.list(ctx, `
	SELECT `+expenseColumns+` FROM expenses e WHERE e.user_id = ? ORDER BY e.date ASC, e.id ASC`, userID)
}

// ListUnreconciled returns expenses without a reconciliation row.
func (r *ExpenseRepo) ListUnreconciled(ctx context.Context, userID string) ([]Expense, error) {
	return r.list(ctx, `
	SELECT `+expenseColumns+`
	FROM expenses e LEFT JOIN reconciliations rc ON rc.expense_id = e.id
	WHERE e.user_id = ? AND rc.id IS NULL
	ORDER BY e.date ASC, e.id ASC`, userID)
}

func (r *ExpenseRepo) list(ctx context.Context, query string, args ...interface{}) ([]Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExpense(row scanner) (Expense, error) {
	var e Expense
	var amount string
	var category sql.NullString
	if err := row.Scan(&e.ID, &e.UserID, &e.Label, &amount, &e.Date, &category, &e.CategorySource,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return Expense{}, err
	}
	e.CategoryID = strPtr(category)
	d, err := scanDec(sql.NullString{String: amount, Valid: true})
	if err != nil {
		return Expense{}, err
	}
	e.Amount = *d
	return e, nil
}
