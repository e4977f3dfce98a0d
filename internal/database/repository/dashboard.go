package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// DashboardRepo holds the raw aggregate queries behind the dashboard and
// timeline read models. These are projections only; nothing here mutates.
type DashboardRepo struct {
	db DBTX
}

func NewDashboardRepo(db DBTX) *DashboardRepo { return &DashboardRepo{db: db} }

// AccountBalance is the credit-minus-debit rollup for one account.
type AccountBalance struct {
	AccountID string
	Name      string
	Balance   decimal.Decimal
}

func (r *DashboardRepo) Balances(ctx context.Context, userID string) ([]AccountBalance, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT a.id, a.name,
	       COALESCE(SUM(CAST(COALESCE(t.credit, '0') AS REAL) - CAST(COALESCE(t.debit, '0') AS REAL)), 0)
	FROM accounts a LEFT JOIN transactions t ON t.account_id = a.id
	WHERE a.user_id = ?
	GROUP BY a.id, a.name
	ORDER BY a.name;
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		var total float64
		if err := rows.Scan(&b.AccountID, &b.Name, &total); err != nil {
			return nil, err
		}
		b.Balance = decimal.NewFromFloat(total).Round(2)
		out = append(out, b)
	}
	return out, rows.Err()
}

// CategorySpend is the debit total for one category over a window.
type CategorySpend struct {
	CategoryID *string
	Total      decimal.Decimal
}

// SpendByCategory sums debits grouped by category over [from, to).
func (r *DashboardRepo) SpendByCategory(ctx context.Context, userID string, from, to time.Time) ([]CategorySpend, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT t.category_id, SUM(CAST(t.debit AS REAL)) AS total
	FROM transactions t JOIN accounts a ON a.id = t.account_id
	WHERE a.user_id = ? AND t.debit IS NOT NULL AND t.date >= ? AND t.date < ?
	  AND t.transfer_peer_id IS NULL
	GROUP BY t.category_id
	ORDER BY total DESC;
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategorySpend
	for rows.Next() {
		var cs CategorySpend
		var category sql.NullString
		var total float64
		if err := rows.Scan(&category, &total); err != nil {
			return nil, err
		}
		cs.CategoryID = strPtr(category)
		cs.Total = decimal.NewFromFloat(total).Round(2)
		out = append(out, cs)
	}
	return out, rows.Err()
}

// TimelineEntry is one row of the transactions-union-expenses timeline.
type TimelineEntry struct {
	Kind       string // "transaction" or "expense"
	ID         string
	Date       time.Time
	Label      string
	Amount     decimal.Decimal
	CategoryID *string
}

// Timeline pages through the union of transactions and expenses, date desc
// then id asc, with keyset pagination so the page is stable under concurrent
// inserts. Pass a zero cursorDate for the first page.
func (r *DashboardRepo) Timeline(ctx context.Context, userID string, cursorDate time.Time, cursorID string, limit int) ([]TimelineEntry, error) {
	query := `
	SELECT kind, id, date, label, amount, category_id FROM (
	  SELECT 'transaction' AS kind, t.id AS id, t.date AS date, t.label AS label,
	         CAST(COALESCE(t.credit, '0') AS REAL) - CAST(COALESCE(t.debit, '0') AS REAL) AS amount,
	         t.category_id AS category_id
	  FROM transactions t JOIN accounts a ON a.id = t.account_id
	  WHERE a.user_id = ?
	  UNION ALL
	  SELECT 'expense', e.id, e.date, e.label, -CAST(e.amount AS REAL), e.category_id
	  FROM expenses e WHERE e.user_id = ?
	)`
	args := []interface{}{userID, userID}
	if !cursorDate.IsZero() {
		query += ` WHERE date < ? OR (date = ? AND id > ?)`
		args = append(args, cursorDate, cursorDate, cursorID)
	}
	query += ` ORDER BY date DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		var category sql.NullString
		var amount float64
		if err := rows.Scan(&e.Kind, &e.ID, &e.Date, &e.Label, &amount, &category); err != nil {
			return nil, err
		}
		e.CategoryID = strPtr(category)
		e.Amount = decimal.NewFromFloat(amount).Round(2)
		out = append(out, e)
	}
	return out, rows.Err()
}
