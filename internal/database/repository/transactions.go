package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrAlreadyLinked is returned when a transfer link would overwrite an
// existing peer on either side.
var ErrAlreadyLinked = errors.New("transaction already linked to a transfer peer")

const transactionColumns = `t.id, t.account_id, t.import_id, t.date, t.value_date, t.label, t.detail,
 t.debit, t.credit, t.status, t.category_id, t.category_source, t.pattern_id, t.transfer_peer_id,
 t.created_at, t.updated_at`

// TransactionFilters defines list filters. All listings are user-scoped
// through the owning account.
type TransactionFilters struct {
	Status         string
	AccountID      string
	CategoryID     string
	CategorySource string
	DebitsOnly     bool
	Unlinked       bool // no transfer peer
}

// TransactionRepo handles imported transactions.
type TransactionRepo struct {
	db DBTX
}

func NewTransactionRepo(db DBTX) *TransactionRepo { return &TransactionRepo{db: db} }

func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(
	 id, account_id, import_id, date, value_date, label, detail, debit, credit,
	 status, category_id, category_source, pattern_id, transfer_peer_id, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		t.ID, t.AccountID, t.ImportID, t.Date, t.ValueDate, t.Label, t.Detail,
		decArg(t.Debit), decArg(t.Credit), t.Status, t.CategoryID, t.CategorySource,
		t.PatternID, t.TransferPeerID)
	return err
}

// ExistsDuplicate reports whether a row with the dedupe key
// (account, date, label, debit, credit) already exists.
func (r *TransactionRepo) ExistsDuplicate(ctx context.Context, accountID string, date time.Time, label string, debit, credit *decimal.Decimal) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT COUNT(*) FROM transactions
	WHERE account_id = ? AND date = ? AND label = ?
	  AND COALESCE(debit, '') = COALESCE(?, '') AND COALESCE(credit, '') = COALESCE(?, '')`,
		accountID, date, label, decArg(debit), decArg(credit))
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get returns the transaction only when its account belongs to userID.
func (r *TransactionRepo) Get(ctx context.Context, userID, id string) (*Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT `+transactionColumns+`
	FROM transactions t JOIN accounts a ON a.id = t.account_id
	WHERE t.id = ? AND a.user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) List(ctx context.Context, userID string, f TransactionFilters) ([]Transaction, error) {
	where := []string{"a.user_id = ?"}
	args := []interface{}{userID}

	if f.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, f.Status)
	}
	if f.AccountID != "" {
		where = append(where, "t.account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.CategoryID != "" {
		where = append(where, "t.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.CategorySource != "" {
		where = append(where, "t.category_source = ?")
		args = append(args, f.CategorySource)
	}
	if f.DebitsOnly {
		where = append(where, "t.debit IS NOT NULL")
	}
	if f.Unlinked {
		where = append(where, "t.transfer_peer_id IS NULL")
	}

	query := `SELECT ` + transactionColumns + `
	FROM transactions t JOIN accounts a ON a.id = t.account_id
	WHERE ` + strings.Join(where, " AND ") + `
	ORDER BY t.date ASC, t.id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TransactionRepo) UpdateCategory(ctx context.Context, id string, categoryID *string, source string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET category_id = ?, category_source = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ?`, categoryID, source, id)
	return err
}

func (r *TransactionRepo) UpdateStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	return err
}

func (r *TransactionRepo) SetPattern(ctx context.Context, id string, patternID *string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE transactions SET pattern_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, patternID, id)
	return err
}

// LinkTransferPeers writes both sides of a transfer pair in one statement so
// the link is never half-applied. It refuses to touch rows that are already
// linked.
func (r *TransactionRepo) LinkTransferPeers(ctx context.Context, aID, bID string) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE transactions
	SET transfer_peer_id = CASE id WHEN ? THEN ? WHEN ? THEN ? END,
	    updated_at = CURRENT_TIMESTAMP
	WHERE id IN (?, ?) AND transfer_peer_id IS NULL`,
		aID, bID, bID, aID, aID, bID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 2 {
		return ErrAlreadyLinked
	}
	return nil
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var importID, detail, debit, credit, category, pattern, peer sql.NullString
	var valueDate sql.NullTime
	if err := row.Scan(&t.ID, &t.AccountID, &importID, &t.Date, &valueDate, &t.Label, &detail,
		&debit, &credit, &t.Status, &category, &t.CategorySource, &pattern, &peer,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, err
	}
	t.ImportID = strPtr(importID)
	t.ValueDate = timePtr(valueDate)
	t.Detail = strPtr(detail)
	t.CategoryID = strPtr(category)
	t.PatternID = strPtr(pattern)
	t.TransferPeerID = strPtr(peer)
	var err error
	if t.Debit, err = scanDec(debit); err != nil {
		return Transaction{}, err
	}
	if t.Credit, err = scanDec(credit); err != nil {
		return Transaction{}, err
	}
	return t, nil
}
