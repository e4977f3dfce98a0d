package repository

import (
	"context"
	"database/sql"
)

// AccountRepo handles accounts.
type AccountRepo struct {
	db DBTX
}

func NewAccountRepo(db DBTX) *AccountRepo { return &AccountRepo{db: db} }

func (r *AccountRepo) Upsert(ctx context.Context, a Account) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO accounts(id, user_id, name, number, account_type, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET name=excluded.name, number=excluded.number,
	  account_type=excluded.account_type, updated_at=CURRENT_TIMESTAMP;
	`, a.ID, a.UserID, a.Name, a.Number, a.AccountType)
	return err
}

// Get returns the account only when it belongs to userID.
func (r *AccountRepo) Get(ctx context.Context, userID, id string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, name, number, account_type, created_at, updated_at
	FROM accounts WHERE id = ? AND user_id = ?`, id, userID)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// GetByNumber resolves an account by statement account number.
func (r *AccountRepo) GetByNumber(ctx context.Context, userID, number string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, name, number, account_type, created_at, updated_at
	FROM accounts WHERE user_id = ? AND number = ?`, userID, number)
	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) ListByUser(ctx context.Context, userID string) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, name, number, account_type, created_at, updated_at
	FROM accounts WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(row scanner) (Account, error) {
	var a Account
	var number sql.NullString
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &number, &a.AccountType, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	a.Number = strPtr(number)
	return a, nil
}
