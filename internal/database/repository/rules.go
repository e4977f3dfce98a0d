package repository

import (
	"context"
	"database/sql"
)

// RuleRepo stores category rules and transfer label rules.
type RuleRepo struct {
	db DBTX
}

func NewRuleRepo(db DBTX) *RuleRepo { return &RuleRepo{db: db} }

func (r *RuleRepo) Insert(ctx context.Context, cr CategoryRule) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO category_rules(id, user_id, keyword, category_id, amount, created_at)
	VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
	`, cr.ID, cr.UserID, cr.Keyword, cr.CategoryID, decArg(cr.Amount))
	return err
}

func (r *RuleRepo) Update(ctx context.Context, cr CategoryRule) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE category_rules SET keyword = ?, category_id = ?, amount = ?
	WHERE id = ? AND user_id = ?`,
		cr.Keyword, cr.CategoryID, decArg(cr.Amount), cr.ID, cr.UserID)
	return err
}

func (r *RuleRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM category_rules WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Get resolves a rule visible to userID: their own or a system row.
func (r *RuleRepo) Get(ctx context.Context, userID, id string) (*CategoryRule, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, keyword, category_id, amount, created_at
	FROM category_rules WHERE id = ? AND (user_id = ? OR user_id IS NULL)`, id, userID)
	cr, err := scanCategoryRule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &cr, nil
}

// ListVisible returns system rules plus the user's own, in one pool.
func (r *RuleRepo) ListVisible(ctx context.Context, userID string) ([]CategoryRule, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, keyword, category_id, amount, created_at
	FROM category_rules WHERE user_id = ? OR user_id IS NULL
	ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategoryRule
	for rows.Next() {
		cr, err := scanCategoryRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

func scanCategoryRule(row scanner) (CategoryRule, error) {
	var cr CategoryRule
	var userID, amount sql.NullString
	if err := row.Scan(&cr.ID, &userID, &cr.Keyword, &cr.CategoryID, &amount, &cr.CreatedAt); err != nil {
		return CategoryRule{}, err
	}
	cr.UserID = strPtr(userID)
	var err error
	if cr.Amount, err = scanDec(amount); err != nil {
		return CategoryRule{}, err
	}
	return cr, nil
}

func (r *RuleRepo) InsertTransferLabelRule(ctx context.Context, tr TransferLabelRule) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transfer_label_rules(id, user_id, keyword, label, amount, created_at)
	VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
	`, tr.ID, tr.UserID, tr.Keyword, tr.Label, decArg(tr.Amount))
	return err
}

func (r *RuleRepo) DeleteTransferLabelRule(ctx context.Context, userID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transfer_label_rules WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *RuleRepo) ListTransferLabelRules(ctx context.Context, userID string) ([]TransferLabelRule, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, keyword, label, amount, created_at
	FROM transfer_label_rules WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TransferLabelRule
	for rows.Next() {
		var tr TransferLabelRule
		var amount sql.NullString
		if err := rows.Scan(&tr.ID, &tr.UserID, &tr.Keyword, &tr.Label, &amount, &tr.CreatedAt); err != nil {
			return nil, err
		}
		var err error
		if tr.Amount, err = scanDec(amount); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
