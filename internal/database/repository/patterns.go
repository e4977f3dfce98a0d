package repository

import (
	"context"
	"database/sql"
)

// PatternRepo handles recurring patterns.
type PatternRepo struct {
	db DBTX
}

func NewPatternRepo(db DBTX) *PatternRepo { return &PatternRepo{db: db} }

func (r *PatternRepo) Insert(ctx context.Context, p RecurringPattern) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO recurring_patterns(id, user_id, label, keyword, amount, frequency, source,
	 is_active, next_occurrence, created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`, p.ID, p.UserID, p.Label, p.Keyword, decArg(p.Amount), p.Frequency, p.Source,
		p.IsActive, p.NextOccurrence)
	return err
}

func (r *PatternRepo) Update(ctx context.Context, p RecurringPattern) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE recurring_patterns SET label = ?, keyword = ?, amount = ?, frequency = ?,
	 is_active = ?, next_occurrence = ?, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND user_id = ?`,
		p.Label, p.Keyword, decArg(p.Amount), p.Frequency, p.IsActive, p.NextOccurrence,
		p.ID, p.UserID)
	return err
}

func (r *PatternRepo) Get(ctx context.Context, userID, id string) (*RecurringPattern, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, label, keyword, amount, frequency, source, is_active, next_occurrence,
	 created_at, updated_at
	FROM recurring_patterns WHERE id = ? AND user_id = ?`, id, userID)
	p, err := scanPattern(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetAutoByKeyword returns the single AUTO pattern for (user, keyword), if any.
func (r *PatternRepo) GetAutoByKeyword(ctx context.Context, userID, keyword string) (*RecurringPattern, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, label, keyword, amount, frequency, source, is_active, next_occurrence,
	 created_at, updated_at
	FROM recurring_patterns WHERE user_id = ? AND keyword = ? AND source = ?`,
		userID, keyword, SourceAuto)
	p, err := scanPattern(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PatternRepo) ListByUser(ctx context.Context, userID string) ([]RecurringPattern, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, label, keyword, amount, frequency, source, is_active, next_occurrence,
	 created_at, updated_at
	FROM recurring_patterns WHERE user_id = ? ORDER BY keyword`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecurringPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Deactivate flips is_active to false without deleting history.
func (r *PatternRepo) Deactivate(ctx context.Context, userID, id string) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE recurring_patterns SET is_active = 0, updated_at = CURRENT_TIMESTAMP
	WHERE id = ? AND user_id = ?`, id, userID)
	return err
}

func scanPattern(row scanner) (RecurringPattern, error) {
	var p RecurringPattern
	var amount sql.NullString
	var next sql.NullTime
	if err := row.Scan(&p.ID, &p.UserID, &p.Label, &p.Keyword, &amount, &p.Frequency, &p.Source,
		&p.IsActive, &next, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return RecurringPattern{}, err
	}
	p.NextOccurrence = timePtr(next)
	var err error
	if p.Amount, err = scanDec(amount); err != nil {
		return RecurringPattern{}, err
	}
	return p, nil
}
