package repository

import (
	"context"
	"database/sql"
)

// ImportRepo records import sessions.
type ImportRepo struct {
	db DBTX
}

func NewImportRepo(db DBTX) *ImportRepo { return &ImportRepo{db: db} }

func (r *ImportRepo) Insert(ctx context.Context, s ImportSession) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO import_sessions(id, user_id, account_id, filename, balance, range_start, range_end,
	 new_count, skipped_count, imported_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
	`, s.ID, s.UserID, s.AccountID, s.Filename, decArg(s.Balance), s.RangeStart, s.RangeEnd,
		s.NewCount, s.SkippedCount)
	return err
}

func (r *ImportRepo) UpdateCounts(ctx context.Context, id string, newCount, skippedCount int) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE import_sessions SET new_count = ?, skipped_count = ? WHERE id = ?`, newCount, skippedCount, id)
	return err
}

func (r *ImportRepo) ListByUser(ctx context.Context, userID string) ([]ImportSession, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, account_id, filename, balance, range_start, range_end,
	 new_count, skipped_count, imported_at
	FROM import_sessions WHERE user_id = ? ORDER BY imported_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ImportSession
	for rows.Next() {
		var s ImportSession
		var balance sql.NullString
		var start, end sql.NullTime
		if err := rows.Scan(&s.ID, &s.UserID, &s.AccountID, &s.Filename, &balance, &start, &end,
			&s.NewCount, &s.SkippedCount, &s.ImportedAt); err != nil {
			return nil, err
		}
		s.RangeStart = timePtr(start)
		s.RangeEnd = timePtr(end)
		if s.Balance, err = scanDec(balance); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
