package repository

import (
	"context"
	"database/sql"
)

// CategoryRepo handles user and system categories.
type CategoryRepo struct {
	db DBTX
}

func NewCategoryRepo(db DBTX) *CategoryRepo { return &CategoryRepo{db: db} }

func (r *CategoryRepo) Insert(ctx context.Context, c Category) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO categories(id, user_id, name, color, slug, created_at)
	VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
	`, c.ID, c.UserID, c.Name, c.Color, c.Slug)
	return err
}

func (r *CategoryRepo) Update(ctx context.Context, c Category) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE categories SET name = ?, color = ?, slug = ? WHERE id = ? AND user_id = ?`,
		c.Name, c.Color, c.Slug, c.ID, c.UserID)
	return err
}

func (r *CategoryRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Get resolves a category visible to userID: their own or a system row.
func (r *CategoryRepo) Get(ctx context.Context, userID, id string) (*Category, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, user_id, name, color, slug, created_at
	FROM categories WHERE id = ? AND (user_id = ? OR user_id IS NULL)`, id, userID)
	c, err := scanCategory(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListVisible returns system categories plus the user's own.
func (r *CategoryRepo) ListVisible(ctx context.Context, userID string) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, user_id, name, color, slug, created_at
	FROM categories WHERE user_id = ? OR user_id IS NULL
	ORDER BY user_id IS NULL DESC, name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCategory(row scanner) (Category, error) {
	var c Category
	var userID sql.NullString
	if err := row.Scan(&c.ID, &userID, &c.Name, &c.Color, &c.Slug, &c.CreatedAt); err != nil {
		return Category{}, err
	}
	c.UserID = strPtr(userID)
	return c, nil
}
