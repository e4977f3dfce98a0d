package service

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/zecaptus/kasa-sub000/internal/database/repository"
	"github.com/zecaptus/kasa-sub000/internal/rules"
)

const defaultCategoryColor = "#9ca3af"

// Categories manages the user's category set. System categories are visible
// to everyone and immutable through this service.
type Categories struct {
	Repo *repository.CategoryRepo
}

// Create adds a user category. Names collide case-sensitively within the
// user's scope (system names live in their own scope).
func (s *Categories) Create(ctx context.Context, userID, name, color string) (*repository.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name required: %w", ErrValidation)
	}
	if color == "" {
		color = defaultCategoryColor
	}
	c := repository.Category{
		ID:     uuid.NewString(),
		UserID: &userID,
		Name:   name,
		Color:  color,
		Slug:   Slugify(name),
	}
	if err := s.Repo.Insert(ctx, c); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("category %q already exists: %w", name, ErrConflict)
		}
		return nil, err
	}
	return s.Repo.Get(ctx, userID, c.ID)
}

// Update renames or recolors one of the user's own categories.
func (s *Categories) Update(ctx context.Context, userID, id, name, color string) (*repository.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("name required: %w", ErrValidation)
	}
	existing, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if existing.UserID == nil {
		return nil, fmt.Errorf("category %s is a system category: %w", id, ErrForbidden)
	}
	existing.Name = name
	if color != "" {
		existing.Color = color
	}
	existing.Slug = Slugify(name)
	if err := s.Repo.Update(ctx, *existing); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("category %q already exists: %w", name, ErrConflict)
		}
		return nil, err
	}
	return s.Repo.Get(ctx, userID, id)
}

// Delete removes a user category. Transactions keep working: their
// category_id is cleared by the foreign key's ON DELETE SET NULL.
func (s *Categories) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	if existing.UserID == nil {
		return fmt.Errorf("category %s is a system category: %w", id, ErrForbidden)
	}
	ok, err := s.Repo.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Categories) List(ctx context.Context, userID string) ([]repository.Category, error) {
	return s.Repo.ListVisible(ctx, userID)
}

// Slugify derives a url-safe slug from a category name.
func Slugify(name string) string {
	normalized := strings.ToLower(rules.Normalize(name))
	var b strings.Builder
	lastDash := true
	for _, r := range normalized {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
