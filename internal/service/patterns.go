package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zecaptus/kasa-sub000/internal/database/repository"
	"github.com/zecaptus/kasa-sub000/internal/rules"
)

// PatternInput carries the user-editable fields of a manual recurring
// pattern.
type PatternInput struct {
	Label          string
	Keyword        string
	Amount         *decimal.Decimal
	Frequency      string
	NextOccurrence *time.Time
}

// Patterns manages user-declared recurring patterns. AUTO patterns belong to
// the detector and are read-only here.
type Patterns struct {
	Repo *repository.PatternRepo
}

// Create declares a manual pattern (rent, a subscription the detector cannot
// see yet). The keyword is normalized on the way in so it matches how the
// detector and matcher compare labels.
func (s *Patterns) Create(ctx context.Context, userID string, in PatternInput) (*repository.RecurringPattern, error) {
	if err := validatePattern(in); err != nil {
		return nil, err
	}
	p := repository.RecurringPattern{
		ID:             uuid.NewString(),
		UserID:         userID,
		Label:          strings.TrimSpace(in.Label),
		Keyword:        rules.Normalize(in.Keyword),
		Amount:         in.Amount,
		Frequency:      in.Frequency,
		Source:         repository.SourceManual,
		IsActive:       true,
		NextOccurrence: in.NextOccurrence,
	}
	if err := s.Repo.Insert(ctx, p); err != nil {
		return nil, err
	}
	return s.Repo.Get(ctx, userID, p.ID)
}

// Update rewrites a manual pattern. AUTO patterns are rejected so the
// detector's bookkeeping is never edited out from under it.
func (s *Patterns) Update(ctx context.Context, userID, id string, in PatternInput) (*repository.RecurringPattern, error) {
	if err := validatePattern(in); err != nil {
		return nil, err
	}
	existing, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	if existing.Source != repository.SourceManual {
		return nil, fmt.Errorf("pattern %s is auto-detected: %w", id, ErrForbidden)
	}
	existing.Label = strings.TrimSpace(in.Label)
	existing.Keyword = rules.Normalize(in.Keyword)
	existing.Amount = in.Amount
	existing.Frequency = in.Frequency
	existing.NextOccurrence = in.NextOccurrence
	if err := s.Repo.Update(ctx, *existing); err != nil {
		return nil, err
	}
	return s.Repo.Get(ctx, userID, id)
}

// Deactivate turns a pattern off without deleting its history.
func (s *Patterns) Deactivate(ctx context.Context, userID, id string) error {
	existing, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	return s.Repo.Deactivate(ctx, userID, id)
}

func (s *Patterns) List(ctx context.Context, userID string) ([]repository.RecurringPattern, error) {
	return s.Repo.ListByUser(ctx, userID)
}

func validatePattern(in PatternInput) error {
	if strings.TrimSpace(in.Label) == "" {
		return fmt.Errorf("label required: %w", ErrValidation)
	}
	if rules.Normalize(in.Keyword) == "" {
		return fmt.Errorf("keyword required: %w", ErrValidation)
	}
	switch in.Frequency {
	case repository.FrequencyWeekly, repository.FrequencyMonthly, repository.FrequencyAnnual:
	default:
		return fmt.Errorf("frequency %q: %w", in.Frequency, ErrValidation)
	}
	if in.Amount != nil && !in.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive: %w", ErrValidation)
	}
	return nil
}
