package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zecaptus/kasa-sub000/internal/database/repository"
)

const (
	defaultTimelinePageSize = 50
	maxTimelinePageSize     = 200
)

// TimelinePage is one page of the transactions-union-expenses feed. Cursor
// is empty on the last page.
type TimelinePage struct {
	Entries []repository.TimelineEntry `json:"entries"`
	Cursor  string                     `json:"cursor,omitempty"`
}

// Dashboard exposes the read-only rollups. It never mutates core state.
type Dashboard struct {
	Repo *repository.DashboardRepo
}

func (s *Dashboard) Balances(ctx context.Context, userID string) ([]repository.AccountBalance, error) {
	return s.Repo.Balances(ctx, userID)
}

// SpendByCategory sums debits per category over [from, to). Transfer legs are
// excluded so internal movements never count as spending.
func (s *Dashboard) SpendByCategory(ctx context.Context, userID string, from, to time.Time) ([]repository.CategorySpend, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("empty date range: %w", ErrValidation)
	}
	return s.Repo.SpendByCategory(ctx, userID, from, to)
}

// Timeline returns one page ordered date desc, id asc. The cursor is opaque
// to callers; a tampered cursor is a validation error, not a crash.
func (s *Dashboard) Timeline(ctx context.Context, userID, cursor string, limit int) (TimelinePage, error) {
	if limit <= 0 {
		limit = defaultTimelinePageSize
	}
	if limit > maxTimelinePageSize {
		limit = maxTimelinePageSize
	}

	var cursorDate time.Time
	var cursorID string
	if cursor != "" {
		c, err := decodeCursor(cursor)
		if err != nil {
			return TimelinePage{}, fmt.Errorf("bad cursor: %w", ErrValidation)
		}
		cursorDate, cursorID = c.Date, c.ID
	}

	// one extra row tells us whether another page exists
	entries, err := s.Repo.Timeline(ctx, userID, cursorDate, cursorID, limit+1)
	if err != nil {
		return TimelinePage{}, err
	}

	page := TimelinePage{}
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		page.Cursor = encodeCursor(timelineCursor{Date: last.Date, ID: last.ID})
	}
	page.Entries = entries
	return page, nil
}

type timelineCursor struct {
	Date time.Time `json:"d"`
	ID   string    `json:"i"`
}

func encodeCursor(c timelineCursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(s string) (timelineCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return timelineCursor{}, err
	}
	var c timelineCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return timelineCursor{}, err
	}
	if c.Date.IsZero() || c.ID == "" {
		return timelineCursor{}, fmt.Errorf("incomplete cursor")
	}
	return c, nil
}
