package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zecaptus/kasa-sub000/internal/database/repository"
)

func TestManualPatternCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := &Patterns{Repo: repository.NewPatternRepo(db)}

	next := day(2026, time.April, 1)
	created, err := svc.Create(ctx, "alice", PatternInput{
		Label:          "Loyer",
		Keyword:        "  Virement Loyer ",
		Amount:         decPtr("850.00"),
		Frequency:      repository.FrequencyMonthly,
		NextOccurrence: &next,
	})
	require.NoError(t, err)
	require.Equal(t, "VIREMENT LOYER", created.Keyword)
	require.Equal(t, repository.SourceManual, created.Source)
	require.True(t, created.IsActive)

	updated, err := svc.Update(ctx, "alice", created.ID, PatternInput{
		Label:     "Loyer (nouveau bail)",
		Keyword:   "VIREMENT LOYER",
		Amount:    decPtr("900.00"),
		Frequency: repository.FrequencyMonthly,
	})
	require.NoError(t, err)
	require.True(t, updated.Amount.Equal(dec("900.00")))
	require.Nil(t, updated.NextOccurrence)

	require.NoError(t, svc.Deactivate(ctx, "alice", created.ID))
	listed, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.False(t, listed[0].IsActive)
}

func TestPatternValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := &Patterns{Repo: repository.NewPatternRepo(db)}

	cases := []PatternInput{
		{Label: "", Keyword: "NETFLIX", Frequency: repository.FrequencyMonthly},
		{Label: "Netflix", Keyword: "   ", Frequency: repository.FrequencyMonthly},
		{Label: "Netflix", Keyword: "NETFLIX", Frequency: "fortnightly"},
		{Label: "Netflix", Keyword: "NETFLIX", Frequency: repository.FrequencyMonthly, Amount: decPtr("-5.00")},
	}
	for _, in := range cases {
		_, err := svc.Create(ctx, "alice", in)
		require.ErrorIs(t, err, ErrValidation)
	}
}

func TestAutoPatternsRejectManualEdits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewPatternRepo(db)
	svc := &Patterns{Repo: repo}

	auto := repository.RecurringPattern{
		ID:        uuid.NewString(),
		UserID:    "alice",
		Label:     "Netflix",
		Keyword:   "NETFLIX",
		Frequency: repository.FrequencyMonthly,
		Source:    repository.SourceAuto,
		IsActive:  true,
	}
	require.NoError(t, repo.Insert(ctx, auto))

	_, err := svc.Update(ctx, "alice", auto.ID, PatternInput{
		Label: "Netflix", Keyword: "NETFLIX", Frequency: repository.FrequencyMonthly,
	})
	require.ErrorIs(t, err, ErrForbidden)

	// deactivating an auto pattern stays allowed
	require.NoError(t, svc.Deactivate(ctx, "alice", auto.ID))
}

func TestPatternUserScoping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := &Patterns{Repo: repository.NewPatternRepo(db)}

	created, err := svc.Create(ctx, "alice", PatternInput{
		Label: "Loyer", Keyword: "VIREMENT LOYER", Frequency: repository.FrequencyMonthly,
	})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "mallory", created.ID, PatternInput{
		Label: "Hijack", Keyword: "X", Frequency: repository.FrequencyMonthly,
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, svc.Deactivate(ctx, "mallory", created.ID), ErrNotFound)
}
