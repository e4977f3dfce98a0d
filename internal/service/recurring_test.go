package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zecaptus/kasa-sub000/internal/database/repository"
)

func newRecurring(db *sql.DB, now time.Time) *RecurringDetector {
	return &RecurringDetector{
		Transactions: repository.NewTransactionRepo(db),
		Patterns:     repository.NewPatternRepo(db),
		Now:          func() time.Time { return now },
	}
}

func autoPatterns(t *testing.T, db *sql.DB, userID string) map[string]repository.RecurringPattern {
	t.Helper()
	all, err := repository.NewPatternRepo(db).ListByUser(context.Background(), userID)
	require.NoError(t, err)
	out := make(map[string]repository.RecurringPattern)
	for _, p := range all {
		if p.Source == repository.SourceAuto {
			out[p.Keyword] = p
		}
	}
	return out
}

func TestDetectWeeklyFromMedianGaps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")

	// gaps 6, 7, 8 -> median 7 -> weekly
	start := day(2026, 1, 5)
	dates := []time.Time{start, start.AddDate(0, 0, 6), start.AddDate(0, 0, 13), start.AddDate(0, 0, 21)}
	var txs []repository.Transaction
	for _, d := range dates {
		txs = append(txs, seedDebit(t, db, account.ID, "BASIC FIT ABONNEMENT", "29.99", d))
	}

	svc := newRecurring(db, dates[len(dates)-1].AddDate(0, 0, 2))
	require.NoError(t, svc.Detect(ctx, "alice"))

	patterns := autoPatterns(t, db, "alice")
	p, ok := patterns["BASIC FIT ABONNEMENT"]
	require.True(t, ok)
	require.Equal(t, repository.FrequencyWeekly, p.Frequency)
	require.True(t, p.IsActive)
	require.NotNil(t, p.NextOccurrence)
	require.True(t, p.NextOccurrence.Equal(dates[len(dates)-1].AddDate(0, 0, 7)))
	require.True(t, p.Amount.Equal(dec("29.99")))

	for _, tx := range txs {
		got := getTransaction(t, db, "alice", tx.ID)
		require.NotNil(t, got.PatternID)
		require.Equal(t, p.ID, *got.PatternID)
	}
}

func TestDetectMonthlyFromMedianGaps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")

	// gaps 27, 30, 33 -> median 30 -> monthly
	start := day(2025, 10, 1)
	dates := []time.Time{start, start.AddDate(0, 0, 27), start.AddDate(0, 0, 57), start.AddDate(0, 0, 90)}
	for _, d := range dates {
		seedDebit(t, db, account.ID, "NETFLIX.COM", "13.49", d)
	}

	svc := newRecurring(db, dates[len(dates)-1].AddDate(0, 0, 5))
	require.NoError(t, svc.Detect(ctx, "alice"))

	p, ok := autoPatterns(t, db, "alice")["NETFLIX.COM"]
	require.True(t, ok)
	require.Equal(t, repository.FrequencyMonthly, p.Frequency)
	require.True(t, p.IsActive)
}

func TestDetectDiscardsOutOfBandGaps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")

	// gaps 15, 15 -> median 15, outside every band
	start := day(2026, 1, 1)
	for _, offset := range []int{0, 15, 30} {
		seedDebit(t, db, account.ID, "CANTINE SCOLAIRE", "45.00", start.AddDate(0, 0, offset))
	}

	svc := newRecurring(db, start.AddDate(0, 0, 32))
	require.NoError(t, svc.Detect(ctx, "alice"))
	require.Empty(t, autoPatterns(t, db, "alice"))
}

func TestDetectRejectsInconsistentAmounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")

	// perfect monthly timing, amounts 100, 100, 500: variation way over the ceiling
	start := day(2026, 1, 1)
	for i, amount := range []string{"100.00", "100.00", "500.00"} {
		seedDebit(t, db, account.ID, "GARAGE MARTIN", amount, start.AddDate(0, 0, 30*i))
	}

	svc := newRecurring(db, start.AddDate(0, 0, 62))
	require.NoError(t, svc.Detect(ctx, "alice"))
	require.Empty(t, autoPatterns(t, db, "alice"))
}

func TestDetectAcceptsConstantAmounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")

	start := day(2026, 1, 1)
	for i := 0; i < 3; i++ {
		seedDebit(t, db, account.ID, "LOYER AGENCE IMMO", "100.00", start.AddDate(0, 0, 30*i))
	}

	svc := newRecurring(db, start.AddDate(0, 0, 62))
	require.NoError(t, svc.Detect(ctx, "alice"))

	p, ok := autoPatterns(t, db, "alice")["LOYER AGENCE IMMO"]
	require.True(t, ok)
	require.Equal(t, repository.FrequencyMonthly, p.Frequency)
}

func TestDetectIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")

	start := day(2026, 1, 1)
	for i := 0; i < 3; i++ {
		seedDebit(t, db, account.ID, "SPOTIFY AB", "10.99", start.AddDate(0, 0, 30*i))
	}

	svc := newRecurring(db, start.AddDate(0, 0, 62))
	require.NoError(t, svc.Detect(ctx, "alice"))
	first := autoPatterns(t, db, "alice")
	require.Len(t, first, 1)

	require.NoError(t, svc.Detect(ctx, "alice"))
	second := autoPatterns(t, db, "alice")
	require.Len(t, second, 1)
	require.Equal(t, first["SPOTIFY AB"].ID, second["SPOTIFY AB"].ID)
}

func TestDetectDeactivatesStalePatterns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")

	// subscription that stopped: last charge far in the past
	start := day(2025, 1, 1)
	for i := 0; i < 3; i++ {
		seedDebit(t, db, account.ID, "CANAL PLUS", "24.99", start.AddDate(0, 0, 30*i))
	}

	active := newRecurring(db, start.AddDate(0, 0, 70))
	require.NoError(t, active.Detect(ctx, "alice"))
	p := autoPatterns(t, db, "alice")["CANAL PLUS"]
	require.True(t, p.IsActive)

	// a year later the last charge is past twice the interval
	later := newRecurring(db, start.AddDate(1, 0, 0))
	require.NoError(t, later.Detect(ctx, "alice"))
	p = autoPatterns(t, db, "alice")["CANAL PLUS"]
	require.False(t, p.IsActive)
}

func TestDetectDeactivatesVanishedKeyword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	seedAccount(t, db, "alice", "Courant")

	repo := repository.NewPatternRepo(db)
	ghost := repository.RecurringPattern{
		ID:        "pat-ghost",
		UserID:    "alice",
		Label:     "Old Gym",
		Keyword:   "OLD GYM",
		Frequency: repository.FrequencyMonthly,
		Source:    repository.SourceAuto,
		IsActive:  true,
	}
	require.NoError(t, repo.Insert(ctx, ghost))

	// no transaction matches OLD GYM anymore
	svc := newRecurring(db, day(2026, 6, 1))
	require.NoError(t, svc.Detect(ctx, "alice"))

	got, err := repo.Get(ctx, "alice", ghost.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.False(t, got.IsActive)
}

func TestDetectLeavesManualPatternsAlone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	seedAccount(t, db, "alice", "Courant")

	patterns := &Patterns{Repo: repository.NewPatternRepo(db)}
	amount := dec("800.00")
	manual, err := patterns.Create(ctx, "alice", PatternInput{
		Label:     "Loyer",
		Keyword:   "LOYER",
		Amount:    &amount,
		Frequency: repository.FrequencyMonthly,
	})
	require.NoError(t, err)

	// a detection pass that re-detects nothing must not touch the manual row
	svc := newRecurring(db, day(2026, 6, 1))
	require.NoError(t, svc.Detect(ctx, "alice"))

	got, err := repository.NewPatternRepo(db).Get(ctx, "alice", manual.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.True(t, got.IsActive)
	require.Equal(t, repository.SourceManual, got.Source)
}
