package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zecaptus/kasa-sub000/internal/database/repository"
)

func TestSuggestRanksUncoveredLabels(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")
	svc := &Suggester{
		Transactions: repository.NewTransactionRepo(db),
		Rules:        repository.NewRuleRepo(db),
	}

	// three hits, uncategorized, no covering rule
	for _, d := range []int{1, 8, 15} {
		seedDebit(t, db, account.ID, "Boulangerie Dupont", "3.20", day(2026, 2, d))
	}
	// two hits
	seedDebit(t, db, account.ID, "RATP NAVIGO", "86.40", day(2026, 2, 1))
	seedDebit(t, db, account.ID, "RATP NAVIGO", "86.40", day(2026, 3, 1))
	// covered by the CARREFOUR seed rule, must not be suggested
	seedDebit(t, db, account.ID, "CARREFOUR CITY", "20.00", day(2026, 2, 2))
	seedDebit(t, db, account.ID, "CARREFOUR CITY", "25.00", day(2026, 2, 9))
	// single occurrence, below the minimum count
	seedDebit(t, db, account.ID, "FLEURISTE ROSE", "30.00", day(2026, 2, 14))

	got, err := svc.Suggest(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, RuleSuggestion{Keyword: "BOULANGERIE DUPONT", MatchCount: 3}, got[0])
	require.Equal(t, RuleSuggestion{Keyword: "RATP NAVIGO", MatchCount: 2}, got[1])
}

func TestSuggestSkipsCategorizedTransactions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")
	svc := &Suggester{
		Transactions: repository.NewTransactionRepo(db),
		Rules:        repository.NewRuleRepo(db),
	}
	classifier := newClassifier(db, nil)

	tx1 := seedDebit(t, db, account.ID, "GARAGE MARTIN", "50.00", day(2026, 2, 1))
	seedDebit(t, db, account.ID, "GARAGE MARTIN", "50.00", day(2026, 3, 1))

	manual := "sys-cat-transport"
	require.NoError(t, classifier.SetManualCategory(ctx, "alice", tx1.ID, &manual))

	// only one uncategorized occurrence remains, under the threshold
	got, err := svc.Suggest(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, got)
}
