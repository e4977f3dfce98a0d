package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zecaptus/kasa-sub000/internal/ai"
	"github.com/zecaptus/kasa-sub000/internal/database/repository"
	"github.com/zecaptus/kasa-sub000/internal/rules"
)

type stubAI struct {
	resp  ai.BatchResponse
	err   error
	calls int
}

func (s *stubAI) ClassifyBatch(context.Context, ai.BatchRequest) (ai.BatchResponse, error) {
	s.calls++
	return s.resp, s.err
}

func newClassifier(db *sql.DB, oracle ai.Classifier) *Classifier {
	ruleRepo := repository.NewRuleRepo(db)
	return &Classifier{
		Transactions: repository.NewTransactionRepo(db),
		Rules:        ruleRepo,
		Categories:   repository.NewCategoryRepo(db),
		Cache:        rules.NewCache(ruleRepo.ListVisible),
		AI:           oracle,
	}
}

func TestClassifyAppliesSeedRules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")
	svc := newClassifier(db, nil)

	grocery := seedDebit(t, db, account.ID, "CARREFOUR CITY PARIS", "54.12", day(2026, 2, 3))
	unknown := seedDebit(t, db, account.ID, "BOULANGERIE DUPONT", "3.20", day(2026, 2, 4))

	changed, err := svc.ReclassifyUncategorized(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, changed)

	got := getTransaction(t, db, "alice", grocery.ID)
	require.NotNil(t, got.CategoryID)
	require.Equal(t, "sys-cat-groceries", *got.CategoryID)
	require.Equal(t, repository.SourceAuto, got.CategorySource)

	got = getTransaction(t, db, "alice", unknown.ID)
	require.Nil(t, got.CategoryID)
	require.Equal(t, repository.SourceNone, got.CategorySource)

	// second run converges: nothing left to change
	changed, err = svc.ReclassifyUncategorized(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 0, changed)
}

func TestClassifyLongestKeywordPrecedence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")
	svc := newClassifier(db, nil)

	eats := seedDebit(t, db, account.ID, "UBER EATS PARIS FR", "23.40", day(2026, 2, 3))
	trip := seedDebit(t, db, account.ID, "UBER *TRIP HELP.UBER.COM", "12.00", day(2026, 2, 4))

	_, err := svc.ReclassifyUncategorized(ctx, "alice")
	require.NoError(t, err)

	require.Equal(t, "sys-cat-dining", *getTransaction(t, db, "alice", eats.ID).CategoryID)
	require.Equal(t, "sys-cat-transport", *getTransaction(t, db, "alice", trip.ID).CategoryID)
}

func TestManualCategoryIsSticky(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")
	svc := newClassifier(db, &stubAI{resp: ai.BatchResponse{}})

	tx := seedDebit(t, db, account.ID, "NETFLIX.COM", "13.49", day(2026, 2, 1))

	manual := "sys-cat-shopping"
	require.NoError(t, svc.SetManualCategory(ctx, "alice", tx.ID, &manual))

	changed, err := svc.Classify(ctx, "alice", []repository.Transaction{getTransaction(t, db, "alice", tx.ID)})
	require.NoError(t, err)
	require.Equal(t, 0, changed)

	_, err = svc.ReclassifyUncategorized(ctx, "alice")
	require.NoError(t, err)
	_, err = svc.ApplyAIFallback(ctx, "alice")
	require.NoError(t, err)

	got := getTransaction(t, db, "alice", tx.ID)
	require.Equal(t, "sys-cat-shopping", *got.CategoryID)
	require.Equal(t, repository.SourceManual, got.CategorySource)
}

func TestSetManualCategoryClearing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")
	svc := newClassifier(db, nil)

	tx := seedDebit(t, db, account.ID, "SPOTIFY AB", "10.99", day(2026, 2, 1))
	manual := "sys-cat-entertainment"
	require.NoError(t, svc.SetManualCategory(ctx, "alice", tx.ID, &manual))

	require.NoError(t, svc.SetManualCategory(ctx, "alice", tx.ID, nil))
	got := getTransaction(t, db, "alice", tx.ID)
	require.Nil(t, got.CategoryID)
	require.Equal(t, repository.SourceNone, got.CategorySource)
}

func TestSetManualCategoryUserScoping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")
	svc := newClassifier(db, nil)

	tx := seedDebit(t, db, account.ID, "LIDL PARIS", "22.00", day(2026, 2, 1))

	manual := "sys-cat-groceries"
	err := svc.SetManualCategory(ctx, "mallory", tx.ID, &manual)
	require.ErrorIs(t, err, ErrNotFound)

	unknownCat := "no-such-category"
	err = svc.SetManualCategory(ctx, "alice", tx.ID, &unknownCat)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRuleInvalidatesCacheAndReclassifies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")
	svc := newClassifier(db, nil)

	tx := seedDebit(t, db, account.ID, "BOULANGERIE DUPONT", "3.20", day(2026, 2, 4))

	// warm the cache so a stale entry would be visible
	_, err := svc.ReclassifyUncategorized(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, getTransaction(t, db, "alice", tx.ID).CategoryID)

	rule, changed, err := svc.CreateRule(ctx, "alice", "Boulangerie", "sys-cat-dining", nil)
	require.NoError(t, err)
	require.Equal(t, "BOULANGERIE", rule.Keyword)
	require.Equal(t, 1, changed)

	got := getTransaction(t, db, "alice", tx.ID)
	require.Equal(t, "sys-cat-dining", *got.CategoryID)
	require.Equal(t, repository.SourceAuto, got.CategorySource)
}

func TestDeleteRuleStopsMatchingFutureRuns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")
	svc := newClassifier(db, nil)

	rule, _, err := svc.CreateRule(ctx, "alice", "TABAC", "sys-cat-shopping", nil)
	require.NoError(t, err)

	_, err = svc.DeleteRule(ctx, "alice", rule.ID)
	require.NoError(t, err)

	tx := seedDebit(t, db, account.ID, "TABAC DU COIN", "8.00", day(2026, 2, 10))
	_, err = svc.ReclassifyUncategorized(ctx, "alice")
	require.NoError(t, err)
	require.Nil(t, getTransaction(t, db, "alice", tx.ID).CategoryID)
}

func TestSystemRulesReadOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	svc := newClassifier(db, nil)

	_, _, err := svc.UpdateRule(ctx, "alice", "sys-rule-uber", "UBER", "sys-cat-transport", nil)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.DeleteRule(ctx, "alice", "sys-rule-uber")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestAIFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")

	tx1 := seedDebit(t, db, account.ID, "BOUCHERIE MARTIN", "18.50", day(2026, 2, 5))
	tx2 := seedDebit(t, db, account.ID, "GARAGE RENAULT", "230.00", day(2026, 2, 6))

	oracle := &stubAI{resp: ai.BatchResponse{Assignments: map[string]string{
		tx1.ID:     "sys-cat-groceries",
		tx2.ID:     "no-such-category", // invented ids must be ignored
		"ghost-tx": "sys-cat-dining",
	}}}
	svc := newClassifier(db, oracle)

	changed, err := svc.ApplyAIFallback(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, changed)
	require.Equal(t, 1, oracle.calls)

	require.Equal(t, "sys-cat-groceries", *getTransaction(t, db, "alice", tx1.ID).CategoryID)
	require.Nil(t, getTransaction(t, db, "alice", tx2.ID).CategoryID)

	// nothing left uncategorized that the oracle assigns, so no second call change
	changed, err = svc.ApplyAIFallback(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 0, changed)
}

func TestAIFallbackDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	account := seedAccount(t, db, "alice", "Courant")
	seedDebit(t, db, account.ID, "GARAGE RENAULT", "230.00", day(2026, 2, 6))

	svc := newClassifier(db, ai.Noop{})
	changed, err := svc.ApplyAIFallback(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 0, changed)

	svc.AI = nil
	changed, err = svc.ApplyAIFallback(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 0, changed)
}
