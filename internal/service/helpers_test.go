package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/zecaptus/kasa-sub000/internal/database"
	"github.com/zecaptus/kasa-sub000/internal/database/repository"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunMigrations(dbPath))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedAccount(t *testing.T, db *sql.DB, userID, name string) repository.Account {
	t.Helper()
	number := uuid.NewString()[:11]
	a := repository.Account{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Number:      &number,
		AccountType: "checking",
	}
	require.NoError(t, repository.NewAccountRepo(db).Upsert(context.Background(), a))
	return a
}

func seedDebit(t *testing.T, db *sql.DB, accountID, label, amount string, date time.Time) repository.Transaction {
	t.Helper()
	return seedTransaction(t, db, accountID, label, decPtr(amount), nil, date)
}

func seedCredit(t *testing.T, db *sql.DB, accountID, label, amount string, date time.Time) repository.Transaction {
	t.Helper()
	return seedTransaction(t, db, accountID, label, nil, decPtr(amount), date)
}

func seedTransaction(t *testing.T, db *sql.DB, accountID, label string, debit, credit *decimal.Decimal, date time.Time) repository.Transaction {
	t.Helper()
	tx := repository.Transaction{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Date:           date,
		Label:          label,
		Debit:          debit,
		Credit:         credit,
		Status:         repository.StatusUnreconciled,
		CategorySource: repository.SourceNone,
	}
	require.NoError(t, repository.NewTransactionRepo(db).Insert(context.Background(), tx))
	return tx
}

func seedExpense(t *testing.T, db *sql.DB, userID, label, amount string, date time.Time) repository.Expense {
	t.Helper()
	e := repository.Expense{
		ID:             uuid.NewString(),
		UserID:         userID,
		Label:          label,
		Amount:         dec(amount),
		Date:           date,
		CategorySource: repository.SourceNone,
	}
	require.NoError(t, repository.NewExpenseRepo(db).Insert(context.Background(), e))
	return e
}

func getTransaction(t *testing.T, db *sql.DB, userID, id string) repository.Transaction {
	t.Helper()
	tx, err := repository.NewTransactionRepo(db).Get(context.Background(), userID, id)
	require.NoError(t, err)
	require.NotNil(t, tx)
	return *tx
}
