package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zecaptus/kasa-sub000/internal/database/repository"
)

const statementCSV = `Compte;30001007941234567890185;Solde;1234,56;Du;01/02/2026;Au;28/02/2026
Date;Date valeur;Libelle;Detail;Debit;Credit
03/02/2026;04/02/2026;CARREFOUR CITY PARIS;CB 03/02;54,12;
05/02/2026;;VIREMENT SALAIRE ACME;;;2400,00
10/02/2026;10/02/2026;NETFLIX.COM;ABONNEMENT;13,49;
`

func newIngestor(db *sql.DB) *Ingestor {
	ruleRepo := repository.NewRuleRepo(db)
	ing := &Ingestor{
		DB:         db,
		Accounts:   repository.NewAccountRepo(db),
		Imports:    repository.NewImportRepo(db),
		Reconciler: newReconciler(db),
		Classifier: newClassifier(db, nil),
		Recurring: &RecurringDetector{
			Transactions: repository.NewTransactionRepo(db),
			Patterns:     repository.NewPatternRepo(db),
		},
		Transfers: &TransferDetector{
			DB:           db,
			Transactions: repository.NewTransactionRepo(db),
			Rules:        ruleRepo,
		},
	}
	return ing
}

func TestParseCSV(t *testing.T) {
	t.Parallel()

	meta, records, err := ParseCSV(strings.NewReader(statementCSV), "fev.csv")
	require.NoError(t, err)

	require.Equal(t, "30001007941234567890185", meta.AccountNumber)
	require.Equal(t, "fev.csv", meta.Filename)
	require.NotNil(t, meta.Balance)
	require.True(t, meta.Balance.Equal(dec("1234.56")))
	require.NotNil(t, meta.RangeStart)
	require.True(t, meta.RangeStart.Equal(day(2026, 2, 1)))
	require.NotNil(t, meta.RangeEnd)
	require.True(t, meta.RangeEnd.Equal(day(2026, 2, 28)))

	require.Len(t, records, 3)

	first := records[0]
	require.Equal(t, "CARREFOUR CITY PARIS", first.Label)
	require.True(t, first.AccountingDate.Equal(day(2026, 2, 3)))
	require.NotNil(t, first.ValueDate)
	require.NotNil(t, first.Detail)
	require.Equal(t, "CB 03/02", *first.Detail)
	require.NotNil(t, first.Debit)
	require.True(t, first.Debit.Equal(dec("54.12")))
	require.Nil(t, first.Credit)

	salary := records[1]
	require.Nil(t, salary.Debit)
	require.Nil(t, salary.ValueDate)
	require.NotNil(t, salary.Credit)
	require.True(t, salary.Credit.Equal(dec("2400")))
}

func TestParseCSVRejectsBrokenLines(t *testing.T) {
	t.Parallel()

	broken := "Compte;123\nDate;Date valeur;Libelle;Detail;Debit;Credit\nnot-a-date;;LABEL;;10,00;\n"
	_, _, err := ParseCSV(strings.NewReader(broken), "bad.csv")
	require.Error(t, err)

	short := "Compte;123\nDate;Date valeur;Libelle;Detail;Debit;Credit\n03/02/2026;;LABEL\n"
	_, _, err = ParseCSV(strings.NewReader(short), "short.csv")
	require.Error(t, err)

	_, _, err = ParseCSV(strings.NewReader("Solde;10,00\n"), "noaccount.csv")
	require.ErrorIs(t, err, ErrValidation)
}

func TestImportCreatesAccountAndRunsPipeline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	ing := newIngestor(db)

	meta, records, err := ParseCSV(strings.NewReader(statementCSV), "fev.csv")
	require.NoError(t, err)

	res, err := ing.Import(ctx, "alice", meta, records)
	require.NoError(t, err)
	require.Equal(t, 3, res.New)
	require.Equal(t, 0, res.Skipped)
	require.Empty(t, res.StageErrors)
	require.NotEmpty(t, res.SessionID)

	// the account was created from the statement number
	account, err := ing.Accounts.GetByNumber(ctx, "alice", meta.AccountNumber)
	require.NoError(t, err)
	require.NotNil(t, account)

	// classification ran: seed rules cover CARREFOUR, NETFLIX and the salary
	txs, err := repository.NewTransactionRepo(db).List(ctx, "alice", repository.TransactionFilters{})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	categorized := 0
	for _, tx := range txs {
		if tx.CategoryID != nil {
			categorized++
			require.Equal(t, repository.SourceAuto, tx.CategorySource)
		}
	}
	require.Equal(t, 3, categorized)
	require.Equal(t, 3, res.Classified)

	sessions, err := ing.Imports.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, 3, sessions[0].NewCount)
}

func TestImportDeduplicatesOnReupload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	ing := newIngestor(db)

	meta, records, err := ParseCSV(strings.NewReader(statementCSV), "fev.csv")
	require.NoError(t, err)

	_, err = ing.Import(ctx, "alice", meta, records)
	require.NoError(t, err)

	res, err := ing.Import(ctx, "alice", meta, records)
	require.NoError(t, err)
	require.Equal(t, 0, res.New)
	require.Equal(t, 3, res.Skipped)

	txs, err := repository.NewTransactionRepo(db).List(ctx, "alice", repository.TransactionFilters{})
	require.NoError(t, err)
	require.Len(t, txs, 3)
}

func TestImportValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t)
	ing := newIngestor(db)

	_, err := ing.Import(ctx, "alice", ImportMeta{}, []ParsedRecord{{Label: "X", AccountingDate: day(2026, 1, 1), Debit: decPtr("1.00")}})
	require.ErrorIs(t, err, ErrValidation)

	meta := ImportMeta{AccountNumber: "123", Filename: "x.csv"}

	_, err = ing.Import(ctx, "alice", meta, nil)
	require.ErrorIs(t, err, ErrValidation)

	// both sides set
	_, err = ing.Import(ctx, "alice", meta, []ParsedRecord{{
		Label: "X", AccountingDate: day(2026, 1, 1), Debit: decPtr("1.00"), Credit: decPtr("1.00"),
	}})
	require.ErrorIs(t, err, ErrValidation)

	// negative magnitude
	_, err = ing.Import(ctx, "alice", meta, []ParsedRecord{{
		Label: "X", AccountingDate: day(2026, 1, 1), Debit: decPtr("-1.00"),
	}})
	require.ErrorIs(t, err, ErrValidation)

	// a rejected batch persists nothing
	txs, err := repository.NewTransactionRepo(db).List(ctx, "alice", repository.TransactionFilters{})
	require.NoError(t, err)
	require.Empty(t, txs)
}
