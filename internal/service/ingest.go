package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zecaptus/kasa-sub000/internal/database"
	"github.com/zecaptus/kasa-sub000/internal/database/repository"
)

// ParsedRecord is one statement line as produced by the CSV parser. Exactly
// one of Debit/Credit is set, both as positive magnitudes.
type ParsedRecord struct {
	AccountingDate time.Time
	ValueDate      *time.Time
	Label          string
	Detail         *string
	Debit          *decimal.Decimal
	Credit         *decimal.Decimal
	AccountLabel   string
}

// ImportMeta is the statement-level metadata accompanying the records.
type ImportMeta struct {
	AccountNumber string
	Filename      string
	Balance       *decimal.Decimal
	RangeStart    *time.Time
	RangeEnd      *time.Time
}

// ImportResult reports one import run. Stage counters cover the pipeline
// passes that follow the insert; StageErrors collects their non-fatal
// failures.
type ImportResult struct {
	SessionID   string   `json:"sessionId"`
	New         int      `json:"newCount"`
	Skipped     int      `json:"skippedCount"`
	AutoMatched int      `json:"autoMatched"`
	Classified  int      `json:"classified"`
	AIAssigned  int      `json:"aiAssigned"`
	StageErrors []string `json:"stageErrors,omitempty"`
}

// Ingestor turns parsed statement records into transactions and drives the
// post-import pipeline: reconcile, classify, AI fallback, recurring
// detection, transfer detection. The insert itself is atomic; pipeline
// stages run after commit and a stage failure never rolls back the import.
type Ingestor struct {
	DB       *sql.DB
	Accounts *repository.AccountRepo
	Imports  *repository.ImportRepo

	Reconciler *Reconciler
	Classifier *Classifier
	Recurring  *RecurringDetector
	Transfers  *TransferDetector
}

// Import validates and stores a parsed statement for the user, then runs the
// detection pipeline. Duplicate lines (same account, date, label and amount)
// are skipped, so re-uploading a statement adds nothing.
func (s *Ingestor) Import(ctx context.Context, userID string, meta ImportMeta, records []ParsedRecord) (ImportResult, error) {
	var res ImportResult

	if err := validateImport(meta, records); err != nil {
		return res, err
	}

	account, err := s.accountForNumber(ctx, userID, meta)
	if err != nil {
		return res, err
	}

	sessionID := uuid.NewString()
	err = database.WithTx(s.DB, func(tx *sql.Tx) error {
		imports := repository.NewImportRepo(tx)
		transactions := repository.NewTransactionRepo(tx)

		if err := imports.Insert(ctx, repository.ImportSession{
			ID:         sessionID,
			UserID:     userID,
			AccountID:  account.ID,
			Filename:   meta.Filename,
			Balance:    meta.Balance,
			RangeStart: meta.RangeStart,
			RangeEnd:   meta.RangeEnd,
		}); err != nil {
			return err
		}

		for _, rec := range records {
			dup, err := transactions.ExistsDuplicate(ctx, account.ID, rec.AccountingDate, rec.Label, rec.Debit, rec.Credit)
			if err != nil {
				return err
			}
			if dup {
				res.Skipped++
				continue
			}
			importID := sessionID
			t := repository.Transaction{
				ID:             uuid.NewString(),
				AccountID:      account.ID,
				ImportID:       &importID,
				Date:           rec.AccountingDate,
				ValueDate:      rec.ValueDate,
				Label:          rec.Label,
				Detail:         rec.Detail,
				Debit:          rec.Debit,
				Credit:         rec.Credit,
				Status:         repository.StatusUnreconciled,
				CategorySource: repository.SourceNone,
			}
			if err := transactions.Insert(ctx, t); err != nil {
				// duplicate race between pre-check and insert
				if strings.Contains(err.Error(), "UNIQUE") {
					res.Skipped++
					continue
				}
				return err
			}
			res.New++
		}

		return imports.UpdateCounts(ctx, sessionID, res.New, res.Skipped)
	})
	if err != nil {
		return res, err
	}
	res.SessionID = sessionID

	s.runPipeline(ctx, userID, &res)
	return res, nil
}

// runPipeline runs the post-import passes in order. Each pass is idempotent,
// so a failure here is reported but leaves the import usable; the next
// import or an explicit re-run picks up where it stopped.
func (s *Ingestor) runPipeline(ctx context.Context, userID string, res *ImportResult) {
	if s.Reconciler != nil {
		run, err := s.Reconciler.Run(ctx, userID)
		if err != nil {
			res.stageFailed("reconcile", err)
		} else {
			res.AutoMatched = run.AutoMatched
		}
	}
	if s.Classifier != nil {
		n, err := s.Classifier.ReclassifyUncategorized(ctx, userID)
		if err != nil {
			res.stageFailed("classify", err)
		} else {
			res.Classified = n
		}
		n, err = s.Classifier.ApplyAIFallback(ctx, userID)
		if err != nil {
			res.stageFailed("ai", err)
		} else {
			res.AIAssigned = n
		}
	}
	if s.Recurring != nil {
		if err := s.Recurring.Detect(ctx, userID); err != nil {
			res.stageFailed("recurring", err)
		}
	}
	if s.Transfers != nil {
		if err := s.Transfers.Detect(ctx, userID); err != nil {
			res.stageFailed("transfers", err)
		}
	}
}

func (r *ImportResult) stageFailed(stage string, err error) {
	log.Printf("import %s: %s stage: %v", r.SessionID, stage, err)
	r.StageErrors = append(r.StageErrors, fmt.Sprintf("%s: %v", stage, err))
}

// accountForNumber resolves the statement's account, creating it on first
// import of an unknown account number.
func (s *Ingestor) accountForNumber(ctx context.Context, userID string, meta ImportMeta) (*repository.Account, error) {
	account, err := s.Accounts.GetByNumber(ctx, userID, meta.AccountNumber)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}
	number := meta.AccountNumber
	created := repository.Account{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        accountName(meta),
		Number:      &number,
		AccountType: "checking",
	}
	if err := s.Accounts.Upsert(ctx, created); err != nil {
		return nil, err
	}
	return &created, nil
}

func accountName(meta ImportMeta) string {
	return "Compte " + meta.AccountNumber
}

func validateImport(meta ImportMeta, records []ParsedRecord) error {
	if strings.TrimSpace(meta.AccountNumber) == "" {
		return fmt.Errorf("account number required: %w", ErrValidation)
	}
	if len(records) == 0 {
		return fmt.Errorf("no records: %w", ErrValidation)
	}
	for i, rec := range records {
		if strings.TrimSpace(rec.Label) == "" {
			return fmt.Errorf("record %d: label required: %w", i+1, ErrValidation)
		}
		if rec.AccountingDate.IsZero() {
			return fmt.Errorf("record %d: date required: %w", i+1, ErrValidation)
		}
		if (rec.Debit == nil) == (rec.Credit == nil) {
			return fmt.Errorf("record %d: exactly one of debit/credit required: %w", i+1, ErrValidation)
		}
		if rec.Debit != nil && !rec.Debit.IsPositive() {
			return fmt.Errorf("record %d: debit must be positive: %w", i+1, ErrValidation)
		}
		if rec.Credit != nil && !rec.Credit.IsPositive() {
			return fmt.Errorf("record %d: credit must be positive: %w", i+1, ErrValidation)
		}
	}
	return nil
}
