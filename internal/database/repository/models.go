package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction reconciliation statuses.
const (
	StatusUnreconciled = "unreconciled"
	StatusReconciled   = "reconciled"
	StatusIgnored      = "ignored"
)

// Category assignment provenance.
const (
	SourceNone   = "none"
	SourceAuto   = "auto"
	SourceManual = "manual"
)

// Recurring pattern frequencies.
const (
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyAnnual  = "annual"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so repos can run inside
// database.WithTx when a multi-row write must be atomic.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Account represents an account row. Every account belongs to one user.
type Account struct {
	ID          string
	UserID      string
	Name        string
	Number      *string
	AccountType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category represents a category row. UserID nil means a system category
// shared read-only by all users.
type Category struct {
	ID        string
	UserID    *string
	Name      string
	Color     string
	Slug      string
	CreatedAt time.Time
}

// CategoryRule maps a label keyword to a category. UserID nil means a seed
// rule shared by all users. Amount, when set, restricts the rule to
// transactions of exactly that absolute amount.
type CategoryRule struct {
	ID         string
	UserID     *string
	Keyword    string
	CategoryID string
	Amount     *decimal.Decimal
	CreatedAt  time.Time
}

// TransferLabelRule marks a label keyword as transfer-like and gives the leg
// a display label. Independent of category rules.
type TransferLabelRule struct {
	ID        string
	UserID    string
	Keyword   string
	Label     string
	Amount    *decimal.Decimal
	CreatedAt time.Time
}

// ImportSession records one CSV upload.
type ImportSession struct {
	ID           string
	UserID       string
	AccountID    string
	Filename     string
	Balance      *decimal.Decimal
	RangeStart   *time.Time
	RangeEnd     *time.Time
	NewCount     int
	SkippedCount int
	ImportedAt   time.Time
}

// Transaction represents one imported bank-statement line. Exactly one of
// Debit/Credit is set (enforced by a CHECK constraint).
type Transaction struct {
	ID             string
	AccountID      string
	ImportID       *string
	Date           time.Time
	ValueDate      *time.Time
	Label          string
	Detail         *string
	Debit          *decimal.Decimal
	Credit         *decimal.Decimal
	Status         string
	CategoryID     *string
	CategorySource string
	PatternID      *string
	TransferPeerID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Amount returns the signed amount: debits negative, credits positive.
func (t Transaction) Amount() decimal.Decimal {
	if t.Debit != nil {
		return t.Debit.Neg()
	}
	if t.Credit != nil {
		return *t.Credit
	}
	return decimal.Zero
}

// AbsAmount returns the unsigned amount of whichever side is set.
func (t Transaction) AbsAmount() decimal.Decimal {
	return t.Amount().Abs()
}

// Expense represents a user-entered expense.
type Expense struct {
	ID             string
	UserID         string
	Label          string
	Amount         decimal.Decimal
	Date           time.Time
	CategoryID     *string
	CategorySource string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Reconciliation is the one-to-one join between a transaction and an expense.
type Reconciliation struct {
	ID            string
	TransactionID string
	ExpenseID     string
	Score         float64
	AutoMatched   bool
	CreatedAt     time.Time
}

// RecurringPattern is one detected or declared periodic charge. One AUTO
// pattern exists per (user, keyword); manual patterns are user-created.
type RecurringPattern struct {
	ID             string
	UserID         string
	Label          string
	Keyword        string
	Amount         *decimal.Decimal
	Frequency      string
	Source         string
	IsActive       bool
	NextOccurrence *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// scanner handles both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func decArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func scanDec(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}
