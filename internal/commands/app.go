package commands

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zecaptus/kasa-sub000/internal/ai"
	"github.com/zecaptus/kasa-sub000/internal/config"
	"github.com/zecaptus/kasa-sub000/internal/database"
	"github.com/zecaptus/kasa-sub000/internal/database/repository"
	"github.com/zecaptus/kasa-sub000/internal/rules"
	"github.com/zecaptus/kasa-sub000/internal/server"
	"github.com/zecaptus/kasa-sub000/internal/service"
)

// app is the fully wired application: one sqlite handle, repositories,
// services and the HTTP server on top.
type app struct {
	cfg config.Config
	db  *sql.DB

	ingestor    *service.Ingestor
	maintenance *service.MaintenanceService
	server      *server.Server
}

// buildApp runs the startup sequence: config, migrations, db, wiring.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// repositories
	accountRepo := repository.NewAccountRepo(db)
	txRepo := repository.NewTransactionRepo(db)
	expenseRepo := repository.NewExpenseRepo(db)
	categoryRepo := repository.NewCategoryRepo(db)
	ruleRepo := repository.NewRuleRepo(db)
	patternRepo := repository.NewPatternRepo(db)
	reconRepo := repository.NewReconciliationRepo(db)
	importRepo := repository.NewImportRepo(db)
	dashRepo := repository.NewDashboardRepo(db)

	// the AI fallback is optional; without a key the Noop oracle runs
	var oracle ai.Classifier = ai.Noop{}
	if key := cfg.AI.ResolveAPIKey(); key != "" {
		oracle = ai.NewOpenAIClassifier(key, cfg.AI.Model, cfg.AI.BaseURL)
	}

	cache := rules.NewCache(ruleRepo.ListVisible)
	classifier := &service.Classifier{
		Transactions: txRepo,
		Rules:        ruleRepo,
		Categories:   categoryRepo,
		Cache:        cache,
		AI:           oracle,
	}
	reconciler := &service.Reconciler{
		DB:              db,
		Transactions:    txRepo,
		Expenses:        expenseRepo,
		Reconciliations: reconRepo,
	}
	recurring := &service.RecurringDetector{
		Transactions: txRepo,
		Patterns:     patternRepo,
	}
	transfers := &service.TransferDetector{
		DB:             db,
		Transactions:   txRepo,
		Rules:          ruleRepo,
		DateWindowDays: cfg.Transfers.DateWindowDays,
	}
	ingestor := &service.Ingestor{
		DB:         db,
		Accounts:   accountRepo,
		Imports:    importRepo,
		Reconciler: reconciler,
		Classifier: classifier,
		Recurring:  recurring,
		Transfers:  transfers,
	}

	srv := &server.Server{
		Accounts:     accountRepo,
		Transactions: txRepo,
		Imports:      importRepo,
		Ingestor:     ingestor,
		Classifier:   classifier,
		Reconciler:   reconciler,
		Recurring:    recurring,
		Transfers:    transfers,
		Suggester:    &service.Suggester{Transactions: txRepo, Rules: ruleRepo},
		Expenses: &service.Expenses{
			DB:              db,
			Repo:            expenseRepo,
			Categories:      categoryRepo,
			Reconciliations: reconRepo,
			Reconciler:      reconciler,
		},
		Categories: &service.Categories{Repo: categoryRepo},
		Patterns:   &service.Patterns{Repo: patternRepo},
		Dashboard:  &service.Dashboard{Repo: dashRepo},
	}

	return &app{
		cfg:         cfg,
		db:          db,
		ingestor:    ingestor,
		maintenance: &service.MaintenanceService{DB: db},
		server:      srv,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
