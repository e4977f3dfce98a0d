package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/zecaptus/kasa-sub000/internal/database"
)

// MaintenanceService houses destructive/ops actions surfaced through the CLI.
type MaintenanceService struct {
	DB *sql.DB
}

// Reset wipes all user data. It keeps the schema intact so the app can continue
// running. System categories and rules (user_id IS NULL) survive the wipe.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(s.DB, func(tx *sql.Tx) error {
		tables := []string{
			"reconciliations",
			"expenses",
			"transactions",
			"recurring_patterns",
			"import_sessions",
			"transfer_label_rules",
			"accounts",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		for _, t := range []string{"category_rules", "categories"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t+" WHERE user_id IS NOT NULL"); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}
