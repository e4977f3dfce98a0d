package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zecaptus/kasa-sub000/internal/service"
)

func newImportCommand() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "import <statement.csv>",
		Short: "Import a bank statement export and run the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			meta, records, err := service.ParseCSV(f, filepath.Base(args[0]))
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			res, err := app.ingestor.Import(cmd.Context(), user, meta, records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d new, %d skipped, %d auto-matched, %d categorized\n",
				res.New, res.Skipped, res.AutoMatched, res.Classified+res.AIAssigned)
			for _, stage := range res.StageErrors {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", stage)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user id owning the import (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
