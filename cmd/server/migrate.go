package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"walkmate-bot/internal/adapters/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending MariaDB schema migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connectMariaDB(cmd.Context(), cfg.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := repository.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		slog.Info("Schema is up to date", "database", cfg.DB.Database)
		return nil
	},
}
