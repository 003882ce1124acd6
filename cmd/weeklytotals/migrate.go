package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"weeklytotals/internal/storage"
)

var migrateRollback bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		if migrateRollback {
			if err := storage.RollbackMigration(cfg.SQLiteDBPath); err != nil {
				return err
			}
			logger.Info("Rolled back one migration", "sqlite_db", cfg.SQLiteDBPath)
		} else if err := storage.RunMigrations(cfg.SQLiteDBPath); err != nil {
			return err
		}

		version, dirty, err := storage.MigrationVersion(cfg.SQLiteDBPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "roll back the latest migration")
}
