package main

import (
	"github.com/spf13/cobra"

	"github.com/Shimizu-Technology/autoshorts-api/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.RunMigrations(cfg.MigrationsPath)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.RollbackMigration(cfg.MigrationsPath)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}
