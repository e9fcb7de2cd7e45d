package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/Shimizu-Technology/autoshorts-api/internal/config"
)

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "autoshorts",
	Short:         "AutoShorts API: series to rendered shorts to YouTube",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetFlags(log.LstdFlags | log.Lshortfile)

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		os.Setenv("GIN_MODE", cfg.GinMode)
		return nil
	},
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		log.Printf("❌ %v", err)
		os.Exit(1)
	}
}
