package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:       "run scheduler|poller|sweeper",
	Short:     "Run a single tick and print its report as JSON",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"scheduler", "poller", "sweeper"},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		for _, job := range a.jobs() {
			if job.Name == args[0] && !job.Enabled() {
				return fmt.Errorf("%s tick cannot run: its credentials are not configured", args[0])
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.TickTimeout)
		defer cancel()

		var report interface{}
		switch args[0] {
		case "scheduler":
			report, err = a.scheduler.RunOnce(ctx)
		case "poller":
			report, err = a.poller.PollPending(ctx)
		case "sweeper":
			report, err = a.sweeper.RunOnce(ctx)
		}
		if err != nil {
			return fmt.Errorf("%s tick failed: %w", args[0], err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
