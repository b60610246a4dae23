package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ambrood/sitepulse/bootstrap"
)

var sweepDays int

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a one-shot retention sweep",
	Long: `Delete events, page views, and sessions older than the retention
period. Uses retention.days from config unless --days is given.

The sweep is idempotent: running it twice with the same period deletes
nothing the second time.

Examples:
  sitepulse sweep
  sitepulse sweep --days 90`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().IntVar(&sweepDays, "days", 0, "retention period in days (default: from config)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	days := sweepDays
	if days == 0 {
		days = app.Config.Get().Retention.Days
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	result, err := app.Retention.Sweep(ctx, days)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	fmt.Printf("Retention sweep complete (older than %d days)\n", days)
	fmt.Printf("  events:     %d\n", result.EventsDeleted)
	fmt.Printf("  page views: %d\n", result.PageViewsDeleted)
	fmt.Printf("  sessions:   %d\n", result.SessionsDeleted)
	fmt.Printf("  cutoff:     %s\n", result.Cutoff.Format(time.RFC3339))
	return nil
}

// openApp initializes the application for one-shot commands. The HTTP
// server and scheduler are wired but never started.
func openApp() (*bootstrap.App, error) {
	path := cfgFile
	if _, err := os.Stat(path); err != nil {
		path = ""
	}

	app, err := bootstrap.New(bootstrap.Options{ConfigPath: path})
	if err != nil {
		return nil, fmt.Errorf("error initializing: %w", err)
	}
	return app, nil
}
