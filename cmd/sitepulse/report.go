package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ambrood/sitepulse/domain/query"
)

var reportDays int

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a performance report",
	Long: `Report record counts, query timing, the peak hour of day, and an
estimated storage footprint for the recent range, with tuning
recommendations.

Examples:
  sitepulse report
  sitepulse report --days 90`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().IntVar(&reportDays, "days", 30, "range length in days")
}

func runReport(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now().UTC()
	p := query.Params{Start: now.AddDate(0, 0, -reportDays), End: now}

	report, err := app.Reporter.Report(ctx, p)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	fmt.Printf("Performance report (last %d days)\n", reportDays)
	fmt.Printf("  records:        %d\n", report.RecordCount)
	fmt.Printf("  count query:    %dms\n", report.QueryElapsedMillis)
	fmt.Printf("  peak hour:      %02d:00 (%d events)\n", report.PeakHour, report.PeakHourCount)
	fmt.Printf("  est. storage:   %s\n", formatBytes(report.EstimatedBytes))

	if len(report.Recommendations) == 0 {
		fmt.Println("  no tuning recommendations")
		return nil
	}
	fmt.Println("  recommendations:")
	for _, r := range report.Recommendations {
		fmt.Printf("    - %s\n", r)
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGTPE"[exp])
}
