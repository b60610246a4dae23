package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Create a commented starter configuration at the --config path.

Examples:
  sitepulse init
  sitepulse init --config /etc/sitepulse/config.yaml --site-host example.com`,
	RunE: runInit,
}

var (
	initDatabase string
	initSiteHost string
	initForce    bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initDatabase, "database", "sitepulse.db", "database file path")
	initCmd.Flags().StringVar(&initSiteHost, "site-host", "", "tracked site hostname (drops self-referrals)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgFile); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfgFile)
	}

	content := fmt.Sprintf(`# sitepulse configuration

server:
  host: "0.0.0.0"
  port: 8080

database:
  driver: "sqlite"        # sqlite or memory
  dsn: %q

site:
  host: %q                # referrers matching this host are dropped

rate_limit:
  enabled: true
  limit: 100              # requests per window, per client IP
  window_secs: 60

geo:
  enabled: false          # resolve country/city from client IP
  base_url: "http://ip-api.com/json"
  timeout: 3s

analytics:
  exact_max_days: 90      # longest range answered from row-level data
  min_exact_records: 1000
  max_records: 10000

recorder:
  mode: "buffered"        # buffered or sync
  batch_size: 100
  flush_interval: 5s

retention:
  days: 365
  schedule: ""            # cron expression, e.g. "0 3 * * *"; empty disables

logging:
  level: "info"           # debug, info, warn, error
  format: "json"          # json or console

metrics:
  enabled: true
`, initDatabase, initSiteHost)

	if err := os.WriteFile(cfgFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Wrote %s\n", cfgFile)
	fmt.Println("Start the server with: sitepulse serve")
	return nil
}
