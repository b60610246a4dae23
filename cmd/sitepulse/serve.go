package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ambrood/sitepulse/bootstrap"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the analytics server",
	Long: `Start the sitepulse analytics server.

The server will:
  - Load configuration from sitepulse.yaml (or --config)
  - Or load configuration from SITEPULSE_* environment variables
  - Open the analytics store and run migrations
  - Serve the tracking and query API
  - Run scheduled retention sweeps when configured

Environment variables (for Docker deployments):
  SITEPULSE_DATABASE_DSN       - Database path (default: sitepulse.db)
  SITEPULSE_SERVER_PORT        - Server port (default: 8080)
  SITEPULSE_SITE_HOST          - Own hostname for referrer filtering
  SITEPULSE_GEO_ENABLED        - Enable IP geolocation lookups
  SITEPULSE_RETENTION_SCHEDULE - Cron expression for scheduled sweeps
  SITEPULSE_LOG_LEVEL          - Log level: debug, info, warn, error

Examples:
  sitepulse serve
  sitepulse serve --config /etc/sitepulse/config.yaml
  sitepulse serve --hot-reload=false

  # Docker (env vars only):
  SITEPULSE_DATABASE_DSN=/data/sitepulse.db sitepulse serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if _, err := os.Stat(path); err != nil {
		// No config file: run from environment variables.
		fmt.Println("Running with environment variables (no config file)")
		path = ""
	}

	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: path,
		Watch:      path != "" && hotReload,
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
