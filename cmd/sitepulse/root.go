package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ambrood/sitepulse/bootstrap"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sitepulse",
	Short: "Self-hosted page-view analytics",
	Long: `Sitepulse is a self-hosted page-view analytics engine.

It ingests page views from your site, resolves visitor context (device,
browser, optional geolocation), and answers dashboard queries with an
exact or aggregated strategy depending on range size.

Quick start:
  sitepulse init      # Write a starter config file
  sitepulse serve     # Start the analytics server

Operations:
  sitepulse sweep     # One-shot retention sweep
  sitepulse report    # Print a performance report`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	bootstrap.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "sitepulse.yaml", "config file path")
}
