// Package main implements the costpilot CLI. Each invocation is one
// session: documents given as arguments are ingested and the requested
// analysis runs over them. Nothing is kept between invocations.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	configPath string
	jsonOutput bool
	timeout    time.Duration
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "costpilot",
	Short: "Ingest expense documents and find savings",
	Long: `costpilot extracts expenses from receipts and invoices, detects
recurring costs and proposes savings.

Documents are local paths, file:// URIs or gs://bucket/object URIs.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("COSTPILOT_CONFIG"), "path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall deadline for the command")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(summaryCmd)
}
