package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after environment overrides and defaults are
applied. Secrets are masked.

Environment overrides:
  SCOPUS_API_KEY, SCOPUS_INST_TOKEN, WP_APP_PASSWORD,
  CSYNC_DATABASE_DSN, REDIS_PASSWORD

A .env file in the working directory is loaded first.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	masked := cfg.Masked()
	if humanOutput {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(masked)
	}
	outputJSON(masked)
	return nil
}
