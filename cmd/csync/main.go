// Package main provides the csync CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/matsen/citesync/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	configPath  string
	verbose     bool

	// cfg and logger are set by the root command before any subcommand runs.
	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// SilenceErrors is set, so cobra errors (unknown flags, bad args)
		// would otherwise be invisible.
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "csync",
	Short: "Sync Scopus publications of observed authors into WordPress",
	Long: `csync mirrors the publications of a set of observed authors from Scopus
into a WordPress site, one post per publication, and keeps one comment per
citing work on every post.

Publications are filtered by author affiliation: an observed author at an
allowed institution publishes, one at a denied institution suppresses.
Everything csync has posted is recorded in a local ledger so that each cycle
only publishes what is new.

All commands output JSON by default; use --human for a readable summary.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		loaded, err := config.Load(configPath)
		if err != nil {
			exitWithError(exitCodeFor(err), "loading config: %v", err)
		}
		if err := loaded.Validate(); err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
		cfg = loaded

		logger, err = newLogger(cfg.Log, verbose)
		if err != nil {
			exitWithError(ExitConfigError, "initializing logger: %v", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/csync/config.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
	rootCmd.Version = Version
}
