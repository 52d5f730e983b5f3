package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var ledgerTruncateYes bool

func init() {
	ledgerTruncateCmd.Flags().BoolVar(&ledgerTruncateYes, "yes", false, "Confirm truncation")
	ledgerCmd.AddCommand(ledgerListCmd, ledgerCommentsCmd, ledgerStatsCmd, ledgerTruncateCmd)
	rootCmd.AddCommand(ledgerCmd)
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the record of posted publications and comments",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List posted publications",
	Args:  cobra.NoArgs,
	RunE:  runLedgerList,
}

var ledgerCommentsCmd = &cobra.Command{
	Use:   "comments",
	Short: "List posted citation comments",
	Args:  cobra.NoArgs,
	RunE:  runLedgerComments,
}

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count ledger entries and allocated ids",
	Args:  cobra.NoArgs,
	RunE:  runLedgerStats,
}

var ledgerTruncateCmd = &cobra.Command{
	Use:   "truncate",
	Short: "Delete every ledger entry",
	Long: `Delete every publication and comment entry from the ledger. The posts
themselves are not touched, so the next sync will post every allowed
publication again. Requires --yes.`,
	Args: cobra.NoArgs,
	RunE: runLedgerTruncate,
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	st := mustOpenStores()
	defer st.close()

	entries, err := st.refs.GetAll(context.Background())
	exitOnError(err, "reading ledger")

	if humanOutput {
		outputHuman("%-8s %-8s %-14s %s\n", "ID", "POST", "SCOPUS", "REFRESHED")
		for _, e := range entries {
			refreshed := "never"
			if !e.CommentsLastRefreshed.IsZero() {
				refreshed = e.CommentsLastRefreshed.Format(time.RFC3339)
			}
			outputHuman("%-8d %-8d %-14s %s\n", e.InternalID, e.PostID, e.ExternalID, refreshed)
		}
		return nil
	}
	outputJSON(entries)
	return nil
}

func runLedgerComments(cmd *cobra.Command, args []string) error {
	st := mustOpenStores()
	defer st.close()

	entries, err := st.comments.GetAll(context.Background())
	exitOnError(err, "reading comment ledger")

	if humanOutput {
		outputHuman("%-8s %-8s %-10s %s\n", "ID", "POST", "COMMENT", "CITING")
		for _, e := range entries {
			outputHuman("%-8d %-8d %-10d %s\n", e.InternalID, e.PostID, e.CommentID, e.CitingExternalID)
		}
		return nil
	}
	outputJSON(entries)
	return nil
}

func runLedgerStats(cmd *cobra.Command, args []string) error {
	st := mustOpenStores()
	defer st.close()

	stats, err := st.stats(context.Background())
	exitOnError(err, "counting ledger entries")

	if humanOutput {
		outputHuman("Driver:     %s\n", cfg.Storage.Driver)
		outputHuman("Posts:      %d\n", stats.References)
		outputHuman("Comments:   %d\n", stats.Comments)
		outputHuman("Used ids:   %d\n", stats.UsedIDs)
		outputHuman("Unused ids: %d\n", stats.UnusedIDs)
		return nil
	}
	outputJSON(stats)
	return nil
}

func runLedgerTruncate(cmd *cobra.Command, args []string) error {
	if !ledgerTruncateYes {
		exitWithError(ExitError, "refusing to truncate the ledger without --yes")
	}

	st := mustOpenStores()
	defer st.close()

	ctx := context.Background()
	exitOnError(st.comments.Truncate(ctx), "truncating comment ledger")
	exitOnError(st.refs.Truncate(ctx), "truncating ledger")
	logger.Warn("ledger truncated")

	if humanOutput {
		outputHuman("Ledger truncated\n")
		return nil
	}
	outputJSON(StatusResponse{Status: "truncated"})
	return nil
}
