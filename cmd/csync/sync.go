package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/matsen/citesync/internal/reconcile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncDryRun bool

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Classify new publications without allocating ids or posting")
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one reconciliation cycle",
	Long: `Run one reconciliation cycle:

  1. Read the publications already posted from the ledger
  2. List the current publications of every observed author
  3. Fetch and classify the ones not yet posted
  4. Post the allowed ones
  5. Refresh the citation comments of the stalest posts

With --dry-run the cycle stops after step 3 and nothing is written.

Exit status 4 means a post or comment was created but could not be recorded;
resolve it by hand before the next cycle.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	st := mustOpenStores()
	defer st.close()

	src, closeSrc := mustNewSource()
	defer closeSrc()

	deps := reconcile.Deps{
		Source:     src,
		Registry:   mustLoadRegistry(),
		References: st.refs,
		Comments:   st.comments,
		Logger:     logger,
	}
	if !syncDryRun {
		deps.Publisher = mustNewPublisher()
		deps.IDs = mustNewAllocator(ctx, st.ids)
	}

	engine, err := reconcile.New(deps, engineOptions(cfg.Sync, syncDryRun))
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	report, err := engine.Run(ctx)
	if err != nil {
		// Print what was done before the abort; it names the posts that did
		// get recorded.
		if report != nil {
			printReport(report)
		}
		logger.Error("sync failed", zap.Error(err))
		_ = logger.Sync()
		exitWithError(exitCodeFor(err), "sync: %v", err)
	}

	printReport(report)
	return nil
}

func printReport(r *reconcile.Report) {
	if humanOutput {
		writeReportHuman(os.Stdout, r)
		return
	}
	outputJSON(r)
}

// writeReportHuman writes a short summary of a cycle.
func writeReportHuman(w io.Writer, r *reconcile.Report) {
	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "Cycle %s%s\n", r.CycleID, mode)
	fmt.Fprintf(w, "  known: %d  live: %d  new: %d\n", r.Known, r.Live, len(r.New))
	fmt.Fprintf(w, "  allowed: %d  denied: %d  undecided: %d\n", len(r.Allowed), len(r.Denied), len(r.Undecided))

	if len(r.Published) > 0 {
		fmt.Fprintf(w, "\nPublished (%d):\n", len(r.Published))
		for _, p := range r.Published {
			fmt.Fprintf(w, "  %s -> post %d (id %d)\n", p.ExternalID, p.PostID, p.InternalID)
		}
	}

	if len(r.Refreshed) > 0 {
		fmt.Fprintf(w, "\nRefreshed (%d):\n", len(r.Refreshed))
		for _, res := range r.Refreshed {
			status := "complete"
			if !res.Complete {
				status = "incomplete"
			}
			fmt.Fprintf(w, "  %s post %d: %d citing, %d added, %d duplicate, %d skipped, %s\n",
				res.ExternalID, res.PostID, res.Citing, res.Added, res.Duplicates, res.Skipped, status)
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintf(w, "\nFailures (%d):\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  [%s] %s: %s\n", f.Phase, f.ID, truncateString(f.Error, 100))
		}
	}
}
