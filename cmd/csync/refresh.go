package main

import (
	"github.com/matsen/citesync/internal/reconcile"
	"github.com/matsen/citesync/internal/scopus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(refreshCmd)
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <scopus-id>",
	Short: "Refresh the citation comments of one post",
	Long: `Post a comment for every work citing the given publication that is not
yet recorded, regardless of when the post was last refreshed.

The publication must already have been posted by a sync.

Example:
  csync refresh 85012345678
  csync refresh 2-s2.0-85012345678`,
	Args: cobra.ExactArgs(1),
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	id, err := scopus.ParseScopusID(args[0])
	exitOnError(err, "parsing id")

	ctx, stop := signalContext()
	defer stop()

	st := mustOpenStores()
	defer st.close()

	src, closeSrc := mustNewSource()
	defer closeSrc()

	engine, err := reconcile.New(reconcile.Deps{
		Source:     src,
		Publisher:  mustNewPublisher(),
		Registry:   mustLoadRegistry(),
		References: st.refs,
		Comments:   st.comments,
		IDs:        mustNewAllocator(ctx, st.ids),
		Logger:     logger,
	}, engineOptions(cfg.Sync, false))
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	result, err := engine.RefreshPost(ctx, id)
	exitOnError(err, "refreshing %s", id)

	if humanOutput {
		outputHuman("%s post %d: %d citing, %d added, %d duplicate, %d skipped\n",
			result.ExternalID, result.PostID, result.Citing, result.Added, result.Duplicates, result.Skipped)
		if result.Error != "" {
			outputHuman("incomplete: %s\n", result.Error)
		}
		return nil
	}
	outputJSON(result)
	return nil
}
