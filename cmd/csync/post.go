package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/matsen/citesync/internal/cms"
	"github.com/matsen/citesync/internal/ledger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// errPostRecorded refuses deleting a post the ledger still maps to a
// publication.
var errPostRecorded = errors.New("post is recorded in the ledger")

func init() {
	postCmd.AddCommand(postDeleteCmd)
	rootCmd.AddCommand(postCmd)
}

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Maintain posts on the site",
}

var postDeleteCmd = &cobra.Command{
	Use:   "delete <post-id>",
	Short: "Delete a post the ledger does not record",
	Long: `Permanently delete a post that was created but never recorded, e.g.
after a sync aborted with a ledger write failure. Posts the ledger maps to a
publication are refused.`,
	Args: cobra.ExactArgs(1),
	RunE: runPostDelete,
}

// deleteOrphanPost deletes postID unless a ledger entry refers to it.
func deleteOrphanPost(ctx context.Context, refs ledger.References, d cms.Deleter, postID int64) error {
	entries, err := refs.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}
	for _, e := range entries {
		if e.PostID == postID {
			return fmt.Errorf("%w: post %d belongs to %s", errPostRecorded, postID, e.ExternalID)
		}
	}
	return d.DeletePost(ctx, postID)
}

func runPostDelete(cmd *cobra.Command, args []string) error {
	postID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || postID <= 0 {
		exitWithError(ExitDataError, "invalid post id %q: must be a positive integer", args[0])
	}

	st := mustOpenStores()
	defer st.close()
	publisher := mustNewPublisher()

	exitOnError(deleteOrphanPost(context.Background(), st.refs, publisher, postID), "deleting post %d", postID)
	logger.Info("post deleted", zap.Int64("post_id", postID))

	if humanOutput {
		outputHuman("Deleted post %d\n", postID)
		return nil
	}
	outputJSON(StatusResponse{Status: "deleted", ID: args[0]})
	return nil
}
