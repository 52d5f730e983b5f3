package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	idsCmd.AddCommand(idsUsedCmd, idsUnusedCmd, idsReleaseCmd)
	rootCmd.AddCommand(idsCmd)
}

var idsCmd = &cobra.Command{
	Use:   "ids",
	Short: "Inspect the internal id allocator",
}

var idsUsedCmd = &cobra.Command{
	Use:   "used",
	Short: "List allocated ids",
	Args:  cobra.NoArgs,
	RunE:  runIDsUsed,
}

var idsUnusedCmd = &cobra.Command{
	Use:   "unused",
	Short: "List released ids",
	Args:  cobra.NoArgs,
	RunE:  runIDsUnused,
}

var idsReleaseCmd = &cobra.Command{
	Use:   "release <id>",
	Short: "Release an allocated id",
	Long: `Move an id from the used set to the unused set, e.g. after deleting a
post by hand. Released ids are never handed out again.`,
	Args: cobra.ExactArgs(1),
	RunE: runIDsRelease,
}

func runIDsUsed(cmd *cobra.Command, args []string) error {
	return listIDs(false)
}

func runIDsUnused(cmd *cobra.Command, args []string) error {
	return listIDs(true)
}

func listIDs(unused bool) error {
	ctx := context.Background()
	st := mustOpenStores()
	defer st.close()

	alloc := mustNewAllocator(ctx, st.ids)
	list := alloc.Used
	if unused {
		list = alloc.Unused
	}
	ids, err := list(ctx)
	exitOnError(err, "listing ids")
	if ids == nil {
		ids = []int64{}
	}

	if humanOutput {
		outputHuman("current: %d\n", alloc.Current())
		for _, id := range ids {
			outputHuman("%d\n", id)
		}
		return nil
	}
	outputJSON(IDsResponse{Current: alloc.Current(), IDs: ids})
	return nil
}

func parseInternalID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be a positive integer", s)
	}
	return id, nil
}

func runIDsRelease(cmd *cobra.Command, args []string) error {
	id, err := parseInternalID(args[0])
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}

	ctx := context.Background()
	st := mustOpenStores()
	defer st.close()

	alloc := mustNewAllocator(ctx, st.ids)
	exitOnError(alloc.Release(ctx, id), "releasing id")
	logger.Info("id released", zap.Int64("internal_id", id))

	if humanOutput {
		outputHuman("Released %d\n", id)
		return nil
	}
	outputJSON(StatusResponse{Status: "released", ID: strconv.FormatInt(id, 10)})
	return nil
}
