package main

import (
	"context"

	"github.com/matsen/citesync/internal/classify"
	"github.com/matsen/citesync/internal/reconcile"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(classifyCmd)
}

var classifyCmd = &cobra.Command{
	Use:   "classify <scopus-id>...",
	Short: "Show how publications would be classified",
	Long: `Fetch publications from Scopus and report whether each would be
published (allow), suppressed (deny) or ignored (undecided), along with the
tags it would be posted with. Nothing is written.

Example:
  csync classify 85012345678 85087654321`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	src, closeSrc := mustNewSource()
	defer closeSrc()

	results := classifyIDs(ctx, src, classify.New(mustLoadRegistry()), args)

	if humanOutput {
		for _, r := range results {
			if r.Error != "" {
				outputHuman("%-14s error      %s\n", r.ExternalID, r.Error)
				continue
			}
			outputHuman("%-14s %-10s %s\n", r.ExternalID, r.Decision, truncateString(r.Title, 60))
		}
		return nil
	}
	outputJSON(results)
	return nil
}

// classifyIDs fetches each id and decides it. Fetch failures are reported
// per id.
func classifyIDs(ctx context.Context, src reconcile.Source, c *classify.Classifier, ids []string) []ClassifyResponse {
	results := make([]ClassifyResponse, 0, len(ids))
	for _, id := range ids {
		pub, err := src.FetchPublication(ctx, id)
		if err != nil {
			results = append(results, ClassifyResponse{ExternalID: id, Error: err.Error()})
			continue
		}

		decision := c.Decide(pub)
		resp := ClassifyResponse{
			ExternalID:   pub.ExternalID,
			Title:        pub.Title,
			Decision:     decision.String(),
			Affiliations: pub.AllAffiliations(),
		}
		if decision == classify.Allow {
			resp.Tags = c.KeywordsFor(pub)
		}
		results = append(results, resp)
	}
	return results
}
