package main

import (
	"sort"
	"strings"

	"github.com/matsen/citesync/internal/observe"
	"github.com/spf13/cobra"
)

func init() {
	authorsCmd.AddCommand(authorsCheckCmd)
	rootCmd.AddCommand(authorsCmd)
}

var authorsCmd = &cobra.Command{
	Use:   "authors",
	Short: "List observed authors",
	Long: `List the observed authors from the authors file with their Scopus
author ids, allowed and denied affiliation ids, and tags.`,
	Args: cobra.NoArgs,
	RunE: runAuthors,
}

var authorsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the observed-authors file",
	Long: `Parse the observed-authors file and report configuration errors, such
as an author id listed under two observations. Exits with status 2 if the
file is invalid.`,
	Args: cobra.NoArgs,
	RunE: runAuthorsCheck,
}

func runAuthors(cmd *cobra.Command, args []string) error {
	reg := mustLoadRegistry()
	authors := authorResponses(reg)

	if humanOutput {
		for _, a := range authors {
			outputHuman("%s\n", a.Name)
			outputHuman("  ids:   %s\n", strings.Join(a.IDs, ", "))
			outputHuman("  allow: %s\n", strings.Join(a.Allow, ", "))
			outputHuman("  deny:  %s\n", strings.Join(a.Deny, ", "))
			if len(a.Tags) > 0 {
				outputHuman("  tags:  %s\n", strings.Join(a.Tags, ", "))
			}
		}
		return nil
	}
	outputJSON(authors)
	return nil
}

func runAuthorsCheck(cmd *cobra.Command, args []string) error {
	reg, err := observe.LoadFile(cfg.Sync.AuthorsFile)
	exitOnError(err, "checking authors file")

	if humanOutput {
		outputHuman("%s: %d observations, %d author ids\n", cfg.Sync.AuthorsFile, reg.Len(), len(reg.AllIDs()))
		return nil
	}
	outputJSON(map[string]interface{}{
		"status":       "ok",
		"path":         cfg.Sync.AuthorsFile,
		"observations": reg.Len(),
		"author_ids":   len(reg.AllIDs()),
	})
	return nil
}

func authorResponses(reg *observe.Registry) []AuthorResponse {
	observations := reg.AllObservations()
	out := make([]AuthorResponse, 0, len(observations))
	for _, o := range observations {
		out = append(out, AuthorResponse{
			Name:  o.Label(),
			IDs:   o.ExternalAuthorIDs,
			Allow: sortedSet(o.Allow),
			Deny:  sortedSet(o.Deny),
			Tags:  o.Tags,
		})
	}
	return out
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
