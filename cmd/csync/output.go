package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg, Code: code})
	}
	os.Exit(code)
}

// exitOnError exits with the code exitCodeFor assigns to err.
func exitOnError(err error, format string, args ...interface{}) {
	if err == nil {
		return
	}
	exitWithError(exitCodeFor(err), "%s: %v", fmt.Sprintf(format, args...), err)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

// ClassifyResponse is one publication in the classify command output.
type ClassifyResponse struct {
	ExternalID   string   `json:"external_id"`
	Title        string   `json:"title,omitempty"`
	Decision     string   `json:"decision"`
	Tags         []string `json:"tags,omitempty"`
	Affiliations []string `json:"affiliations,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// AuthorResponse is one observation in the authors command output.
type AuthorResponse struct {
	Name  string   `json:"name"`
	IDs   []string `json:"ids"`
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
	Tags  []string `json:"tags"`
}

// IDsResponse lists internal ids.
type IDsResponse struct {
	Current int64   `json:"current"`
	IDs     []int64 `json:"ids"`
}

// truncateString shortens s to maxLen runes, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
