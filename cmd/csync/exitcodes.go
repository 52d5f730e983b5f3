package main

import (
	"errors"

	"github.com/matsen/citesync/internal/cms"
	"github.com/matsen/citesync/internal/config"
	"github.com/matsen/citesync/internal/idalloc"
	"github.com/matsen/citesync/internal/ledger"
	"github.com/matsen/citesync/internal/observe"
	"github.com/matsen/citesync/internal/reconcile"
	"github.com/matsen/citesync/internal/scopus"
)

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Missing or invalid config, authors file or credentials
	ExitDataError   = 3 // Unknown or malformed id, record not found
	ExitLedgerWrite = 4 // A post or comment exists that the ledger does not record
)

// exitCodeFor maps an error to the exit code the CLI reports it with.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, reconcile.ErrLedgerWrite):
		return ExitLedgerWrite
	case errors.Is(err, config.ErrConfigNotFound),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, observe.ErrDuplicateAuthorID),
		errors.Is(err, observe.ErrMissingAuthorIDs),
		scopus.IsAuthError(err),
		cms.IsUnauthorized(err):
		return ExitConfigError
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, idalloc.ErrNotAllocated),
		errors.Is(err, scopus.ErrInvalidID),
		errors.Is(err, errPostRecorded),
		scopus.IsNotFound(err),
		cms.IsNotFound(err):
		return ExitDataError
	default:
		return ExitError
	}
}
