package scopus

import (
	"errors"
	"fmt"
)

// Common errors returned by the Scopus client.
var (
	// ErrNotFound indicates the resource was not found.
	ErrNotFound = errors.New("not found in Scopus")

	// ErrAuthError indicates an authentication error (missing/invalid API key).
	ErrAuthError = errors.New("Scopus authentication error")

	// ErrRateLimited indicates the quota or rate limit has been exceeded.
	ErrRateLimited = errors.New("Scopus rate limit exceeded")

	// ErrNetworkError indicates a network connectivity issue.
	ErrNetworkError = errors.New("network error communicating with Scopus")

	// ErrInvalidResponse indicates an unexpected API response.
	ErrInvalidResponse = errors.New("invalid response from Scopus")

	// ErrInvalidID indicates a string that is not a Scopus id.
	ErrInvalidID = errors.New("invalid Scopus id")
)

// APIError represents a non-success HTTP response from the Elsevier APIs.
type APIError struct {
	StatusCode int
	Code       string // statusCode from the service-error body, if any
	Message    string
	ScopusID   string // For context in record-related errors
}

func (e *APIError) Error() string {
	if e.ScopusID != "" {
		return fmt.Sprintf("Scopus API error (status %d, code %s): %s (id: %s)", e.StatusCode, e.Code, e.Message, e.ScopusID)
	}
	return fmt.Sprintf("Scopus API error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound returns true if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404 || apiErr.Code == "RESOURCE_NOT_FOUND"
	}
	return false
}

// IsAuthError returns true if the error indicates an authentication problem.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrAuthError) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403 || apiErr.Code == "AUTHENTICATION_ERROR"
	}
	return false
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.Code == "QUOTA_EXCEEDED"
	}
	return false
}

// IsTransient returns true for failures that may succeed on a later attempt.
func IsTransient(err error) bool {
	if errors.Is(err, ErrNetworkError) || IsRateLimited(err) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return false
}
