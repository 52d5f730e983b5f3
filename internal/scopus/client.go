package scopus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/matsen/citesync/internal/publication"
	"golang.org/x/time/rate"
)

const (
	// BaseURL is the Elsevier API base URL.
	BaseURL = "https://api.elsevier.com"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// RateLimit is the default request rate. Elsevier allows 9 req/s for the
	// Abstract Retrieval API on a standard key.
	RateLimit = 8.0

	// DefaultPageSize is the Search API page size.
	DefaultPageSize = 25

	// MaxSearchResults is the deepest offset the Search API will serve.
	MaxSearchResults = 5000

	// DefaultMaxRetries bounds retries of transient failures per request.
	DefaultMaxRetries = 4
)

// Client is a rate-limited HTTP client for the Scopus APIs.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	apiKey     string
	instToken  string
	baseURL    string
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key sent as X-ELS-APIKey.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithInstToken sets the institution token sent as X-ELS-Insttoken.
func WithInstToken(token string) ClientOption {
	return func(c *Client) {
		c.instToken = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithRateLimit sets the request rate in requests per second.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithRetries sets the retry budget and the backoff schedule for transient
// failures.
func WithRetries(maxRetries uint64, newBackOff func() backoff.BackOff) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		if newBackOff != nil {
			c.newBackOff = newBackOff
		}
	}
}

// NewClient creates a new Scopus API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
		maxRetries: DefaultMaxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// checkHTTPErrors returns an error if the HTTP response indicates a problem.
func checkHTTPErrors(resp *http.Response, body []byte) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var se serviceError
	_ = json.Unmarshal(body, &se)
	code := se.ServiceError.Status.StatusCode
	msg := se.ServiceError.Status.StatusText
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	switch {
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return fmt.Errorf("%w: status %d: %s", ErrAuthError, resp.StatusCode, msg)
	case resp.StatusCode == 404:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case resp.StatusCode == 429:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       code,
		Message:    msg,
	}
}

// doRequest performs a GET with rate limiting, retrying transient failures
// with exponential backoff, and returns the response body.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body []byte
	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-ELS-APIKey", c.apiKey)
		}
		if c.instToken != "" {
			req.Header.Set("X-ELS-Insttoken", c.instToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("%w: %v", ErrNetworkError, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: reading response: %v", ErrNetworkError, err)
		}

		if err := checkHTTPErrors(resp, data); err != nil {
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		body = data
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return body, nil
}

// FetchPublication retrieves one abstract record and maps it to a Publication.
func (c *Client) FetchPublication(ctx context.Context, scopusID string) (*publication.Publication, error) {
	id, err := ParseScopusID(scopusID)
	if err != nil {
		return nil, err
	}

	body, err := c.doRequest(ctx, "/content/abstract/scopus_id/"+id, url.Values{"view": {"FULL"}})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			apiErr.ScopusID = id
		}
		return nil, fmt.Errorf("fetching %s: %w", id, err)
	}

	var resp AbstractResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing abstract %s: %v", ErrInvalidResponse, id, err)
	}
	if resp.Retrieval.Coredata.Identifier == "" {
		return nil, fmt.Errorf("%w: abstract %s has no identifier", ErrInvalidResponse, id)
	}

	return MapAbstract(resp.Retrieval)
}

// FetchAuthorPublicationIDs lists every Scopus id authored by authorID.
func (c *Client) FetchAuthorPublicationIDs(ctx context.Context, authorID string) ([]string, error) {
	return c.searchIDs(ctx, fmt.Sprintf("AU-ID(%s)", authorID))
}

// FetchCitingIDs lists the Scopus ids of works citing scopusID.
func (c *Client) FetchCitingIDs(ctx context.Context, scopusID string) ([]string, error) {
	id, err := ParseScopusID(scopusID)
	if err != nil {
		return nil, err
	}
	return c.searchIDs(ctx, fmt.Sprintf("REFEID(2-s2.0-%s)", id))
}

// searchIDs pages through the Search API and returns the hit ids in result
// order without duplicates.
func (c *Client) searchIDs(ctx context.Context, query string) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string

	for start := 0; start < MaxSearchResults; {
		params := url.Values{
			"query": {query},
			"field": {"dc:identifier"},
			"start": {strconv.Itoa(start)},
			"count": {strconv.Itoa(DefaultPageSize)},
		}
		body, err := c.doRequest(ctx, "/content/search/scopus", params)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", query, err)
		}

		var resp SearchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: parsing search results: %v", ErrInvalidResponse, err)
		}

		total, err := strconv.Atoi(resp.Results.TotalResults)
		if err != nil {
			return nil, fmt.Errorf("%w: totalResults %q", ErrInvalidResponse, resp.Results.TotalResults)
		}

		page := 0
		for _, e := range resp.Results.Entry {
			if e.Error != "" || e.Identifier == "" {
				continue
			}
			id, err := ParseScopusID(e.Identifier)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
			}
			page++
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}

		start += DefaultPageSize
		if page == 0 || start >= total {
			break
		}
	}

	return ids, nil
}
