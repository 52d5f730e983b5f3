// Package wordpress publishes posts and comments through the WordPress REST
// API using application-password authentication.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/matsen/citesync/internal/cms"
	"github.com/matsen/citesync/internal/publication"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// RateLimit is the default request rate against the site.
	RateLimit = 5.0

	// DefaultStatus is the status given to new posts.
	DefaultStatus = "publish"

	apiPrefix = "/wp-json/wp/v2"
)

// Client is a WordPress REST API client. It implements cms.Publisher and
// cms.Deleter.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	baseURL     string
	username    string
	appPassword string
	status      string

	mu   sync.Mutex
	tags map[string]int64 // lowercased tag name -> term id
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithStatus sets the status of created posts ("publish", "draft", ...).
func WithStatus(status string) ClientOption {
	return func(c *Client) {
		if status != "" {
			c.status = status
		}
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

// NewClient creates a client for the site at siteURL.
func NewClient(siteURL, username, appPassword string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:     strings.TrimRight(siteURL, "/"),
		username:    username,
		appPassword: appPassword,
		status:      DefaultStatus,
		tags:        make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiError is the error body WordPress returns.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

// classify maps an HTTP failure onto the cms error kinds.
func classify(status int, body []byte) *cms.Error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)

	e := &cms.Error{StatusCode: status, Code: ae.Code, Message: ae.Message}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = cms.ErrUnauthorized
	case status == http.StatusConflict || ae.Code == "comment_duplicate" || ae.Code == "term_exists":
		e.Kind = cms.ErrDuplicate
	case status == http.StatusNotFound:
		e.Kind = cms.ErrNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		e.Kind = cms.ErrTransient
	default:
		e.Kind = cms.ErrRejected
	}
	return e
}

// do sends one request and decodes a 2xx JSON response into out. Requests
// are never retried here; a repeated create could double-post.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "citesync")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.username, c.appPassword)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", cms.ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", cms.ErrTransient, err)
	}

	if resp.StatusCode >= 400 {
		return classify(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parsing response from %s %s: %w", method, path, err)
		}
	}
	return nil
}

type createPostRequest struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Status  string  `json:"status"`
	Tags    []int64 `json:"tags,omitempty"`
}

type createCommentRequest struct {
	Post    int64  `json:"post"`
	Content string `json:"content"`
}

type objectResponse struct {
	ID int64 `json:"id"`
}

// CreatePost publishes pub with the given tag names, creating missing tags.
func (c *Client) CreatePost(ctx context.Context, pub *publication.Publication, tags []string) (int64, error) {
	tagIDs, err := c.resolveTags(ctx, tags)
	if err != nil {
		return 0, fmt.Errorf("resolving tags for %s: %w", pub.ExternalID, err)
	}

	r := cms.RenderPost(pub)
	var out objectResponse
	err = c.do(ctx, http.MethodPost, "/posts", nil, createPostRequest{
		Title:   r.Title,
		Content: r.Content,
		Status:  c.status,
		Tags:    tagIDs,
	}, &out)
	if err != nil {
		return 0, fmt.Errorf("creating post for %s: %w", pub.ExternalID, err)
	}
	if out.ID == 0 {
		return 0, fmt.Errorf("creating post for %s: response has no id", pub.ExternalID)
	}
	return out.ID, nil
}

// CreateComment attaches a comment describing citing to postID.
func (c *Client) CreateComment(ctx context.Context, postID int64, citing *publication.Publication) (int64, error) {
	var out objectResponse
	err := c.do(ctx, http.MethodPost, "/comments", nil, createCommentRequest{
		Post:    postID,
		Content: cms.RenderComment(citing),
	}, &out)
	if err != nil {
		return 0, fmt.Errorf("creating comment on post %d for %s: %w", postID, citing.ExternalID, err)
	}
	if out.ID == 0 {
		return 0, fmt.Errorf("creating comment on post %d: response has no id", postID)
	}
	return out.ID, nil
}

// DeletePost permanently deletes a post, bypassing the trash.
func (c *Client) DeletePost(ctx context.Context, postID int64) error {
	path := "/posts/" + strconv.FormatInt(postID, 10)
	if err := c.do(ctx, http.MethodDelete, path, url.Values{"force": {"true"}}, nil, nil); err != nil {
		return fmt.Errorf("deleting post %d: %w", postID, err)
	}
	return nil
}
