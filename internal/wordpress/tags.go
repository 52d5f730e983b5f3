package wordpress

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/matsen/citesync/internal/cms"
)

type tagResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// resolveTags maps tag names to term ids, searching first and creating tags
// that do not exist. Results are cached for the life of the client.
func (c *Client) resolveTags(ctx context.Context, names []string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, err := c.tagID(ctx, name)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Client) tagID(ctx context.Context, name string) (int64, error) {
	key := strings.ToLower(name)

	c.mu.Lock()
	id, ok := c.tags[key]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := c.findTag(ctx, name)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		id, err = c.createTag(ctx, name)
		if err != nil {
			return 0, err
		}
	}

	c.mu.Lock()
	c.tags[key] = id
	c.mu.Unlock()
	return id, nil
}

// findTag returns the id of the tag whose name matches exactly
// (case-insensitively), or 0.
func (c *Client) findTag(ctx context.Context, name string) (int64, error) {
	var found []tagResponse
	q := url.Values{"search": {name}, "per_page": {"100"}}
	if err := c.do(ctx, http.MethodGet, "/tags", q, nil, &found); err != nil {
		return 0, err
	}
	for _, t := range found {
		if strings.EqualFold(t.Name, name) {
			return t.ID, nil
		}
	}
	return 0, nil
}

// createTag creates a tag. If WordPress reports the term already exists the
// existing term id is returned.
func (c *Client) createTag(ctx context.Context, name string) (int64, error) {
	var created tagResponse
	err := c.do(ctx, http.MethodPost, "/tags", nil, map[string]string{"name": name}, &created)
	if err == nil {
		return created.ID, nil
	}

	var ce *cms.Error
	if errors.As(err, &ce) && ce.Code == "term_exists" {
		id, ferr := c.findTag(ctx, name)
		if ferr != nil {
			return 0, ferr
		}
		if id != 0 {
			return id, nil
		}
	}
	return 0, err
}
