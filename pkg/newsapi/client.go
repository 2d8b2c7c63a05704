package newsapi

import (
	"context"
	"fmt"

	"github.com/samvad-hq/samvad-reader/internal/domain"
)

// Submitter sends a URL through the request queue and returns its JSON object body.
type Submitter interface {
	Submit(ctx context.Context, url string) (map[string]any, error)
}

// Client fetches category pages and search results through the request queue.
type Client struct {
	endpoint Endpoint
	queue    Submitter
}

// NewClient wires an endpoint description to the queue.
func NewClient(ep Endpoint, q Submitter) *Client {
	return &Client{endpoint: ep.normalized(), queue: q}
}

// PageSize returns the number of articles requested per page.
func (c *Client) PageSize() int { return c.endpoint.PageSize }

// FetchCategory retrieves one page of a category.
func (c *Client) FetchCategory(ctx context.Context, req domain.FetchRequest) (Page, error) {
	u, err := c.endpoint.CategoryURL(req)
	if err != nil {
		return Page{}, fmt.Errorf("build category url: %w", err)
	}
	return c.fetch(ctx, u, req.Normalize().Page)
}

// Search retrieves one page of search results.
func (c *Client) Search(ctx context.Context, req domain.FetchRequest) (Page, error) {
	u, err := c.endpoint.SearchURL(req)
	if err != nil {
		return Page{}, fmt.Errorf("build search url: %w", err)
	}
	return c.fetch(ctx, u, req.Normalize().Page)
}

func (c *Client) fetch(ctx context.Context, u string, page int) (Page, error) {
	if c == nil || c.queue == nil {
		return Page{}, fmt.Errorf("news api client is not initialized")
	}
	body, err := c.queue.Submit(ctx, u)
	if err != nil {
		return Page{}, err
	}
	return Decode(body, page, c.endpoint.PageSize)
}
