package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shelf/internal/config"
	"shelf/internal/services"
)

const (
	defaultBaseURL = "https://openlibrary.org"
	userAgent      = "Shelf/0.1.0"
)

// Result is the metadata a lookup produced for one title.
type Result struct {
	Title  string
	Author string
	Year   int
}

// Provider resolves a book title to external metadata. Implementations treat
// each call as an opaque unit of work: one request in, one result or error
// out.
type Provider interface {
	Lookup(ctx context.Context, title string) (*Result, error)
}

// Client queries an Open Library compatible search endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient builds a lookup client from configuration.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.Lookup.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := time.Duration(cfg.Lookup.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	Docs []struct {
		Title            string   `json:"title"`
		AuthorName       []string `json:"author_name"`
		FirstPublishYear int      `json:"first_publish_year"`
	} `json:"docs"`
}

// Lookup searches for a title and returns the best match. A search with no
// hits yields services.ErrNotFound.
func (c *Client) Lookup(ctx context.Context, title string) (*Result, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "lookup", "search", "empty title", nil)
	}

	endpoint := fmt.Sprintf("%s/search.json?title=%s&limit=1", c.baseURL, url.QueryEscape(title))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "lookup", "search", title, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrTransient, "lookup", "search",
			fmt.Sprintf("%s: status %d", title, resp.StatusCode), nil)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if len(parsed.Docs) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "lookup", "search", title, nil)
	}

	doc := parsed.Docs[0]
	result := &Result{
		Title: doc.Title,
		Year:  doc.FirstPublishYear,
	}
	if len(doc.AuthorName) > 0 {
		result.Author = doc.AuthorName[0]
	}
	return result, nil
}
