// Package githubapi issues HTTP requests against the GitHub search and
// raw-content endpoints and wraps go-github for repository metadata.
package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nbsearch/notebook-indexer/internal/notebook"
)

const (
	defaultBaseURL   = "https://api.github.com"
	defaultUserAgent = "notebook-indexer/1.0"
	searchAccept     = "application/vnd.github.v3+json"
)

// Response is the envelope returned for one search call: status, headers,
// raw body, parsed body, and the effective request URL for diagnostics.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	RequestURL string
	Search     SearchBody
}

// SearchBody is the parsed search payload. Any of the nested structures
// may be absent on a malformed item.
type SearchBody struct {
	TotalCount int          `json:"total_count"`
	Items      []SearchItem `json:"items"`
}

// SearchItem is one raw search hit.
type SearchItem struct {
	Name       string            `json:"name"`
	HTMLURL    string            `json:"html_url"`
	Repository *SearchRepository `json:"repository"`
}

// SearchRepository is the repository block nested in a search hit.
type SearchRepository struct {
	Name    string       `json:"name"`
	Private bool         `json:"private"`
	Fork    bool         `json:"fork"`
	Owner   *SearchOwner `json:"owner"`
}

// SearchOwner is the owner block nested in a search repository.
type SearchOwner struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// Waiter gates outbound requests, typically a per-host token bucket.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Client performs HTTP calls against the search endpoint and raw-content URLs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    Waiter
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API base URL (used in tests).
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithLimiter paces requests through the provided waiter.
func WithLimiter(l Waiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient constructs a Client with a sane default timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchCode issues one code-search request with the provided query values
// and API key. A non-2xx status or an unparseable body is an error; both are
// transient from the caller's point of view.
func (c *Client) SearchCode(ctx context.Context, apiKey string, query url.Values) (*Response, error) {
	reqURL := fmt.Sprintf("%s/search/code?%s", c.baseURL, query.Encode())
	if err := c.wait(ctx, reqURL); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", searchAccept)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "token "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	envelope := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		RequestURL: reqURL,
	}
	if resp.StatusCode != http.StatusOK {
		return envelope, fmt.Errorf("search returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &envelope.Search); err != nil {
		return envelope, fmt.Errorf("decode search response: %w", err)
	}
	return envelope, nil
}

// Fetch performs a plain GET against a computed raw-content URL. Only the
// status code and body are meaningful to callers; transport failures are
// returned as errors.
func (c *Client) Fetch(ctx context.Context, rawURL string) (notebook.RawResponse, error) {
	if err := c.wait(ctx, rawURL); err != nil {
		return notebook.RawResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return notebook.RawResponse{}, fmt.Errorf("build raw request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return notebook.RawResponse{}, fmt.Errorf("raw fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return notebook.RawResponse{}, fmt.Errorf("read raw body %s: %w", rawURL, err)
	}
	return notebook.RawResponse{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

func (c *Client) wait(ctx context.Context, url string) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx, url); err != nil {
		return fmt.Errorf("limiter: %w", err)
	}
	return nil
}
