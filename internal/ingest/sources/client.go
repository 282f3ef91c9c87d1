// Package sources implements the literature discovery clients. Each source
// wraps its public API behind a shared rate-limited HTTP core and returns
// records in the common ingest shape.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/oncoscout/oncoscout/internal/ingest"
)

// Errors shared by all source clients.
var (
	ErrRateLimited     = errors.New("source rate limited")
	ErrNotFound        = errors.New("not found")
	ErrInvalidResponse = errors.New("invalid response")
)

// DefaultTimeout is the per-request HTTP timeout.
const DefaultTimeout = 60 * time.Second

// Source searches one literature index.
type Source interface {
	// Name returns the source identifier used in paper records.
	Name() string

	// Search returns up to limit records matching the query. fromYear of 0
	// means no date filter.
	Search(ctx context.Context, query string, limit, fromYear int) ([]ingest.Record, error)
}

// client is the shared rate-limited HTTP core.
type client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	apiKey     string
}

// Option configures a source client.
type Option func(*client)

// WithBaseURL overrides the API root, for tests.
func WithBaseURL(url string) Option {
	return func(c *client) {
		c.baseURL = url
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithAPIKey sets an API key for sources that take one.
func WithAPIKey(key string) Option {
	return func(c *client) {
		c.apiKey = key
	}
}

func applyOptions(c *client, opts []Option) *client {
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newClient(baseURL string, rps float64) *client {
	return &client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		baseURL:    baseURL,
	}
}

// getJSON performs a rate-limited GET and decodes the JSON body into out.
func (c *client) getJSON(ctx context.Context, url string, header map[string]string, out any) error {
	body, err := c.get(ctx, url, header)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// get performs a rate-limited GET and returns the body. The caller closes it.
func (c *client) get(ctx context.Context, url string, header map[string]string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status 429", ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrNotFound
	case resp.StatusCode >= 400:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}

	return resp.Body, nil
}

// parseDate accepts the date layouts the sources emit.
func parseDate(s string) *time.Time {
	for _, layout := range []string{"2006-01-02", "2006-1-2", "2006-01", "2006", "2006 Jan 02", "2006 Jan"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
