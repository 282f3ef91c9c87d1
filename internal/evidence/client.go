// Package evidence pulls curated external datasets into the evidence tables:
// gene dependency, mutation frequency, survival, expression, structure,
// compounds, and pathway membership. Adapters are idempotent and versioned;
// each sync replaces the table contents and records an adapter run.
package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Errors surfaced by adapter fetches.
var (
	ErrRateLimited     = errors.New("evidence source rate limited")
	ErrInvalidResponse = errors.New("evidence source returned an invalid response")
)

// DefaultTimeout bounds one fetch.
const DefaultTimeout = 120 * time.Second

// client is a rate-limited JSON fetcher shared by all adapters.
type client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// Option configures a client.
type Option func(*client)

// WithBaseURL overrides the source endpoint, mainly for tests and mirrors.
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *client) { c.httpClient = h }
}

// WithRateLimit sets the request budget in requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

func newClient(baseURL string, rps float64, opts ...Option) *client {
	c := &client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		baseURL:    baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON fetches path under the base URL and decodes the body into out.
func (c *client) getJSON(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, path)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: %s returned status %d", ErrInvalidResponse, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrInvalidResponse, path, err)
	}
	return nil
}
