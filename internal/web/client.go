// Package web talks to the streaming providers: canonical metadata
// payloads, token brokerage, similar-artist lookups and the saved-album
// pipeline. Everything here runs on worker goroutines; results reach the
// player through the task runner.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	maxRetries     = 5
	requestTimeout = 30 * time.Second
)

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request to %s failed: %s", e.URL, e.Status)
}

// IsNotFound reports whether the error is a provider 404.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// hostLimit tracks the most recent rate-limit header values for one host.
type hostLimit struct {
	remaining int
	reset     time.Time
}

// Client wraps http.Client with per-host rate limiting driven by the
// X-RateLimit-Remaining and X-RateLimit-Reset response headers, and
// bounded retries for 429 and 5xx responses.
type Client struct {
	httpClient *http.Client
	logger     *logrus.Logger

	mu     sync.Mutex
	limits map[string]hostLimit
}

// NewClient creates a rate-limited HTTP client.
func NewClient(logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
		limits:     make(map[string]hostLimit),
	}
}

// Get fetches a URL with the given headers, honoring rate limits and
// retrying transient failures with exponential backoff.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, rawURL, headers, nil)
}

// Do performs a request with retries. The body reader, when non-nil, is
// provided by a factory so each attempt gets a fresh body.
func (c *Client) Do(ctx context.Context, method, rawURL string, headers map[string]string, body func() io.Reader) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := c.waitForHost(ctx, parsed.Host); err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = body()
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.backoff(ctx, attempt)
			continue
		}

		c.recordLimits(parsed.Host, resp)

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if readErr != nil {
				return nil, readErr
			}
			return data, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = &APIError{StatusCode: resp.StatusCode, Status: resp.Status, URL: rawURL}
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if secs, perr := strconv.Atoi(retryAfter); perr == nil {
					c.setReset(parsed.Host, time.Now().Add(time.Duration(secs)*time.Second))
				}
			}
			c.logger.WithFields(logrus.Fields{
				"url":     rawURL,
				"status":  resp.StatusCode,
				"attempt": attempt + 1,
			}).Debug("Retrying request")
			c.backoff(ctx, attempt)
		default:
			return nil, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, URL: rawURL}
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", maxRetries, lastErr)
}

// waitForHost blocks while the host's rate limit window is exhausted.
func (c *Client) waitForHost(ctx context.Context, host string) error {
	c.mu.Lock()
	limit, ok := c.limits[host]
	c.mu.Unlock()
	if !ok || limit.remaining > 0 {
		return nil
	}
	wait := time.Until(limit.reset)
	if wait <= 0 {
		return nil
	}
	c.logger.WithFields(logrus.Fields{"host": host, "wait": wait}).Debug("Rate limited, waiting")
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) recordLimits(host string, resp *http.Response) {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return
	}
	n, err := strconv.Atoi(remaining)
	if err != nil {
		return
	}
	limit := hostLimit{remaining: n, reset: time.Now().Add(time.Second)}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if unix, perr := strconv.ParseInt(reset, 10, 64); perr == nil {
			limit.reset = time.Unix(unix, 0)
		}
	}
	c.mu.Lock()
	c.limits[host] = limit
	c.mu.Unlock()
}

func (c *Client) setReset(host string, at time.Time) {
	c.mu.Lock()
	c.limits[host] = hostLimit{remaining: 0, reset: at}
	c.mu.Unlock()
}

func (c *Client) backoff(ctx context.Context, attempt int) {
	delay := time.Duration(1<<uint(attempt)) * time.Second
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}
