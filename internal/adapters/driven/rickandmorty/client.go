package rickandmorty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
)

// DefaultBaseURL is the public Rick and Morty REST API.
const DefaultBaseURL = "https://rickandmortyapi.com/api"

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// APIError is a non-success response from the API.
type APIError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration // from a Retry-After header, if any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rick and morty API error %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps 404 to domain.ErrNotFound and every other status to
// domain.ErrUpstream.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return domain.ErrUpstream
}

// Config holds client settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration // backoff unit; attempt n waits n*RetryWait
	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client provides Rick and Morty API operations.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	retryWait  time.Duration
	userAgent  string
	logger     *slog.Logger
}

// NewClient creates a new API client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryWait := cfg.RetryWait
	if retryWait <= 0 {
		retryWait = time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "rmsync"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		maxRetries: maxRetries,
		retryWait:  retryWait,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// getJSON fetches path and decodes the response into v.
func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// doRequest retries 5xx and 429 responses with linear backoff. Any other
// status >= 400 is returned as *APIError.
func (c *Client) doRequest(ctx context.Context, method, path string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * c.retryWait
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			c.logger.Debug("retrying request", "path", path, "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("do request: %w: %w", domain.ErrServiceUnavailable, err)
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}

		// Success or non-retryable error
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, apiErr
		}
		lastErr = apiErr
	}
	return nil, lastErr
}

// retryAfter parses a Retry-After header given in seconds. Waits over five
// minutes are ignored in favour of the normal backoff.
func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	wait := time.Duration(secs) * time.Second
	if wait > 5*time.Minute {
		return 0
	}
	return wait
}
