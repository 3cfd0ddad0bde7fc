// Package restapi fetches the REST queries that real-time events invalidate.
package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// maxBodyBytes bounds a single query response.
const maxBodyBytes = 8 << 20

// ErrUnknownQuery is returned for query names with no endpoint.
var ErrUnknownQuery = errors.New("unknown query")

// ErrTooLarge is returned when a response exceeds the body limit.
var ErrTooLarge = errors.New("response too large")

// StatusError is a non-2xx response from the API.
type StatusError struct {
	Query      string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("query %s: HTTP %d from %s", e.Query, e.StatusCode, e.URL)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// collections are the list queries served at /<name>.
var collections = map[string]string{
	"orders":       "/orders",
	"recentOrders": "/orders/recent",
	"feedback":     "/feedback",
	"profile":      "/profile",
	"branches":     "/branches",
	"customers":    "/customers",
	"stats":        "/stats",
	"services":     "/services",
}

// details are the parameterised queries written as "<prefix>:<id>".
var details = map[string]string{
	"order":    "/orders/",
	"feedback": "/feedback/",
}

// Path returns the API path serving query.
func Path(query string) (string, error) {
	if p, ok := collections[query]; ok {
		return p, nil
	}
	prefix, id, ok := strings.Cut(query, ":")
	if base, known := details[prefix]; ok && known && id != "" {
		return base + url.PathEscape(id), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownQuery, query)
}

// Client fetches queries from the laundry API.
type Client struct {
	client  *http.Client
	logger  *slog.Logger
	baseURL string
	maxBody int64
}

// New creates a client for the API rooted at baseURL. Requests carry the
// session token from tokens when one is available.
func New(baseURL string, timeout time.Duration, tokens TokenSource, logger *slog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &authTransport{base: http.DefaultTransport, tokens: tokens},
		},
		logger:  logger,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		maxBody: maxBodyBytes,
	}
}

// Fetch returns the raw JSON result of query.
func (c *Client) Fetch(ctx context.Context, query string) ([]byte, error) {
	path, err := Path(query)
	if err != nil {
		return nil, err
	}
	target := c.baseURL + path

	var body []byte
	var statusErr *StatusError // last non-2xx response, if any
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Accept", "application/json")
			statusErr = nil

			start := time.Now()
			resp, err := c.client.Do(req)
			duration := time.Since(start)
			if err != nil {
				c.logger.Warn("API request failed, will retry",
					"query", query,
					"url", target,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			c.logger.Debug("API request completed",
				"query", query,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds())

			if resp.StatusCode != http.StatusOK {
				statusErr = &StatusError{Query: query, URL: target, StatusCode: resp.StatusCode}
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return retry.Unrecoverable(statusErr)
				}
				return statusErr
			}

			data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			if int64(len(data)) > c.maxBody {
				return retry.Unrecoverable(fmt.Errorf("query %s: %w (over %d bytes)", query, ErrTooLarge, c.maxBody))
			}
			if !json.Valid(data) {
				return retry.Unrecoverable(fmt.Errorf("query %s: response is not JSON", query))
			}
			body = data
			return nil
		},
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(5*time.Second),
		retry.MaxJitter(100*time.Millisecond),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying query after error", "attempt", n, "query", query, "error", err)
		}),
	)
	if statusErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", query, statusErr)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", query, err)
	}
	return body, nil
}
