package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPConfig holds the shared settings of exchange REST clients.
type HTTPConfig struct {
	BaseURL        string
	RateLimiter    *rate.Limiter
	RequestTimeout time.Duration
}

func DefaultHTTPConfig(baseURL string, requestsPerSecond float64) *HTTPConfig {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	return &HTTPConfig{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		RateLimiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 10),
		RequestTimeout: 10 * time.Second,
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// HTTPClient is a rate limited JSON GET client.
type HTTPClient struct {
	Config *HTTPConfig
	client *http.Client
}

func NewHTTPClient(cfg *HTTPConfig) *HTTPClient {
	return &HTTPClient{
		Config: cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// GetJSON waits for the rate limiter, requests BaseURL+path and decodes the
// body into out.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	if c.Config.RateLimiter != nil {
		if err := c.Config.RateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	u := c.Config.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{URL: u, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// RawToken returns a JSON scalar as text: strings are unquoted and numbers
// keep their literal digits.
func RawToken(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, `"`) {
		var out string
		if err := json.Unmarshal(raw, &out); err == nil {
			return out
		}
	}
	if s == "null" {
		return ""
	}
	return s
}
