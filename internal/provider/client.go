package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atlasdao/painel-sub005/internal/core/engine"
)

const maxErrorBody = 4 << 10

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("provider %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	Throttle  *engine.Throttle

	// Timeout bounds one upstream exchange. Throttle waits are not included.
	Timeout time.Duration

	// Transport is the underlying RoundTripper, http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// Client is a small JSON client for the provider API.
type Client struct {
	base      *url.URL
	apiKey    string
	userAgent string
	http      *http.Client
}

// NewClient validates opts and builds a throttled client.
func NewClient(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("provider base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid provider base url %q", raw)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		base:      base,
		apiKey:    strings.TrimSpace(opts.APIKey),
		userAgent: opts.UserAgent,
		http: &http.Client{
			Transport: NewTransport(opts.Throttle, PathResolver(base.Path), opts.Transport, WithAttemptTimeout(timeout)),
		},
	}, nil
}

// Call sends body as JSON to path and decodes the response into out when out is non-nil.
func (c *Client) Call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode provider request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.base.JoinPath(strings.TrimPrefix(path, "/"))
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       target.Path,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}

// PingResult is the provider's liveness answer.
type PingResult struct {
	Status  string        `json:"status"`
	Latency time.Duration `json:"-"`
}

// Ping calls GET /ping under the "ping" budget.
func (c *Client) Ping(ctx context.Context) (PingResult, error) {
	var result PingResult
	start := time.Now()
	if err := c.Call(ctx, http.MethodGet, "/ping", nil, &result); err != nil {
		return PingResult{}, err
	}
	result.Latency = time.Since(start)
	return result, nil
}
