// Package provider talks to the upstream PIX settlement API. Every request is
// paced by the outbound throttle.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atlasdao/painel-sub005/internal/core/engine"
)

// Resolver maps an outbound request to a throttle endpoint id.
type Resolver func(*http.Request) string

// PathResolver returns a Resolver that uses the first path segment after basePath,
// so /v2/deposit/123 under basePath /v2 resolves to "deposit".
func PathResolver(basePath string) Resolver {
	prefix := "/" + strings.Trim(basePath, "/")
	if prefix == "/" {
		prefix = ""
	}
	return func(r *http.Request) string {
		path := r.URL.Path
		if prefix != "" && (path == prefix || strings.HasPrefix(path, prefix+"/")) {
			path = path[len(prefix):]
		}
		segment, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
		return strings.ToLower(segment)
	}
}

// StatusError marks an upstream response the throttle should treat as a failed call.
type StatusError struct {
	StatusCode int
	Endpoint   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider endpoint %s returned status %d", e.Endpoint, e.StatusCode)
}

type transport struct {
	throttle *engine.Throttle
	resolve  Resolver
	next     http.RoundTripper
	timeout  time.Duration
}

// TransportOption configures NewTransport.
type TransportOption func(*transport)

// WithAttemptTimeout bounds the upstream exchange of each request, from
// sending it until its body is closed. Time spent waiting in the throttle is
// not counted.
func WithAttemptTimeout(d time.Duration) TransportOption {
	return func(t *transport) { t.timeout = d }
}

// NewTransport wraps next so every request runs under the throttle budget of
// the endpoint chosen by resolve. Transport errors and 429/5xx responses refund
// the reserved slot; the response itself is still returned to the caller.
func NewTransport(throttle *engine.Throttle, resolve Resolver, next http.RoundTripper, opts ...TransportOption) http.RoundTripper {
	if resolve == nil {
		resolve = PathResolver("")
	}
	if next == nil {
		next = http.DefaultTransport
	}
	t := &transport{throttle: throttle, resolve: resolve, next: next}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *transport) RoundTrip(r *http.Request) (*http.Response, error) {
	endpoint := t.resolve(r)

	resp, err := engine.Execute(r.Context(), t.throttle, endpoint, func(ctx context.Context) (*http.Response, error) {
		cancel := context.CancelFunc(func() {})
		if t.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, t.timeout)
		}
		resp, err := t.next.RoundTrip(r.WithContext(ctx))
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		if countsAsFailure(resp.StatusCode) {
			return resp, &StatusError{StatusCode: resp.StatusCode, Endpoint: endpoint}
		}
		return resp, nil
	})

	var statusErr *StatusError
	if errors.As(err, &statusErr) && resp != nil {
		return resp, nil
	}
	return resp, err
}

// cancelOnClose releases the attempt deadline once the caller is done with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func countsAsFailure(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
