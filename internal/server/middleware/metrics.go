package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atlasdao/painel-sub005/internal/observability"
)

// statusRecorder captures the status and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }

// RoutePattern returns the chi route pattern for r so metric labels stay
// bounded. Paths that never matched a route collapse into their family.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	for _, prefix := range routeFamilies {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return prefix + "/*"
		}
	}
	switch path {
	case "/version", "/metrics", "/":
		return path
	default:
		return "/unknown"
	}
}

// routeFamilies group paths whose last segments carry ids.
var routeFamilies = []string{"/health", "/v1/throttle", "/v1/reconciler", "/admin"}

// RequestMetrics emits the http_* series for every request, labelled by
// route pattern, and logs the request at debug level.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sys := observability.TelemetrySystem
		if sys == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := RoutePattern(r)
		status := strconv.Itoa(rec.status)
		labels := map[string]string{"method": r.Method, "endpoint": route, "status": status}
		_ = sys.Counter("http_requests_total", 1, labels)
		_ = sys.Histogram("http_request_duration_ms", elapsed, labels)

		sizeLabels := map[string]string{"method": r.Method, "endpoint": route}
		_ = sys.Gauge("http_request_size_bytes", float64(max(r.ContentLength, 0)), sizeLabels)
		_ = sys.Gauge("http_response_size_bytes", float64(rec.bytes), sizeLabels)

		if rec.status >= http.StatusBadRequest {
			class := "client_error"
			if rec.status >= http.StatusInternalServerError {
				class = "server_error"
			}
			_ = sys.Counter("http_errors_total", 1, map[string]string{
				"method": r.Method, "endpoint": route, "status": status, "error_type": class,
			})
		}

		observability.Server().Debug("HTTP request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", route),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
			zap.Int64("response_size", rec.bytes),
			zap.String("requestID", GetRequestID(r.Context())),
		)
	})
}
