package metrics

import (
	"strconv"

	"github.com/atlasdao/painel-sub005/internal/observability"
)

const (
	ErrorsTotal = "errors_total"
	PanicsTotal = "panics_total"
)

// RecordError counts an error response. route is the router pattern, not the
// raw path, so unknown endpoint names do not create new series.
func RecordError(code string, status int, route string) {
	if observability.TelemetrySystem == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	_ = observability.TelemetrySystem.Counter(ErrorsTotal, 1, map[string]string{
		"error_code":  code,
		"http_status": strconv.Itoa(status),
		"route":       route,
	})
}

func RecordPanic() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(PanicsTotal, 1, nil)
	}
}
