package metrics

import (
	"time"

	"github.com/atlasdao/painel-sub005/internal/observability"
)

const (
	ThrottleDecisionsTotal = "throttle_decisions_total"
	ThrottleWaitDuration   = "throttle_wait_duration_ms"
	ThrottleRemainingBurst = "throttle_remaining_burst"
	ThrottleRemainingDaily = "throttle_remaining_daily"
)

// RecordThrottleDecision counts one throttle outcome for an endpoint.
func RecordThrottleDecision(endpoint, outcome string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ThrottleDecisionsTotal,
			1,
			map[string]string{
				"endpoint": endpoint,
				"outcome":  outcome,
			},
		)
	}
}

// RecordThrottleWait records how long a call was held back.
func RecordThrottleWait(endpoint string, waited time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(
			ThrottleWaitDuration,
			waited,
			map[string]string{
				"endpoint": endpoint,
			},
		)
	}
}

// SetThrottleCapacity publishes the remaining burst and daily capacity of an endpoint.
func SetThrottleCapacity(endpoint string, remainingBurst, remainingDaily int) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{"endpoint": endpoint}
	_ = observability.TelemetrySystem.Gauge(ThrottleRemainingBurst, float64(remainingBurst), labels)
	_ = observability.TelemetrySystem.Gauge(ThrottleRemainingDaily, float64(remainingDaily), labels)
}
