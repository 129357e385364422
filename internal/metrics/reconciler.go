package metrics

import (
	"time"

	"github.com/atlasdao/painel-sub005/internal/observability"
)

const (
	SweepRunsTotal      = "reconciler_sweeps_total"
	SweepExpiredTotal   = "reconciler_expired_total"
	SweepAnomaliesTotal = "reconciler_backup_anomalies_total"
	SweepErrorsTotal    = "reconciler_sweep_errors_total"
	SweepDuration       = "reconciler_sweep_duration_ms"
	PendingTransactions = "reconciler_pending_transactions"
)

// RecordSweep records a completed sweep and how many transactions it expired.
func RecordSweep(kind string, expired int64, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	labels := map[string]string{"kind": kind}
	_ = observability.TelemetrySystem.Counter(SweepRunsTotal, 1, labels)
	if expired > 0 {
		_ = observability.TelemetrySystem.Counter(SweepExpiredTotal, float64(expired), labels)
	}
	_ = observability.TelemetrySystem.Histogram(SweepDuration, duration, labels)
}

// RecordSweepAnomaly counts backup sweeps that found work the primary sweep missed.
func RecordSweepAnomaly(expired int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(SweepAnomaliesTotal, float64(expired), nil)
	}
}

// RecordSweepError counts sweeps that failed against the store.
func RecordSweepError(kind string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			SweepErrorsTotal,
			1,
			map[string]string{"kind": kind},
		)
	}
}

// SetPendingTransactions publishes pending counts split by whether they are past the TTL.
func SetPendingTransactions(expiredReady, recent int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(PendingTransactions, float64(expiredReady), map[string]string{"bucket": "past_ttl"})
	_ = observability.TelemetrySystem.Gauge(PendingTransactions, float64(recent), map[string]string{"bucket": "within_ttl"})
}
