package metrics

import (
	"time"

	"github.com/atlasdao/painel-sub005/internal/observability"
)

const (
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"

	SchedulerJobRunsTotal  = "app_scheduler_job_runs_total"
	SchedulerJobSkipsTotal = "app_scheduler_job_skips_total"
)

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// RecordJobRun counts a scheduled job execution; skipped runs overlapped a previous one.
func RecordJobRun(job string, skipped bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	name := SchedulerJobRunsTotal
	if skipped {
		name = SchedulerJobSkipsTotal
	}
	_ = observability.TelemetrySystem.Counter(name, 1, map[string]string{"job": job})
}
