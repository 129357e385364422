package metrics

import (
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/require"

	"github.com/atlasdao/painel-sub005/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })

	return collector
}

func TestThrottleMetrics(t *testing.T) {
	collector := setupTelemetry(t)

	RecordThrottleDecision("deposit", "executed")
	RecordThrottleDecision("deposit", "rejected")
	RecordThrottleWait("deposit", 30*time.Second)
	SetThrottleCapacity("deposit", 29, 2879)

	require.Equal(t, 2, collector.CountMetricsByName(ThrottleDecisionsTotal))
	require.Equal(t, 1, collector.CountMetricsByName(ThrottleWaitDuration))
	require.Equal(t, 1, collector.CountMetricsByName(ThrottleRemainingBurst))
	require.Equal(t, 1, collector.CountMetricsByName(ThrottleRemainingDaily))
}

func TestReconcilerMetrics(t *testing.T) {
	collector := setupTelemetry(t)

	RecordSweep("primary", 0, time.Millisecond)
	RecordSweep("backup", 3, time.Millisecond)
	RecordSweepAnomaly(3)
	RecordSweepError("primary")
	SetPendingTransactions(2, 5)

	require.Equal(t, 2, collector.CountMetricsByName(SweepRunsTotal))
	require.Equal(t, 1, collector.CountMetricsByName(SweepExpiredTotal), "empty sweeps add nothing to the expired counter")
	require.Equal(t, 1, collector.CountMetricsByName(SweepAnomaliesTotal))
	require.Equal(t, 1, collector.CountMetricsByName(SweepErrorsTotal))
	require.Equal(t, 2, collector.CountMetricsByName(PendingTransactions))
}

func TestJobMetrics(t *testing.T) {
	collector := setupTelemetry(t)

	RecordJobRun("reconciler.primary", false)
	RecordJobRun("reconciler.primary", true)

	require.Equal(t, 1, collector.CountMetricsByName(SchedulerJobRunsTotal))
	require.Equal(t, 1, collector.CountMetricsByName(SchedulerJobSkipsTotal))
}

func TestHelpersAreNoopsWithoutTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	require.NotPanics(t, func() {
		RecordThrottleDecision("ping", "passthrough")
		RecordSweep("manual", 1, time.Second)
		SetPendingTransactions(0, 0)
		RecordJobRun("throttle.capacity", false)
	})
}
