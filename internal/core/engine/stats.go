package engine

import (
	"context"
	"sync"
	"time"
)

// Outcome classifies what the throttle did with one call.
type Outcome string

const (
	OutcomeExecuted    Outcome = "executed"
	OutcomeFailed      Outcome = "failed"
	OutcomeRejected    Outcome = "rejected"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomePassthrough Outcome = "passthrough"
)

// Decision is one throttle outcome for an endpoint.
type Decision struct {
	Endpoint string
	Outcome  Outcome
	Waited   time.Duration
	At       time.Time
}

// StatsRecorder persists throttle decisions. Failures are logged by the
// throttle and never affect the call.
type StatsRecorder interface {
	Record(ctx context.Context, d Decision) error
}

// StatsReader exposes recorded counters per endpoint and outcome.
type StatsReader interface {
	Counters(ctx context.Context) (map[string]EndpointCounters, error)
}

// EndpointCounters aggregates the decisions recorded for one endpoint.
type EndpointCounters struct {
	Outcomes map[Outcome]int64 `json:"outcomes"`
	Waited   time.Duration     `json:"waited_ns"`
}

// NopStats discards decisions.
type NopStats struct{}

func (NopStats) Record(context.Context, Decision) error { return nil }

// MemoryStats keeps counters in process memory.
type MemoryStats struct {
	mu         sync.Mutex
	byEndpoint map[string]EndpointCounters
}

// NewMemoryStats returns an empty in-memory recorder.
func NewMemoryStats() *MemoryStats {
	return &MemoryStats{byEndpoint: make(map[string]EndpointCounters)}
}

func (m *MemoryStats) Record(_ context.Context, d Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byEndpoint[d.Endpoint]
	if !ok {
		c = EndpointCounters{Outcomes: make(map[Outcome]int64)}
	}
	c.Outcomes[d.Outcome]++
	c.Waited += d.Waited
	m.byEndpoint[d.Endpoint] = c
	return nil
}

func (m *MemoryStats) Counters(context.Context) (map[string]EndpointCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]EndpointCounters, len(m.byEndpoint))
	for endpoint, c := range m.byEndpoint {
		outcomes := make(map[Outcome]int64, len(c.Outcomes))
		for k, v := range c.Outcomes {
			outcomes[k] = v
		}
		out[endpoint] = EndpointCounters{Outcomes: outcomes, Waited: c.Waited}
	}
	return out, nil
}
