package engine

import (
	"github.com/atlasdao/painel-sub005/internal/core"
)

// Status reports the remaining capacity of endpoint. It never mutates the
// counters; a window that has already elapsed is reported as full.
func (t *Throttle) Status(endpoint string) (core.EndpointStatus, bool) {
	state := t.lookup(endpoint)
	if state == nil {
		return core.EndpointStatus{}, false
	}
	return state.status(t.clock.Now(), t.location), true
}

// Statuses reports every registered endpoint, sorted by name.
func (t *Throttle) Statuses() []core.EndpointStatus {
	names := t.Endpoints()
	statuses := make([]core.EndpointStatus, 0, len(names))
	for _, name := range names {
		if st, ok := t.Status(name); ok {
			statuses = append(statuses, st)
		}
	}
	return statuses
}
