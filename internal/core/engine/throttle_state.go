package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/atlasdao/painel-sub005/internal/core"
	"github.com/atlasdao/painel-sub005/internal/core/clock"
)

// endpointState is the mutable bookkeeping for one endpoint. Every field is guarded by mu.
type endpointState struct {
	mu           sync.Mutex
	name         string
	budget       core.EndpointBudget
	lastRequest  time.Time
	requestCount int
	dailyCount   int
	dailyResetAt time.Time
}

func newEndpointState(name string, budget core.EndpointBudget, now time.Time, loc *time.Location) *endpointState {
	return &endpointState{
		name:         name,
		budget:       budget,
		dailyResetAt: clock.NextMidnight(now, loc),
	}
}

// reserve runs the daily, spacing and burst checks and debits the counters for
// a call released at now+delay.
func (s *endpointState) reserve(now time.Time, loc *time.Location) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !now.Before(s.dailyResetAt) {
		s.dailyCount = 0
		s.dailyResetAt = clock.NextMidnight(now, loc)
	}

	if s.dailyCount >= s.budget.DailyLimit {
		return 0, fmt.Errorf("%w: endpoint %q used %d/%d calls, resets at %s",
			ErrDailyLimitExceeded, s.name, s.dailyCount, s.budget.DailyLimit, s.dailyResetAt.Format(time.RFC3339))
	}

	elapsed := now.Sub(s.lastRequest)
	delay := s.budget.MinInterval() - elapsed
	if delay < 0 {
		delay = 0
	}

	if s.requestCount >= s.budget.BurstLimit {
		if elapsed >= time.Minute {
			s.requestCount = 0
		} else if burstDelay := time.Minute - elapsed; burstDelay > delay {
			delay = burstDelay
		}
	}

	s.lastRequest = now.Add(delay)
	s.requestCount++
	s.dailyCount++

	return delay, nil
}

// refund returns a reserved slot after the call failed or was abandoned.
func (s *endpointState) refund() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.requestCount > 0 {
		s.requestCount--
	}
	if s.dailyCount > 0 {
		s.dailyCount--
	}
}

// status projects remaining capacity at now without touching the counters.
func (s *endpointState) status(now time.Time, loc *time.Location) core.EndpointStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := core.EndpointStatus{
		Endpoint:       s.name,
		Budget:         s.budget,
		RemainingBurst: s.budget.BurstLimit,
		RemainingDaily: s.budget.DailyLimit,
		DailyResetAt:   s.dailyResetAt,
	}

	if !s.lastRequest.IsZero() {
		resetAt := s.lastRequest.Add(time.Minute)
		st.ResetAt = &resetAt
		if now.Sub(s.lastRequest) < time.Minute {
			st.RemainingBurst = max(0, s.budget.BurstLimit-s.requestCount)
		}
	}

	if now.Before(s.dailyResetAt) {
		st.RemainingDaily = max(0, s.budget.DailyLimit-s.dailyCount)
	} else {
		st.DailyResetAt = clock.NextMidnight(now, loc)
	}

	return st
}

type counters struct {
	requestCount int
	dailyCount   int
	lastRequest  time.Time
	dailyResetAt time.Time
}

func (s *endpointState) snapshot() counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return counters{
		requestCount: s.requestCount,
		dailyCount:   s.dailyCount,
		lastRequest:  s.lastRequest,
		dailyResetAt: s.dailyResetAt,
	}
}
