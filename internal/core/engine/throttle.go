package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/atlasdao/painel-sub005/internal/core"
	"github.com/atlasdao/painel-sub005/internal/core/clock"
	"github.com/atlasdao/painel-sub005/internal/metrics"
	"github.com/atlasdao/painel-sub005/internal/observability"
)

// ErrDailyLimitExceeded is returned before the call is attempted once an
// endpoint has used its daily budget. Callers must not retry until the reset.
var ErrDailyLimitExceeded = errors.New("daily limit exceeded")

// Throttle paces outbound provider calls per endpoint. Unknown endpoints pass through.
type Throttle struct {
	states   map[string]*endpointState
	clock    clock.Clock
	location *time.Location
	logger   observability.Logger
	stats    StatsRecorder
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(t *Throttle) {
		if c != nil {
			t.clock = c
		}
	}
}

// WithLocation sets the timezone whose midnight resets the daily counters.
func WithLocation(loc *time.Location) Option {
	return func(t *Throttle) {
		if loc != nil {
			t.location = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(t *Throttle) { t.logger = observability.OrNop(logger) }
}

// WithStats sets the decision recorder.
func WithStats(stats StatsRecorder) Option {
	return func(t *Throttle) {
		if stats != nil {
			t.stats = stats
		}
	}
}

// NewThrottle builds a Throttle with one state record per budget.
func NewThrottle(budgets map[string]core.EndpointBudget, opts ...Option) (*Throttle, error) {
	normalized := MergeBudgets(nil, budgets)
	if err := validateBudgets(normalized); err != nil {
		return nil, err
	}

	t := &Throttle{
		clock:    clock.Real(),
		location: time.Local,
		logger:   observability.OrNop(nil),
		stats:    NopStats{},
	}
	for _, opt := range opts {
		opt(t)
	}

	now := t.clock.Now()
	t.states = make(map[string]*endpointState, len(normalized))
	for name, budget := range normalized {
		t.states[name] = newEndpointState(name, budget, now, t.location)
	}

	return t, nil
}

// Execute runs fn under the budget of endpoint and returns its result.
//
// The call is delayed to honor spacing and burst limits and rejected with
// ErrDailyLimitExceeded when the daily budget is spent. If fn fails, or ctx
// ends while waiting, the reserved slot is refunded and the error is returned
// unchanged.
func Execute[T any](ctx context.Context, t *Throttle, endpoint string, fn func(context.Context) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	state := t.lookup(endpoint)
	if state == nil {
		if t != nil {
			t.record(ctx, endpoint, OutcomePassthrough, 0)
		}
		return fn(ctx)
	}

	delay, err := state.reserve(t.clock.Now(), t.location)
	if err != nil {
		t.logger.Warn("Provider call rejected",
			zap.String("endpoint", state.name),
			zap.Error(err))
		t.record(ctx, state.name, OutcomeRejected, 0)
		var zero T
		return zero, err
	}

	if delay > 0 {
		t.logger.Debug("Throttling provider call",
			zap.String("endpoint", state.name),
			zap.Duration("delay", delay))
		metrics.RecordThrottleWait(state.name, delay)
	}

	if err := t.wait(ctx, delay); err != nil {
		state.refund()
		t.record(ctx, state.name, OutcomeCancelled, delay)
		var zero T
		return zero, err
	}

	result, err := fn(ctx)
	if err != nil {
		state.refund()
		t.record(ctx, state.name, OutcomeFailed, delay)
		return result, err
	}

	t.record(ctx, state.name, OutcomeExecuted, delay)
	return result, nil
}

// Do is Execute for calls without a result value.
func (t *Throttle) Do(ctx context.Context, endpoint string, fn func(context.Context) error) error {
	_, err := Execute(ctx, t, endpoint, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Registered reports whether endpoint has a budget.
func (t *Throttle) Registered(endpoint string) bool {
	return t.lookup(endpoint) != nil
}

// Endpoints lists the registered endpoint names in lexical order.
func (t *Throttle) Endpoints() []string {
	if t == nil {
		return nil
	}
	budgets := make(map[string]core.EndpointBudget, len(t.states))
	for name, state := range t.states {
		budgets[name] = state.budget
	}
	return SortedEndpoints(budgets)
}

// Budgets returns a copy of the budget registry.
func (t *Throttle) Budgets() map[string]core.EndpointBudget {
	if t == nil {
		return nil
	}
	budgets := make(map[string]core.EndpointBudget, len(t.states))
	for name, state := range t.states {
		budgets[name] = state.budget
	}
	return budgets
}

func (t *Throttle) lookup(endpoint string) *endpointState {
	if t == nil || t.states == nil {
		return nil
	}
	return t.states[normalizeEndpoint(endpoint)]
}

func (t *Throttle) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := t.clock.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

func (t *Throttle) record(ctx context.Context, endpoint string, outcome Outcome, waited time.Duration) {
	metrics.RecordThrottleDecision(endpoint, string(outcome))

	decision := Decision{
		Endpoint: endpoint,
		Outcome:  outcome,
		Waited:   waited,
		At:       t.clock.Now(),
	}
	if err := t.stats.Record(context.WithoutCancel(ctx), decision); err != nil {
		t.logger.Warn("Failed to record throttle decision",
			zap.String("endpoint", endpoint),
			zap.String("outcome", string(outcome)),
			zap.Error(err))
	}
}
