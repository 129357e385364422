// Package scheduler runs named periodic jobs on an injectable clock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/atlasdao/painel-sub005/internal/core/clock"
	"github.com/atlasdao/painel-sub005/internal/metrics"
	"github.com/atlasdao/painel-sub005/internal/observability"
)

// ErrStarted is returned when jobs are registered after Start.
var ErrStarted = errors.New("scheduler already started")

// JobFunc is the body of a periodic job. It should return promptly once ctx is done.
type JobFunc func(ctx context.Context)

// JobOption tunes a registered job.
type JobOption func(*job)

// RunOnStart fires the job once as soon as the scheduler starts, before the first tick.
func RunOnStart() JobOption {
	return func(j *job) { j.runOnStart = true }
}

type job struct {
	name       string
	interval   time.Duration
	fn         JobFunc
	runOnStart bool
	running    atomic.Bool
}

// Scheduler owns a fixed set of jobs. Each job has its own ticker; a tick that
// arrives while the previous run of the same job is still in flight is skipped.
type Scheduler struct {
	clock  clock.Clock
	logger observability.Logger

	mu      sync.Mutex
	jobs    []*job
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns an empty scheduler. A nil clock means wall time.
func New(c clock.Clock, logger observability.Logger) *Scheduler {
	if c == nil {
		c = clock.Real()
	}
	return &Scheduler{clock: c, logger: observability.OrNop(logger)}
}

// Every registers fn to run every interval.
func (s *Scheduler) Every(name string, interval time.Duration, fn JobFunc, opts ...JobOption) error {
	if name == "" {
		return fmt.Errorf("job name is required")
	}
	if interval <= 0 {
		return fmt.Errorf("job %q: interval must be positive, got %s", name, interval)
	}
	if fn == nil {
		return fmt.Errorf("job %q: function is required", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrStarted
	}
	for _, existing := range s.jobs {
		if existing.name == name {
			return fmt.Errorf("job %q already registered", name)
		}
	}

	j := &job{name: name, interval: interval, fn: fn}
	for _, opt := range opts {
		opt(j)
	}
	s.jobs = append(s.jobs, j)
	return nil
}

// Jobs lists registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.name)
	}
	return names
}

// Start launches one loop per job. Loops stop when ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		ticker := s.clock.NewTicker(j.interval)
		s.wg.Add(1)
		go s.loop(ctx, j, ticker)
	}

	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop cancels every loop and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j *job, ticker clock.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	var runs sync.WaitGroup
	defer runs.Wait()

	if j.runOnStart {
		s.fire(ctx, j, &runs)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.fire(ctx, j, &runs)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, j *job, runs *sync.WaitGroup) {
	if !j.running.CompareAndSwap(false, true) {
		s.logger.Debug("Skipping job tick, previous run still in flight", zap.String("job", j.name))
		metrics.RecordJobRun(j.name, true)
		return
	}

	metrics.RecordJobRun(j.name, false)
	runs.Add(1)
	go func() {
		defer runs.Done()
		defer j.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Job panicked",
					zap.String("job", j.name),
					zap.Any("panic", r))
			}
		}()
		j.fn(ctx)
	}()
}
