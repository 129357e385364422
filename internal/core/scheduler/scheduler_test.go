package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/atlasdao/painel-sub005/internal/core/clock"
)

func newObserved() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestEveryValidates(t *testing.T) {
	s := New(clock.NewFake(time.Now()), nil)
	noop := func(context.Context) {}

	require.Error(t, s.Every("", time.Minute, noop))
	require.Error(t, s.Every("sweep", 0, noop))
	require.Error(t, s.Every("sweep", time.Minute, nil))
	require.NoError(t, s.Every("sweep", time.Minute, noop))
	require.Error(t, s.Every("sweep", time.Minute, noop))
	require.Equal(t, []string{"sweep"}, s.Jobs())
}

func TestJobsFireOnTicks(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	s := New(clk, nil)

	fast := make(chan time.Time, 10)
	slow := make(chan time.Time, 10)
	require.NoError(t, s.Every("primary", time.Minute, func(context.Context) { fast <- clk.Now() }))
	require.NoError(t, s.Every("backup", 5*time.Minute, func(context.Context) { slow <- clk.Now() }))

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	require.Equal(t, 2, clk.Waiters())

	for i := 1; i <= 5; i++ {
		clk.Advance(time.Minute)
		<-fast
	}
	<-slow
	require.Empty(t, slow)

	require.ErrorIs(t, s.Every("late", time.Minute, func(context.Context) {}), ErrStarted)
}

func TestRunOnStart(t *testing.T) {
	s := New(clock.NewFake(time.Now()), nil)
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Every("primary", time.Minute, func(context.Context) { ran <- struct{}{} }, RunOnStart()))

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)
	<-ran
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	clk := clock.NewFake(time.Now())
	logger, logs := newObserved()
	s := New(clk, logger)

	var starts atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	require.NoError(t, s.Every("primary", time.Minute, func(context.Context) {
		starts.Add(1)
		started <- struct{}{}
		<-release
	}))
	require.NoError(t, s.Start(context.Background()))

	clk.Advance(time.Minute)
	<-started

	clk.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return logs.FilterMessageSnippet("Skipping job tick").Len() == 1
	}, time.Second, 5*time.Millisecond)

	close(release)
	s.Stop()
	require.Equal(t, int32(1), starts.Load())
}

func TestPanicIsRecovered(t *testing.T) {
	clk := clock.NewFake(time.Now())
	logger, logs := newObserved()
	s := New(clk, logger)

	var calls atomic.Int32
	done := make(chan struct{}, 16)
	require.NoError(t, s.Every("flaky", time.Minute, func(context.Context) {
		defer func() { done <- struct{}{} }()
		if calls.Add(1) == 1 {
			panic("boom")
		}
	}))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	clk.Advance(time.Minute)
	<-done
	require.Eventually(t, func() bool {
		return logs.FilterMessage("Job panicked").Len() == 1
	}, time.Second, 5*time.Millisecond)

	// The running flag is cleared after the recover, so wait for it before the next tick.
	require.Eventually(t, func() bool {
		clk.Advance(time.Minute)
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	require.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestStopWaitsForRunningJob(t *testing.T) {
	clk := clock.NewFake(time.Now())
	s := New(clk, nil)

	started := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, s.Every("long", time.Minute, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		finished.Store(true)
	}))
	require.NoError(t, s.Start(context.Background()))

	clk.Advance(time.Minute)
	<-started
	s.Stop()
	require.True(t, finished.Load())
	require.Zero(t, clk.Waiters())
}
