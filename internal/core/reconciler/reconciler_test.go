package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/atlasdao/painel-sub005/internal/core"
	"github.com/atlasdao/painel-sub005/internal/core/clock"
	"github.com/atlasdao/painel-sub005/internal/core/scheduler"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type memoryRepository struct {
	mu   sync.Mutex
	rows map[string]*core.Transaction
	err  error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{rows: make(map[string]*core.Transaction)}
}

func (m *memoryRepository) add(status core.TransactionStatus, createdAt time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.rows[id] = &core.Transaction{
		ID:        id,
		Type:      core.TypeDeposit,
		Status:    status,
		Amount:    decimal.RequireFromString("150.00"),
		CreatedAt: createdAt,
	}
	return id
}

func (m *memoryRepository) get(id string) core.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *memoryRepository) CountPending(_ context.Context, filter core.PendingFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, tx := range m.rows {
		if tx.Status == core.StatusPending && filter.Matches(tx.CreatedAt) {
			n++
		}
	}
	return n, nil
}

func (m *memoryRepository) CountByStatus(_ context.Context, status core.TransactionStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, tx := range m.rows {
		if tx.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memoryRepository) FindPendingOlderThan(_ context.Context, cutoff time.Time, limit int) ([]core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []core.Transaction
	for _, tx := range m.rows {
		if tx.Status == core.StatusPending && tx.CreatedAt.Before(cutoff) {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepository) ExpirePendingOlderThan(_ context.Context, cutoff time.Time, reason string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for _, tx := range m.rows {
		if tx.Status == core.StatusPending && tx.CreatedAt.Before(cutoff) {
			processed := now
			tx.Status = core.StatusExpired
			tx.ErrorMessage = reason
			tx.ProcessedAt = &processed
			n++
		}
	}
	return n, nil
}

func newTestReconciler(t *testing.T, repo Repository, opts ...Option) (*Reconciler, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(t0)
	r, err := New(repo, DefaultConfig(), append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	return r, clk
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.TTL = 0
	_, err = New(newMemoryRepository(), cfg)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.BackupEnabled = false
	cfg.BackupInterval = 0
	_, err = New(newMemoryRepository(), cfg)
	require.NoError(t, err)
}

func TestSweepIsIdempotent(t *testing.T) {
	repo := newMemoryRepository()
	r, _ := newTestReconciler(t, repo)
	for i := 0; i < 3; i++ {
		repo.add(core.StatusPending, t0.Add(-time.Hour))
	}

	first, err := r.ManualSweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), first)

	second, err := r.ManualSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, second)
}

func TestSweepRespectsTTLBoundary(t *testing.T) {
	repo := newMemoryRepository()
	r, clk := newTestReconciler(t, repo)
	id := repo.add(core.StatusPending, t0)

	clk.Advance(28 * time.Minute)
	require.Zero(t, r.PrimarySweep(context.Background()))
	require.Equal(t, core.StatusPending, repo.get(id).Status)

	clk.Advance(time.Minute)
	require.Equal(t, int64(1), r.PrimarySweep(context.Background()))

	tx := repo.get(id)
	require.Equal(t, core.StatusExpired, tx.Status)
	require.Equal(t, ExpiredReason, tx.ErrorMessage)
	require.NotNil(t, tx.ProcessedAt)
	require.Equal(t, t0.Add(29*time.Minute), *tx.ProcessedAt)
}

func TestBackupCadenceAloneExpiresWithinThirtyThreeMinutes(t *testing.T) {
	repo := newMemoryRepository()
	logCore, logs := observer.New(zapcore.DebugLevel)
	r, clk := newTestReconciler(t, repo, WithLogger(zap.New(logCore)))
	id := repo.add(core.StatusPending, t0)

	var expiredAt time.Time
	for elapsed := 5 * time.Minute; elapsed <= 33*time.Minute; elapsed += 5 * time.Minute {
		clk.Advance(5 * time.Minute)
		if r.BackupSweep(context.Background()) > 0 {
			expiredAt = clk.Now()
			break
		}
	}

	require.Equal(t, t0.Add(30*time.Minute), expiredAt)
	require.Equal(t, core.StatusExpired, repo.get(id).Status)
	require.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestTerminalTransactionsAreNeverTouched(t *testing.T) {
	repo := newMemoryRepository()
	r, _ := newTestReconciler(t, repo)
	completed := repo.add(core.StatusCompleted, t0.Add(-time.Hour))
	failed := repo.add(core.StatusFailed, t0.Add(-time.Hour))

	n, err := r.ManualSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, core.StatusCompleted, repo.get(completed).Status)
	require.Equal(t, core.StatusFailed, repo.get(failed).Status)
}

func TestConcurrentSweepsCountEachRowOnce(t *testing.T) {
	repo := newMemoryRepository()
	r, _ := newTestReconciler(t, repo)
	const eligible = 100
	for i := 0; i < eligible; i++ {
		repo.add(core.StatusPending, t0.Add(-time.Duration(30+i)*time.Minute))
	}
	repo.add(core.StatusPending, t0.Add(-time.Minute))

	var total atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				total.Add(r.PrimarySweep(context.Background()))
			case 1:
				total.Add(r.BackupSweep(context.Background()))
			default:
				n, err := r.ManualSweep(context.Background())
				require.NoError(t, err)
				total.Add(n)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(eligible), total.Load())
	n, err := repo.CountByStatus(context.Background(), core.StatusExpired)
	require.NoError(t, err)
	require.Equal(t, eligible, n)
}

func TestScheduledSweepSwallowsErrors(t *testing.T) {
	repo := newMemoryRepository()
	repo.err = errors.New("connection refused")
	logCore, logs := observer.New(zapcore.DebugLevel)
	r, _ := newTestReconciler(t, repo, WithLogger(zap.New(logCore)))

	require.Zero(t, r.PrimarySweep(context.Background()))
	require.Zero(t, r.BackupSweep(context.Background()))
	require.Equal(t, 2, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	_, err := r.ManualSweep(context.Background())
	require.ErrorIs(t, err, repo.err)
}

func TestStats(t *testing.T) {
	repo := newMemoryRepository()
	r, _ := newTestReconciler(t, repo)
	repo.add(core.StatusPending, t0.Add(-40*time.Minute))
	repo.add(core.StatusPending, t0.Add(-29*time.Minute))
	repo.add(core.StatusPending, t0.Add(-28*time.Minute))
	repo.add(core.StatusPending, t0.Add(-time.Minute))
	repo.add(core.StatusExpired, t0.Add(-2*time.Hour))

	stats, err := r.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, stats.TotalPending)
	require.Equal(t, 2, stats.ExpiredReady)
	require.Equal(t, 2, stats.RecentPending)
	require.Equal(t, 1, stats.TotalExpiredHistorical)
	require.Equal(t, 28, stats.TTLMinutes)
	require.Equal(t, t0.Add(-28*time.Minute), stats.CutoffTime)
}

func TestStatsPropagatesErrors(t *testing.T) {
	repo := newMemoryRepository()
	repo.err = fmt.Errorf("database is locked")
	r, _ := newTestReconciler(t, repo)

	_, err := r.Stats(context.Background())
	require.ErrorIs(t, err, repo.err)
}

func TestRegisterHonorsConfig(t *testing.T) {
	repo := newMemoryRepository()

	cfg := DefaultConfig()
	cfg.BackupEnabled = false
	r, err := New(repo, cfg)
	require.NoError(t, err)

	s := scheduler.New(clock.NewFake(t0), nil)
	require.NoError(t, r.Register(s))
	require.Equal(t, []string{JobPrimary}, s.Jobs())

	r, err = New(repo, DefaultConfig())
	require.NoError(t, err)
	s = scheduler.New(clock.NewFake(t0), nil)
	require.NoError(t, r.Register(s))
	require.Equal(t, []string{JobPrimary, JobBackup}, s.Jobs())
}

func TestScheduledPrimarySweepExpiresStaleRows(t *testing.T) {
	repo := newMemoryRepository()
	cfg := DefaultConfig()
	cfg.RunOnStart = false
	clk := clock.NewFake(t0)
	r, err := New(repo, cfg, WithClock(clk))
	require.NoError(t, err)

	id := repo.add(core.StatusPending, t0.Add(-28*time.Minute))

	s := scheduler.New(clk, nil)
	require.NoError(t, r.Register(s))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	clk.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return repo.get(id).Status == core.StatusExpired
	}, time.Second, 5*time.Millisecond)
}

func TestRunOnStartConvergesImmediately(t *testing.T) {
	repo := newMemoryRepository()
	clk := clock.NewFake(t0)
	r, err := New(repo, DefaultConfig(), WithClock(clk))
	require.NoError(t, err)
	id := repo.add(core.StatusPending, t0.Add(-3*time.Hour))

	s := scheduler.New(clk, nil)
	require.NoError(t, r.Register(s))
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	require.Eventually(t, func() bool {
		return repo.get(id).Status == core.StatusExpired
	}, time.Second, 5*time.Millisecond)
}
