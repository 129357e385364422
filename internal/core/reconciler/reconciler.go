// Package reconciler expires PENDING transactions that outlived their TTL.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atlasdao/painel-sub005/internal/core"
	"github.com/atlasdao/painel-sub005/internal/core/clock"
	"github.com/atlasdao/painel-sub005/internal/core/scheduler"
	"github.com/atlasdao/painel-sub005/internal/metrics"
	"github.com/atlasdao/painel-sub005/internal/observability"
)

// ExpiredReason is stored in error_message of every expired transaction.
const ExpiredReason = "Transaction expired after TTL"

// candidateLogLimit caps the rows read before a sweep for logging.
const candidateLogLimit = 20

const (
	JobPrimary = "reconciler.primary"
	JobBackup  = "reconciler.backup"
)

// Repository is the persistence the reconciler depends on.
//
// ExpirePendingOlderThan must be a single conditional update so that
// concurrent sweeps never transition or count the same row twice.
type Repository interface {
	CountPending(ctx context.Context, filter core.PendingFilter) (int, error)
	CountByStatus(ctx context.Context, status core.TransactionStatus) (int, error)
	FindPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]core.Transaction, error)
	ExpirePendingOlderThan(ctx context.Context, cutoff time.Time, reason string, now time.Time) (int64, error)
}

// Config controls the TTL and sweep cadence.
type Config struct {
	TTL             time.Duration
	PrimaryInterval time.Duration
	BackupInterval  time.Duration
	PrimaryEnabled  bool
	BackupEnabled   bool
	RunOnStart      bool
}

// DefaultConfig matches the PIX charge lifetime at the provider.
func DefaultConfig() Config {
	return Config{
		TTL:             28 * time.Minute,
		PrimaryInterval: time.Minute,
		BackupInterval:  5 * time.Minute,
		PrimaryEnabled:  true,
		BackupEnabled:   true,
		RunOnStart:      true,
	}
}

func (c Config) validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", c.TTL)
	}
	if c.PrimaryEnabled && c.PrimaryInterval <= 0 {
		return fmt.Errorf("primary interval must be positive, got %s", c.PrimaryInterval)
	}
	if c.BackupEnabled && c.BackupInterval <= 0 {
		return fmt.Errorf("backup interval must be positive, got %s", c.BackupInterval)
	}
	return nil
}

// Stats is a read-only snapshot of the pending backlog.
type Stats struct {
	TotalPending           int       `json:"total_pending"`
	ExpiredReady           int       `json:"expired_ready"`
	RecentPending          int       `json:"recent_pending"`
	TotalExpiredHistorical int       `json:"total_expired_historical"`
	CutoffTime             time.Time `json:"cutoff_time"`
	TTLMinutes             int       `json:"ttl_minutes"`
}

// Reconciler runs expiry sweeps against a Repository.
type Reconciler struct {
	repo   Repository
	cfg    Config
	clock  clock.Clock
	logger observability.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(r *Reconciler) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *Reconciler) { r.logger = observability.OrNop(logger) }
}

// New validates cfg and returns a Reconciler.
func New(repo Repository, cfg Config, opts ...Option) (*Reconciler, error) {
	if repo == nil {
		return nil, fmt.Errorf("reconciler repository is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := &Reconciler{
		repo:   repo,
		cfg:    cfg,
		clock:  clock.Real(),
		logger: observability.OrNop(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the effective configuration.
func (r *Reconciler) Config() Config { return r.cfg }

// Cutoff is the creation time before which a PENDING transaction is expired.
func (r *Reconciler) Cutoff() time.Time {
	return r.clock.Now().Add(-r.cfg.TTL)
}

// PrimarySweep is the scheduled sweep. Failures are logged and reported as zero.
func (r *Reconciler) PrimarySweep(ctx context.Context) int64 {
	expired, err := r.sweep(ctx, "primary", true)
	if err != nil {
		r.logger.Error("Primary expiry sweep failed", zap.Error(err))
		return 0
	}
	return expired
}

// BackupSweep catches anything the primary sweep missed. Any work it finds is
// an anomaly worth a warning.
func (r *Reconciler) BackupSweep(ctx context.Context) int64 {
	expired, err := r.sweep(ctx, "backup", false)
	if err != nil {
		r.logger.Error("Backup expiry sweep failed", zap.Error(err))
		return 0
	}
	if expired > 0 {
		r.logger.Warn("Backup sweep expired transactions missed by the primary sweep",
			zap.Int64("expired", expired),
			zap.Int("ttl_minutes", r.ttlMinutes()))
		metrics.RecordSweepAnomaly(expired)
	}
	return expired
}

// ManualSweep runs a sweep on operator request and returns persistence errors.
func (r *Reconciler) ManualSweep(ctx context.Context) (int64, error) {
	return r.sweep(ctx, "manual", true)
}

// Stats counts the pending backlog around the current cutoff.
func (r *Reconciler) Stats(ctx context.Context) (Stats, error) {
	cutoff := r.Cutoff()
	stats := Stats{CutoffTime: cutoff, TTLMinutes: r.ttlMinutes()}

	var err error
	if stats.TotalPending, err = r.repo.CountPending(ctx, core.PendingFilter{}); err != nil {
		return Stats{}, fmt.Errorf("count pending transactions: %w", err)
	}
	if stats.ExpiredReady, err = r.repo.CountPending(ctx, core.PendingFilter{CreatedBefore: cutoff}); err != nil {
		return Stats{}, fmt.Errorf("count expired-ready transactions: %w", err)
	}
	if stats.RecentPending, err = r.repo.CountPending(ctx, core.PendingFilter{CreatedAtOrAfter: cutoff}); err != nil {
		return Stats{}, fmt.Errorf("count recent pending transactions: %w", err)
	}
	if stats.TotalExpiredHistorical, err = r.repo.CountByStatus(ctx, core.StatusExpired); err != nil {
		return Stats{}, fmt.Errorf("count expired transactions: %w", err)
	}

	metrics.SetPendingTransactions(stats.ExpiredReady, stats.RecentPending)
	return stats, nil
}

// Register adds the enabled sweeps to s.
func (r *Reconciler) Register(s *scheduler.Scheduler) error {
	if r.cfg.PrimaryEnabled {
		var opts []scheduler.JobOption
		if r.cfg.RunOnStart {
			opts = append(opts, scheduler.RunOnStart())
		}
		if err := s.Every(JobPrimary, r.cfg.PrimaryInterval, func(ctx context.Context) { r.PrimarySweep(ctx) }, opts...); err != nil {
			return err
		}
	}
	if r.cfg.BackupEnabled {
		if err := s.Every(JobBackup, r.cfg.BackupInterval, func(ctx context.Context) { r.BackupSweep(ctx) }); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) sweep(ctx context.Context, kind string, logCandidates bool) (int64, error) {
	started := r.clock.Now()
	cutoff := started.Add(-r.cfg.TTL)

	if logCandidates {
		r.logCandidates(ctx, kind, cutoff, started)
	}

	expired, err := r.repo.ExpirePendingOlderThan(ctx, cutoff, ExpiredReason, started)
	if err != nil {
		metrics.RecordSweepError(kind)
		return 0, fmt.Errorf("expire pending transactions: %w", err)
	}

	metrics.RecordSweep(kind, expired, r.clock.Now().Sub(started))
	if expired > 0 {
		r.logger.Info("Expired stale pending transactions",
			zap.String("sweep", kind),
			zap.Int64("expired", expired),
			zap.Time("cutoff", cutoff))
	} else {
		r.logger.Debug("Expiry sweep found nothing to do", zap.String("sweep", kind))
	}
	return expired, nil
}

// logCandidates lists what the sweep is about to expire. The rows may already
// have moved on by the time the update runs.
func (r *Reconciler) logCandidates(ctx context.Context, kind string, cutoff, now time.Time) {
	candidates, err := r.repo.FindPendingOlderThan(ctx, cutoff, candidateLogLimit)
	if err != nil {
		r.logger.Warn("Failed to list expiry candidates",
			zap.String("sweep", kind),
			zap.Error(err))
		return
	}
	for _, tx := range candidates {
		r.logger.Debug("Expiry candidate",
			zap.String("sweep", kind),
			zap.String("id", tx.ID),
			zap.String("type", string(tx.Type)),
			zap.Duration("age", tx.Age(now)))
	}
}

func (r *Reconciler) ttlMinutes() int {
	return int(r.cfg.TTL / time.Minute)
}
