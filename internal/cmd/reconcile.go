package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlasdao/painel-sub005/internal/core/reconciler"
	"github.com/atlasdao/painel-sub005/internal/core/store"
	errwrap "github.com/atlasdao/painel-sub005/internal/errors"
	"github.com/atlasdao/painel-sub005/internal/observability"
	"github.com/atlasdao/painel-sub005/internal/output"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Inspect and run transaction expiry sweeps",
}

var reconcileRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Expire pending transactions older than the TTL once",
	Long: `Run one expiry sweep against the configured store.

With --dry-run nothing is written; the command reports how many pending
transactions are past the cutoff.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		return withReconciler(cmd, func(ctx context.Context, rec *reconciler.Reconciler) error {
			ranAt := time.Now().UTC()
			result := output.SweepResult{DryRun: dryRun, Cutoff: rec.Cutoff(), RanAt: ranAt}

			if dryRun {
				stats, err := rec.Stats(ctx)
				if err != nil {
					return errwrap.WrapDatabaseError(ctx, err, "failed to count expiry candidates")
				}
				result.Expired = int64(stats.ExpiredReady)
				result.Cutoff = stats.CutoffTime
			} else {
				expired, err := rec.ManualSweep(ctx)
				if err != nil {
					return errwrap.WrapDatabaseError(ctx, err, "expiry sweep failed")
				}
				result.Expired = expired
			}

			observability.CLILogger.Debug("Sweep finished",
				zap.Bool("dry_run", dryRun),
				zap.Int64("expired", result.Expired))
			return render(cmd, func(f output.Formatter) (string, error) { return f.FormatSweep(result) })
		})
	},
}

var reconcileStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the pending transaction backlog around the TTL cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReconciler(cmd, func(ctx context.Context, rec *reconciler.Reconciler) error {
			stats, err := rec.Stats(ctx)
			if err != nil {
				return errwrap.WrapDatabaseError(ctx, err, "failed to read pending transaction statistics")
			}
			return render(cmd, func(f output.Formatter) (string, error) { return f.FormatStats(stats) })
		})
	},
}

// withReconciler opens the store and builds a reconciler for one CLI command.
func withReconciler(cmd *cobra.Command, fn func(context.Context, *reconciler.Reconciler) error) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "invalid configuration")
	}
	if ttl, _ := cmd.Flags().GetInt("ttl-minutes"); ttl > 0 {
		cfg.Reconciler.TTLMinutes = ttl
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return errwrap.WrapDatabaseError(ctx, err, "failed to open transaction store")
	}
	defer func(db *store.Store) {
		if err := db.Close(); err != nil {
			observability.CLILogger.Warn("Failed to close store", zap.Error(err))
		}
	}(db)

	rec, err := newReconciler(cfg, db, observability.CLILogger)
	if err != nil {
		return fmt.Errorf("build reconciler: %w", err)
	}
	return fn(ctx, rec)
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.AddCommand(reconcileRunCmd, reconcileStatsCmd)

	reconcileCmd.PersistentFlags().Int("ttl-minutes", 0, "override reconciler.ttl_minutes for this run")
	reconcileRunCmd.Flags().Bool("dry-run", false, "count candidates without expiring them")
	addOutputFlags(reconcileRunCmd)
	addOutputFlags(reconcileStatsCmd)
}
