package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/atlasdao/painel-sub005/internal/errors"
	"github.com/atlasdao/painel-sub005/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the configuration is valid and the transaction store and stats backend are reachable.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		if _, err := loadLocation(cfg.Throttle.Timezone); err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Throttle timezone invalid", err)
			return
		}
		logger.Info("✅ Configuration valid", zap.Int("endpoints", len(cfg.EffectiveBudgets())))

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		db, err := openStore(ctx, cfg)
		if err != nil {
			ExitWithCode(logger, foundry.ExitFailure, "Transaction store unreachable", err)
			return
		}
		defer func() { _ = db.Close() }()
		logger.Info("✅ Transaction store reachable", zap.String("driver", db.Driver()))

		stats := newStatsBackend(cfg.Throttle.Stats)
		defer func() { _ = stats.Close() }()
		if err := stats.Ping(ctx); err != nil {
			ExitWithCode(logger, foundry.ExitFailure, "Throttle stats backend unreachable", err)
			return
		}
		logger.Info("✅ Throttle stats backend reachable", zap.String("driver", cfg.Throttle.Stats.Driver))

		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
