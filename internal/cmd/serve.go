package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atlasdao/painel-sub005/internal/config"
	"github.com/atlasdao/painel-sub005/internal/core/clock"
	"github.com/atlasdao/painel-sub005/internal/core/engine"
	"github.com/atlasdao/painel-sub005/internal/core/reconciler"
	"github.com/atlasdao/painel-sub005/internal/core/scheduler"
	errwrap "github.com/atlasdao/painel-sub005/internal/errors"
	"github.com/atlasdao/painel-sub005/internal/metrics"
	"github.com/atlasdao/painel-sub005/internal/observability"
	"github.com/atlasdao/painel-sub005/internal/server"
	"github.com/atlasdao/painel-sub005/internal/server/handlers"
)

const jobCapacity = "throttle.capacity"

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway worker and HTTP server",
	Long: `Start the expiry sweeps, throttle capacity reporting and the operational HTTP server.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-validate configuration (budgets and intervals apply on restart)`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "invalid configuration")
	}

	identity := GetAppIdentity()
	namespace := identity.TelemetryNamespace()
	if err := observability.InitServerLogger(observability.ServerLogOptions{
		Service:     identity.BinaryName,
		Level:       cfg.Logging.Level,
		Environment: cfg.Logging.Environment,
		Namespace:   namespace,
		Profile:     cfg.Logging.Profile,
	}); err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "invalid logging configuration")
	}
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
	}

	logger.Info("Initializing server",
		zap.String("service", identity.BinaryName),
		zap.String("namespace", namespace),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("metrics_port", observability.GetMetricsPort()),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("stats_driver", cfg.Throttle.Stats.Driver))

	db, err := openStore(ctx, cfg)
	if err != nil {
		return errwrap.WrapDatabaseError(ctx, err, "failed to open transaction store")
	}

	stats := newStatsBackend(cfg.Throttle.Stats)

	throttle, err := newThrottle(cfg, stats, logger)
	if err != nil {
		_ = db.Close()
		return errwrap.WrapConfigInvalid(ctx, err, "invalid throttle configuration")
	}

	rec, err := newReconciler(cfg, db, logger)
	if err != nil {
		_ = db.Close()
		return errwrap.WrapConfigInvalid(ctx, err, "invalid reconciler configuration")
	}

	sched := scheduler.New(clock.Real(), logger)
	if err := rec.Register(sched); err != nil {
		_ = db.Close()
		return errwrap.WrapInternal(ctx, err, "failed to schedule expiry sweeps")
	}
	if cfg.Reconciler.CapacityInterval > 0 {
		if err := sched.Every(jobCapacity, cfg.Reconciler.CapacityInterval, capacityJob(throttle, rec), scheduler.RunOnStart()); err != nil {
			_ = db.Close()
			return errwrap.WrapInternal(ctx, err, "failed to schedule capacity reporting")
		}
	}

	var monitor *providerMonitor
	if cfg.Provider.BaseURL != "" {
		client, err := newProviderClient(cfg.Provider, throttle)
		if err != nil {
			_ = db.Close()
			return errwrap.WrapConfigInvalid(ctx, err, "invalid provider configuration")
		}
		monitor = &providerMonitor{client: client, logger: logger}
		if err := sched.Every(jobProviderPing, time.Minute, monitor.ping); err != nil {
			_ = db.Close()
			return errwrap.WrapInternal(ctx, err, "failed to schedule provider ping")
		}
	}

	hm := handlers.InitHealthManager(versionInfo.Version)
	hm.RegisterChecker("store", handlers.CheckerFunc(db.Ping))
	hm.RegisterChecker("throttle_stats", handlers.CheckerFunc(stats.Ping))
	if monitor != nil {
		hm.RegisterChecker("provider", monitor)
	}
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}
	hm.RegisterChecker("app_identity", identityHealthChecker{
		binaryName: identity.BinaryName,
		envPrefix:  identity.EnvPrefix,
		configName: identity.ConfigName,
	})

	handlers.SetAppIdentity(identity)
	srv := server.New(cfg.Server, server.Deps{
		Throttle:   throttle,
		Stats:      stats,
		Reconciler: rec,
		Admin:      cfg.Admin,
	})

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run LIFO: HTTP first, then the sweeps, then storage, then the logger.
	signals.OnShutdown(func(ctx context.Context) error {
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		if err := stats.Close(); err != nil {
			logger.Warn("Failed to close throttle stats backend", zap.Error(err))
		}
		if err := db.Close(); err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "store close failed")
		}
		logger.Info("Transaction store closed")
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		sched.Stop()
		logger.Info("Scheduler stopped")
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: re-validating configuration")
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				logger.Info("No config file found - using defaults and environment variables")
				return nil
			}
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}
		if _, err := config.Load(viper.GetViper()); err != nil {
			logger.Error("Reloaded configuration is invalid", zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}
		logger.Info("Configuration reloaded; throttle budgets and sweep intervals apply on restart",
			zap.String("file", viper.ConfigFileUsed()))
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	metrics.SetServerStartTime(time.Now().Unix())

	// Any goroutine finishing ends the run: the listener closed, or signals
	// completed the shutdown sequence.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return err
		}
		hm.MarkStarted()
		<-gctx.Done()
		sched.Stop()
		return nil
	})
	g.Go(func() error {
		defer cancel()
		if err := signals.Listen(gctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Signal handler error", zap.Error(err))
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return errwrap.WrapInternal(ctx, err, "server error")
	}
	return nil
}

// capacityJob publishes remaining throttle capacity and the pending backlog.
func capacityJob(throttle *engine.Throttle, rec *reconciler.Reconciler) scheduler.JobFunc {
	return func(ctx context.Context) {
		for _, st := range throttle.Statuses() {
			metrics.SetThrottleCapacity(st.Endpoint, st.RemainingBurst, st.RemainingDaily)
		}
		if _, err := rec.Stats(ctx); err != nil {
			observability.Server().Warn("Failed to refresh pending transaction gauges", zap.Error(err))
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
