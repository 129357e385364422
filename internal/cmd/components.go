package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atlasdao/painel-sub005/internal/config"
	"github.com/atlasdao/painel-sub005/internal/core/engine"
	"github.com/atlasdao/painel-sub005/internal/core/reconciler"
	"github.com/atlasdao/painel-sub005/internal/core/store"
	"github.com/atlasdao/painel-sub005/internal/observability"
)

// statsBackend is where throttle decisions are counted.
type statsBackend interface {
	engine.StatsRecorder
	engine.StatsReader
	Ping(ctx context.Context) error
	Close() error
}

type memoryStats struct {
	*engine.MemoryStats
}

func (memoryStats) Ping(context.Context) error { return nil }
func (memoryStats) Close() error               { return nil }

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newStatsBackend(cfg config.ThrottleStatsConfig) statsBackend {
	if strings.EqualFold(strings.TrimSpace(cfg.Driver), "redis") {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return engine.NewRedisStats(rdb,
			engine.WithRedisPrefix(cfg.Prefix),
			engine.WithRedisTTL(cfg.BucketTTL),
			engine.WithRedisTimeout(cfg.Timeout))
	}
	return memoryStats{engine.NewMemoryStats()}
}

func loadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("throttle.timezone: %w", err)
	}
	return loc, nil
}

func newThrottle(cfg *config.Config, stats engine.StatsRecorder, logger observability.Logger) (*engine.Throttle, error) {
	loc, err := loadLocation(cfg.Throttle.Timezone)
	if err != nil {
		return nil, err
	}
	throttle, err := engine.NewThrottle(cfg.EffectiveBudgets(),
		engine.WithLocation(loc),
		engine.WithLogger(logger),
		engine.WithStats(stats))
	if err != nil {
		return nil, err
	}
	logger.Debug("Throttle configured",
		zap.Strings("endpoints", throttle.Endpoints()),
		zap.String("timezone", loc.String()))
	return throttle, nil
}

func reconcilerConfig(cfg config.ReconcilerConfig) reconciler.Config {
	return reconciler.Config{
		TTL:             cfg.TTL(),
		PrimaryInterval: cfg.PrimaryInterval,
		BackupInterval:  cfg.BackupInterval,
		PrimaryEnabled:  cfg.PrimaryEnabled,
		BackupEnabled:   cfg.BackupEnabled,
		RunOnStart:      cfg.RunOnStart,
	}
}

func newReconciler(cfg *config.Config, repo reconciler.Repository, logger observability.Logger) (*reconciler.Reconciler, error) {
	return reconciler.New(repo, reconcilerConfig(cfg.Reconciler), reconciler.WithLogger(logger))
}
