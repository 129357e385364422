package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlasdao/painel-sub005/internal/config"
	"github.com/atlasdao/painel-sub005/internal/core/engine"
	errwrap "github.com/atlasdao/painel-sub005/internal/errors"
	"github.com/atlasdao/painel-sub005/internal/observability"
	"github.com/atlasdao/painel-sub005/internal/provider"
)

const jobProviderPing = "provider.ping"

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Talk to the upstream PIX provider",
}

var providerPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Call the provider ping endpoint through the throttle",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "invalid configuration")
		}

		throttle, err := newThrottle(cfg, engine.NopStats{}, observability.CLILogger)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "invalid throttle configuration")
		}
		client, err := newProviderClient(cfg.Provider, throttle)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "invalid provider configuration")
		}

		result, err := client.Ping(ctx)
		if err != nil {
			return errwrap.WrapProviderCall(ctx, err, "provider ping failed")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", result.Status, result.Latency.Round(time.Millisecond))
		return nil
	},
}

func newProviderClient(cfg config.ProviderConfig, throttle *engine.Throttle) (*provider.Client, error) {
	return provider.NewClient(provider.Options{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
		Throttle:  throttle,
	})
}

// providerMonitor pings the provider on a schedule and serves the last
// outcome as a health check, so probes never spend provider budget.
type providerMonitor struct {
	client *provider.Client
	logger observability.Logger

	mu      sync.Mutex
	lastErr error
	checked bool
}

func (m *providerMonitor) ping(ctx context.Context) {
	result, err := m.client.Ping(ctx)

	m.mu.Lock()
	m.lastErr, m.checked = err, true
	m.mu.Unlock()

	switch {
	case errors.Is(err, engine.ErrDailyLimitExceeded):
		m.logger.Warn("Provider ping skipped, daily budget spent", zap.Error(err))
	case err != nil:
		m.logger.Warn("Provider ping failed", zap.Error(err))
	default:
		m.logger.Debug("Provider ping", zap.String("status", result.Status), zap.Duration("latency", result.Latency))
	}
}

func (m *providerMonitor) CheckHealth(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.checked || errors.Is(m.lastErr, engine.ErrDailyLimitExceeded) {
		return nil
	}
	return m.lastErr
}

func init() {
	rootCmd.AddCommand(providerCmd)
	providerCmd.AddCommand(providerPingCmd)
}
