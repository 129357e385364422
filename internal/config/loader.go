// Package config loads typed application configuration from viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/atlasdao/painel-sub005/internal/core"
	"github.com/atlasdao/painel-sub005/internal/core/engine"
)

var (
	appConfig   *Config
	configMu    sync.RWMutex
	identityMu  sync.RWMutex
	appIdentity *appidentity.Identity
)

// SetIdentity records the app identity used for XDG paths.
func SetIdentity(identity *appidentity.Identity) {
	identityMu.Lock()
	defer identityMu.Unlock()
	appIdentity = identity
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")
	v.SetDefault("logging.environment", "production")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.max_open_conns", 10)
	v.SetDefault("store.conn_max_lifetime", "30m")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)

	// Throttle defaults
	v.SetDefault("throttle.timezone", "America/Sao_Paulo")
	v.SetDefault("throttle.budgets", map[string]any{})
	v.SetDefault("throttle.budgets_file", "")
	v.SetDefault("throttle.stats.driver", "memory")
	v.SetDefault("throttle.stats.addr", "localhost:6379")
	v.SetDefault("throttle.stats.password", "")
	v.SetDefault("throttle.stats.db", 0)
	v.SetDefault("throttle.stats.prefix", "painel:throttle")
	v.SetDefault("throttle.stats.bucket_ttl", "24h")
	v.SetDefault("throttle.stats.timeout", "250ms")

	// Reconciler defaults
	v.SetDefault("reconciler.ttl_minutes", 28)
	v.SetDefault("reconciler.primary_interval", "1m")
	v.SetDefault("reconciler.backup_interval", "5m")
	v.SetDefault("reconciler.capacity_interval", "1m")
	v.SetDefault("reconciler.primary_enabled", true)
	v.SetDefault("reconciler.backup_enabled", true)
	v.SetDefault("reconciler.run_on_start", true)

	// Admin defaults
	v.SetDefault("admin.token", "")
	v.SetDefault("admin.rate_per_minute", 10)
	v.SetDefault("admin.burst", 5)

	// Provider defaults
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.timeout", "15s")
	v.SetDefault("provider.user_agent", "painel")
}

// Load decodes v into a Config, applies the budget file, and validates the result.
// It is safe to call again on reload.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if path := strings.TrimSpace(cfg.Throttle.BudgetsFile); path != "" {
		fileBudgets, err := LoadBudgetsFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Throttle.Budgets = engine.MergeBudgets(cfg.Throttle.Budgets, fileBudgets)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	for name, budget := range c.Throttle.Budgets {
		if err := budget.Validate(); err != nil {
			return fmt.Errorf("throttle.budgets.%s: %w", name, err)
		}
	}
	if c.Reconciler.TTLMinutes <= 0 {
		return fmt.Errorf("reconciler.ttl_minutes must be positive, got %d", c.Reconciler.TTLMinutes)
	}
	switch strings.ToLower(strings.TrimSpace(c.Throttle.Stats.Driver)) {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("throttle.stats.driver: unsupported driver %q", c.Throttle.Stats.Driver)
	}
	if c.Admin.Token != "" && c.Admin.RatePerMinute <= 0 {
		return fmt.Errorf("admin.rate_per_minute must be positive, got %v", c.Admin.RatePerMinute)
	}
	return nil
}

// EffectiveBudgets layers the configured budgets over the built-in defaults.
func (c *Config) EffectiveBudgets() map[string]core.EndpointBudget {
	return engine.MergeBudgets(engine.DefaultBudgets, c.Throttle.Budgets)
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "painel" if not set.
func appNamesForPaths() (configName string, binaryName string) {
	configName = "painel"
	binaryName = "painel"

	identityMu.RLock()
	identity := appIdentity
	identityMu.RUnlock()
	if identity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(identity.ConfigName) != "" {
		configName = identity.ConfigName
	}
	if strings.TrimSpace(identity.BinaryName) != "" {
		binaryName = identity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}
