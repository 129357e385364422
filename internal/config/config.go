package config

import (
	"time"

	"github.com/atlasdao/painel-sub005/internal/core"
)

// Config represents the complete application configuration.
// Values come from defaults, the optional config file, and PAINEL_* environment variables, in that order.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Health     HealthConfig     `mapstructure:"health"`
	Debug      DebugConfig      `mapstructure:"debug"`
	Throttle   ThrottleConfig   `mapstructure:"throttle"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Provider   ProviderConfig   `mapstructure:"provider"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the transaction database.
// Driver is "libsql" (local file or Turso URL) or "postgres".
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`

	// Pool limits apply to postgres. Local SQLite files always use one connection.
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Valid values: SIMPLE, STRUCTURED, ENTERPRISE
	Profile string `mapstructure:"profile"`

	// Environment is stamped on every server log record.
	Environment string `mapstructure:"environment"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// ThrottleConfig holds the outbound provider budgets.
type ThrottleConfig struct {
	// Timezone whose midnight resets daily counters. IANA name, default
	// America/Sao_Paulo; an empty value uses the process local time.
	Timezone string `mapstructure:"timezone"`

	// Budgets override the built-in defaults per endpoint.
	Budgets map[string]core.EndpointBudget `mapstructure:"budgets"`

	// BudgetsFile is an optional YAML file layered on top of Budgets.
	BudgetsFile string `mapstructure:"budgets_file"`

	Stats ThrottleStatsConfig `mapstructure:"stats"`
}

// ThrottleStatsConfig selects where throttle decisions are counted.
type ThrottleStatsConfig struct {
	// Driver is "memory" or "redis".
	Driver    string        `mapstructure:"driver"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Prefix    string        `mapstructure:"prefix"`
	BucketTTL time.Duration `mapstructure:"bucket_ttl"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// ReconcilerConfig controls the expiry sweeps.
type ReconcilerConfig struct {
	TTLMinutes       int           `mapstructure:"ttl_minutes"`
	PrimaryInterval  time.Duration `mapstructure:"primary_interval"`
	BackupInterval   time.Duration `mapstructure:"backup_interval"`
	CapacityInterval time.Duration `mapstructure:"capacity_interval"`
	PrimaryEnabled   bool          `mapstructure:"primary_enabled"`
	BackupEnabled    bool          `mapstructure:"backup_enabled"`
	RunOnStart       bool          `mapstructure:"run_on_start"`
}

// TTL returns the configured transaction lifetime.
func (c ReconcilerConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// AdminConfig protects operator-only endpoints.
// The manual sweep route is only mounted when Token is set.
type AdminConfig struct {
	Token         string  `mapstructure:"token"`
	RatePerMinute float64 `mapstructure:"rate_per_minute"`
	Burst         int     `mapstructure:"burst"`
}

// ProviderConfig points at the upstream PIX settlement API.
type ProviderConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}
