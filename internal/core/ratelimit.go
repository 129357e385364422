package core

import (
	"fmt"
	"time"
)

// EndpointBudget is the static call budget for one upstream provider endpoint.
type EndpointBudget struct {
	RatePerMinute int `json:"rate_per_minute" yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
	BurstLimit    int `json:"burst_limit" yaml:"burst_limit" mapstructure:"burst_limit"`
	DailyLimit    int `json:"daily_limit" yaml:"daily_limit" mapstructure:"daily_limit"`
}

// Validate rejects budgets that could never admit a call.
func (b EndpointBudget) Validate() error {
	if b.RatePerMinute <= 0 {
		return fmt.Errorf("rate_per_minute must be positive, got %d", b.RatePerMinute)
	}
	if b.BurstLimit <= 0 {
		return fmt.Errorf("burst_limit must be positive, got %d", b.BurstLimit)
	}
	if b.DailyLimit <= 0 {
		return fmt.Errorf("daily_limit must be positive, got %d", b.DailyLimit)
	}
	return nil
}

// MinInterval is the spacing enforced between two accepted calls.
func (b EndpointBudget) MinInterval() time.Duration {
	if b.RatePerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(b.RatePerMinute)
}

// EndpointStatus is a read-only view of an endpoint's remaining capacity.
type EndpointStatus struct {
	Endpoint       string         `json:"endpoint"`
	RemainingBurst int            `json:"remaining_burst"`
	ResetAt        *time.Time     `json:"reset_at,omitempty"`
	RemainingDaily int            `json:"remaining_daily"`
	DailyResetAt   time.Time      `json:"daily_reset_at"`
	Budget         EndpointBudget `json:"budget"`
}
