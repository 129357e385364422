package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atlasdao/painel-sub005/internal/core"
)

// budgetsFile is the on-disk shape of throttle.budgets_file:
//
//	endpoints:
//	  deposit: {rate_per_minute: 2, burst_limit: 30, daily_limit: 2880}
type budgetsFile struct {
	Endpoints map[string]core.EndpointBudget `yaml:"endpoints"`
}

// LoadBudgetsFile reads endpoint budgets from a YAML file.
func LoadBudgetsFile(path string) (map[string]core.EndpointBudget, error) {
	// #nosec G304 -- path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read budgets file: %w", err)
	}

	var file budgetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse budgets file %s: %w", path, err)
	}
	if len(file.Endpoints) == 0 {
		return nil, fmt.Errorf("budgets file %s defines no endpoints", path)
	}

	for name, budget := range file.Endpoints {
		if err := budget.Validate(); err != nil {
			return nil, fmt.Errorf("budgets file %s: endpoint %q: %w", path, name, err)
		}
	}
	return file.Endpoints, nil
}
