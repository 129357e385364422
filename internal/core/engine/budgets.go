package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/atlasdao/painel-sub005/internal/core"
)

// DefaultBudgets are the per-endpoint ceilings agreed with the PIX settlement provider.
var DefaultBudgets = map[string]core.EndpointBudget{
	"deposit":            {RatePerMinute: 2, BurstLimit: 30, DailyLimit: 2880},
	"withdraw":           {RatePerMinute: 2, BurstLimit: 30, DailyLimit: 2880},
	"transaction-status": {RatePerMinute: 30, BurstLimit: 60, DailyLimit: 43200},
	"balance":            {RatePerMinute: 6, BurstLimit: 10, DailyLimit: 8640},
	"ping":               {RatePerMinute: 1, BurstLimit: 1, DailyLimit: 1440},
}

// MergeBudgets layers overrides on top of base. Endpoint names are trimmed and lower-cased.
func MergeBudgets(base map[string]core.EndpointBudget, overrides ...map[string]core.EndpointBudget) map[string]core.EndpointBudget {
	merged := make(map[string]core.EndpointBudget, len(base))
	for name, budget := range base {
		merged[normalizeEndpoint(name)] = budget
	}
	for _, layer := range overrides {
		for name, budget := range layer {
			key := normalizeEndpoint(name)
			if key == "" {
				continue
			}
			merged[key] = budget
		}
	}
	return merged
}

// SortedEndpoints returns the budget keys in lexical order.
func SortedEndpoints(budgets map[string]core.EndpointBudget) []string {
	names := make([]string, 0, len(budgets))
	for name := range budgets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validateBudgets(budgets map[string]core.EndpointBudget) error {
	for _, name := range SortedEndpoints(budgets) {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("endpoint name is required")
		}
		if err := budgets[name].Validate(); err != nil {
			return fmt.Errorf("endpoint %q: %w", name, err)
		}
	}
	return nil
}

func normalizeEndpoint(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
