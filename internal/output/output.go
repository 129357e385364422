// Package output renders throttle and reconciler views for the CLI.
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/atlasdao/painel-sub005/internal/core"
	"github.com/atlasdao/painel-sub005/internal/core/engine"
	"github.com/atlasdao/painel-sub005/internal/core/reconciler"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// SweepResult is what `reconcile run` reports.
type SweepResult struct {
	Expired int64     `json:"expired"`
	DryRun  bool      `json:"dry_run"`
	Cutoff  time.Time `json:"cutoff_time"`
	RanAt   time.Time `json:"ran_at"`
}

// Formatter renders each CLI view.
type Formatter interface {
	FormatStatuses(statuses []core.EndpointStatus) (string, error)
	FormatBudgets(budgets map[string]core.EndpointBudget) (string, error)
	FormatDecisions(counters map[string]engine.EndpointCounters) (string, error)
	FormatStats(stats reconciler.Stats) (string, error)
	FormatSweep(result SweepResult) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &TableFormatter{Markdown: true}
	default:
		return &TableFormatter{}
	}
}
