package output

import (
	"encoding/json"

	"github.com/atlasdao/painel-sub005/internal/core"
	"github.com/atlasdao/painel-sub005/internal/core/engine"
	"github.com/atlasdao/painel-sub005/internal/core/reconciler"
)

// JSONFormatter renders views as JSON documents.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatStatuses(statuses []core.EndpointStatus) (string, error) {
	if statuses == nil {
		statuses = []core.EndpointStatus{}
	}
	return f.marshal(statuses)
}

func (f *JSONFormatter) FormatBudgets(budgets map[string]core.EndpointBudget) (string, error) {
	return f.marshal(budgets)
}

func (f *JSONFormatter) FormatDecisions(counters map[string]engine.EndpointCounters) (string, error) {
	return f.marshal(counters)
}

func (f *JSONFormatter) FormatStats(stats reconciler.Stats) (string, error) {
	return f.marshal(stats)
}

func (f *JSONFormatter) FormatSweep(result SweepResult) (string, error) {
	return f.marshal(result)
}

func (f *JSONFormatter) marshal(v interface{}) (string, error) {
	var (
		data []byte
		err  error
	)
	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
