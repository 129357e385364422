package output

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/atlasdao/painel-sub005/internal/core"
	"github.com/atlasdao/painel-sub005/internal/core/engine"
	"github.com/atlasdao/painel-sub005/internal/core/reconciler"
)

// TableFormatter renders views as rounded ASCII tables, or as Markdown
// tables when Markdown is set.
type TableFormatter struct {
	Markdown bool
}

var outcomeColumns = []engine.Outcome{
	engine.OutcomeExecuted,
	engine.OutcomeFailed,
	engine.OutcomeRejected,
	engine.OutcomeCancelled,
	engine.OutcomePassthrough,
}

func (f *TableFormatter) FormatStatuses(statuses []core.EndpointStatus) (string, error) {
	t := f.newWriter()
	t.AppendHeader(table.Row{"Endpoint", "Burst Left", "Burst Reset", "Daily Left", "Daily Reset"})
	for _, st := range statuses {
		t.AppendRow(table.Row{
			st.Endpoint,
			fmt.Sprintf("%d/%d", st.RemainingBurst, st.Budget.BurstLimit),
			formatOptionalTime(st.ResetAt),
			fmt.Sprintf("%d/%d", st.RemainingDaily, st.Budget.DailyLimit),
			formatTime(st.DailyResetAt),
		})
	}
	return f.render(t), nil
}

func (f *TableFormatter) FormatBudgets(budgets map[string]core.EndpointBudget) (string, error) {
	t := f.newWriter()
	t.AppendHeader(table.Row{"Endpoint", "Rate/min", "Spacing", "Burst", "Daily"})
	for _, name := range engine.SortedEndpoints(budgets) {
		b := budgets[name]
		t.AppendRow(table.Row{name, b.RatePerMinute, b.MinInterval().String(), b.BurstLimit, b.DailyLimit})
	}
	return f.render(t), nil
}

func (f *TableFormatter) FormatDecisions(counters map[string]engine.EndpointCounters) (string, error) {
	t := f.newWriter()
	header := table.Row{"Endpoint"}
	for _, outcome := range outcomeColumns {
		header = append(header, string(outcome))
	}
	header = append(header, "Waited")
	t.AppendHeader(header)

	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := counters[name]
		row := table.Row{name}
		for _, outcome := range outcomeColumns {
			row = append(row, c.Outcomes[outcome])
		}
		row = append(row, c.Waited.Round(time.Millisecond).String())
		t.AppendRow(row)
	}
	return f.render(t), nil
}

func (f *TableFormatter) FormatStats(stats reconciler.Stats) (string, error) {
	t := f.newWriter()
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Total pending", stats.TotalPending},
		{"Expired, awaiting sweep", stats.ExpiredReady},
		{"Recent pending", stats.RecentPending},
		{"Expired (all time)", stats.TotalExpiredHistorical},
		{"Cutoff", formatTime(stats.CutoffTime)},
		{"TTL", strconv.Itoa(stats.TTLMinutes) + "m"},
	})
	return f.render(t), nil
}

func (f *TableFormatter) FormatSweep(result SweepResult) (string, error) {
	t := f.newWriter()
	label := "Expired"
	if result.DryRun {
		label = "Would expire"
	}
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{label, result.Expired},
		{"Cutoff", formatTime(result.Cutoff)},
		{"Ran at", formatTime(result.RanAt)},
	})
	return f.render(t), nil
}

func (f *TableFormatter) newWriter() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

func (f *TableFormatter) render(t table.Writer) string {
	if f.Markdown {
		return t.RenderMarkdown()
	}
	return t.Render()
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format(time.RFC3339)
}

func formatOptionalTime(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return formatTime(*ts)
}
