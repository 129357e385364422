package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/atlasdao/painel-sub005/internal/core"
	"github.com/atlasdao/painel-sub005/internal/core/engine"
	errwrap "github.com/atlasdao/painel-sub005/internal/errors"
	"github.com/atlasdao/painel-sub005/internal/output"
)

var throttleCmd = &cobra.Command{
	Use:   "throttle",
	Short: "Inspect outbound provider call budgets",
}

var throttleBudgetsCmd = &cobra.Command{
	Use:   "budgets",
	Short: "Show the effective per-endpoint budgets",
	Long:  "Show the built-in budgets merged with throttle.budgets and throttle.budgets_file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid configuration")
		}
		budgets := cfg.EffectiveBudgets()
		return render(cmd, func(f output.Formatter) (string, error) { return f.FormatBudgets(budgets) })
	},
}

var throttleStatusCmd = &cobra.Command{
	Use:   "status [endpoint]",
	Short: "Show remaining capacity reported by a running server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := serverURL(cmd)
		if err != nil {
			return err
		}

		var statuses []core.EndpointStatus
		if len(args) == 1 {
			var st core.EndpointStatus
			if err := getJSON(cmd.Context(), base+"/v1/throttle/endpoints/"+args[0], &st); err != nil {
				return err
			}
			statuses = append(statuses, st)
		} else {
			var resp struct {
				Endpoints []core.EndpointStatus `json:"endpoints"`
			}
			if err := getJSON(cmd.Context(), base+"/v1/throttle/endpoints", &resp); err != nil {
				return err
			}
			statuses = resp.Endpoints
		}
		return render(cmd, func(f output.Formatter) (string, error) { return f.FormatStatuses(statuses) })
	},
}

var throttleDecisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Show recorded throttle outcomes per endpoint",
	Long: `Show executed, failed, rejected, cancelled and passthrough counts.

With throttle.stats.driver=redis the counters are read from Redis directly and
cover every replica; otherwise they are fetched from a running server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid configuration")
		}

		var counters map[string]engine.EndpointCounters
		if strings.EqualFold(cfg.Throttle.Stats.Driver, "redis") {
			stats := newStatsBackend(cfg.Throttle.Stats)
			defer func() { _ = stats.Close() }()
			counters, err = stats.Counters(cmd.Context())
			if err != nil {
				return errwrap.Wrap(cmd.Context(), errwrap.CodeServiceUnavailable, err, "failed to read throttle statistics")
			}
		} else {
			base, err := serverURL(cmd)
			if err != nil {
				return err
			}
			var resp struct {
				Endpoints map[string]engine.EndpointCounters `json:"endpoints"`
			}
			if err := getJSON(cmd.Context(), base+"/v1/throttle/decisions", &resp); err != nil {
				return err
			}
			counters = resp.Endpoints
		}
		return render(cmd, func(f output.Formatter) (string, error) { return f.FormatDecisions(counters) })
	},
}

// serverURL returns --server or the configured listen address.
func serverURL(cmd *cobra.Command) (string, error) {
	if value, _ := cmd.Flags().GetString("server"); strings.TrimSpace(value) != "" {
		return strings.TrimRight(value, "/"), nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid configuration")
	}
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port)), nil
}

var statusClient = &http.Client{Timeout: 5 * time.Second}

func getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := statusClient.Do(req)
	if err != nil {
		return fmt.Errorf("query %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var body errwrap.HTTPErrorResponse
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error.Code != "" {
			return fmt.Errorf("%s: %s (%s)", url, body.Error.Message, body.Error.Code)
		}
		return fmt.Errorf("%s: unexpected status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func init() {
	rootCmd.AddCommand(throttleCmd)
	throttleCmd.AddCommand(throttleBudgetsCmd, throttleStatusCmd, throttleDecisionsCmd)

	throttleCmd.PersistentFlags().String("server", "", "base URL of a running server (default from server.host/server.port)")
	addOutputFlags(throttleBudgetsCmd)
	addOutputFlags(throttleStatusCmd)
	addOutputFlags(throttleDecisionsCmd)
}
