package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/atlasdao/painel-sub005/internal/metrics"
)

// Check results reported per dependency.
const (
	checkHealthy   = "healthy"
	checkUnhealthy = "unhealthy"
	checkTimeout   = "timeout"
	checkDegraded  = "degraded"
)

// HealthResponse is the aggregate health payload.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse is returned by the kubernetes-style probes.
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker is implemented by dependencies the gateway cannot serve without
// (transaction store, redis stats backend).
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a ping function to HealthChecker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

type probe struct {
	name    string
	timeout time.Duration
	message string
}

var (
	probeAggregate = probe{name: "aggregate", timeout: 5 * time.Second, message: "aggregate health check failed"}
	probeLive      = probe{name: "live", timeout: 2 * time.Second, message: "liveness probe failed"}
	probeReady     = probe{name: "ready", timeout: 5 * time.Second, message: "readiness probe failed"}
	probeStartup   = probe{name: "startup", timeout: 3 * time.Second, message: "startup probe failed"}
)

// HealthManager runs dependency checks for the health endpoints.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	version  string
	started  atomic.Bool
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		version:  version,
	}
}

func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	if checker == nil {
		return
	}
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// MarkStarted flips the startup probe to healthy once background jobs run.
func (hm *HealthManager) MarkStarted() {
	hm.started.Store(true)
}

// runHealthChecks runs every checker concurrently under ctx. A checker still
// running when ctx ends is reported as timed out.
func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]string {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checkers))
	for name := range hm.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	checkers := make([]HealthChecker, len(names))
	for i, name := range names {
		checkers[i] = hm.checkers[name]
	}
	hm.mu.RUnlock()

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started := time.Now()
			done := make(chan error, 1)
			go func() { done <- checkers[i].CheckHealth(ctx) }()
			select {
			case <-ctx.Done():
				results[i] = checkTimeout
			case err := <-done:
				if err != nil {
					results[i] = checkUnhealthy
				} else {
					results[i] = checkHealthy
				}
			}
			metrics.RecordHealthCheck(names[i], results[i] == checkHealthy, time.Since(started))
		}(i)
	}
	wg.Wait()

	checks := make(map[string]string, len(names))
	for i, name := range names {
		checks[name] = results[i]
	}
	return checks
}

func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	degraded := false
	for _, status := range checks {
		if status == checkUnhealthy {
			return checkUnhealthy
		}
		if status == checkDegraded || status == checkTimeout {
			degraded = true
		}
	}
	if degraded {
		return checkDegraded
	}
	return checkHealthy
}

func (hm *HealthManager) evaluate(ctx context.Context, p probe) (string, map[string]string) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	checks := hm.runHealthChecks(checkCtx)
	return hm.determineOverallStatus(checks), checks
}

func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status, checks := hm.evaluate(r.Context(), probeAggregate)
	if status == checkUnhealthy {
		respondWithError(w, r, probeFailure(probeAggregate, status, checks))
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// LivenessHandler only reports that the process is serving requests.
// Dependency failures belong to readiness.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ProbeResponse{Status: checkHealthy, Timestamp: time.Now().UTC()})
}

func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probeHandler(w, r, probeReady)
}

func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	if !hm.started.Load() {
		respondWithError(w, r, probeFailure(probeStartup, "starting", nil))
		return
	}
	hm.probeHandler(w, r, probeStartup)
}

func (hm *HealthManager) probeHandler(w http.ResponseWriter, r *http.Request, p probe) {
	status, checks := hm.evaluate(r.Context(), p)
	if status == checkUnhealthy {
		respondWithError(w, r, probeFailure(p, status, checks))
		return
	}
	writeJSON(w, http.StatusOK, ProbeResponse{Status: status, Timestamp: time.Now().UTC()})
}

func probeFailure(p probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", p.message)
	return enrichHealthEnvelope(envelope, p.name, status, checks)
}

func enrichHealthEnvelope(envelope *errors.ErrorEnvelope, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	details := map[string]interface{}{"status": status, "probe": probe}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	envelope = envelope.WithDetails(details)

	contextData := map[string]interface{}{"status": status, "probe": probe}
	var failing []string
	for name, result := range checks {
		if result != checkHealthy {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		contextData["unhealthy_checks"] = failing
	}

	envelope, _ = envelope.WithContext(contextData)
	return envelope
}

var globalHealthManager *HealthManager

// InitHealthManager installs the process-wide manager used by the package-level handlers.
func InitHealthManager(version string) *HealthManager {
	globalHealthManager = NewHealthManager(version)
	return globalHealthManager
}

func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func withGlobalManager(p probe, serve func(*HealthManager, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if globalHealthManager == nil {
			envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "health manager not initialized")
			respondWithError(w, r, enrichHealthEnvelope(envelope, p.name, "unknown", nil))
			return
		}
		serve(globalHealthManager, w, r)
	}
}

var (
	HealthHandler    = withGlobalManager(probeAggregate, (*HealthManager).HealthHandler)
	LivenessHandler  = withGlobalManager(probeLive, (*HealthManager).LivenessHandler)
	ReadinessHandler = withGlobalManager(probeReady, (*HealthManager).ReadinessHandler)
	StartupHandler   = withGlobalManager(probeStartup, (*HealthManager).StartupHandler)
)
