package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atlasdao/painel-sub005/internal/config"
	"github.com/atlasdao/painel-sub005/internal/core/engine"
	"github.com/atlasdao/painel-sub005/internal/core/reconciler"
	apperrors "github.com/atlasdao/painel-sub005/internal/errors"
)

type countingSweeper struct {
	sweeps int
}

func (c *countingSweeper) Stats(context.Context) (reconciler.Stats, error) {
	return reconciler.Stats{TTLMinutes: 28}, nil
}

func (c *countingSweeper) ManualSweep(context.Context) (int64, error) {
	c.sweeps++
	return 3, nil
}

func newTestServer(t *testing.T, admin config.AdminConfig) (*Server, *countingSweeper) {
	t.Helper()
	throttle, err := engine.NewThrottle(engine.DefaultBudgets)
	require.NoError(t, err)
	sweeper := &countingSweeper{}
	srv := New(config.ServerConfig{Host: "127.0.0.1"}, Deps{
		Throttle:   throttle,
		Stats:      engine.NewMemoryStats(),
		Reconciler: sweeper,
		Admin:      admin,
	})
	return srv, sweeper
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv, _ := newTestServer(t, config.AdminConfig{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "NOT_FOUND", body.Error.Code)
	require.NotEmpty(t, body.Error.RequestID)
}

func TestServerMountsThrottleAndReconcilerRoutes(t *testing.T) {
	srv, _ := newTestServer(t, config.AdminConfig{})

	require.Equal(t, http.StatusOK, serve(srv, httptest.NewRequest(http.MethodGet, "/v1/throttle/endpoints", nil)).Code)
	require.Equal(t, http.StatusOK, serve(srv, httptest.NewRequest(http.MethodGet, "/v1/throttle/endpoints/withdraw", nil)).Code)
	require.Equal(t, http.StatusOK, serve(srv, httptest.NewRequest(http.MethodGet, "/v1/throttle/decisions", nil)).Code)
	require.Equal(t, http.StatusOK, serve(srv, httptest.NewRequest(http.MethodGet, "/v1/reconciler/stats", nil)).Code)
}

func TestSweepRouteAbsentWithoutAdminToken(t *testing.T) {
	srv, sweeper := newTestServer(t, config.AdminConfig{})

	rec := serve(srv, httptest.NewRequest(http.MethodPost, "/v1/reconciler/sweep", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Zero(t, sweeper.sweeps)
}

func TestSweepRouteRequiresBearerToken(t *testing.T) {
	srv, sweeper := newTestServer(t, config.AdminConfig{Token: "s3cret", RatePerMinute: 60, Burst: 5})

	rec := serve(srv, httptest.NewRequest(http.MethodPost, "/v1/reconciler/sweep", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, sweeper.sweeps)

	req := httptest.NewRequest(http.MethodPost, "/v1/reconciler/sweep", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = serve(srv, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, sweeper.sweeps)

	var body struct {
		Expired int64 `json:"expired"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, int64(3), body.Expired)
}

func TestSweepRouteIsRateLimited(t *testing.T) {
	srv, sweeper := newTestServer(t, config.AdminConfig{Token: "s3cret", RatePerMinute: 1, Burst: 1})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/v1/reconciler/sweep", nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		return serve(srv, req).Code
	}

	require.Equal(t, http.StatusOK, send())
	require.Equal(t, http.StatusTooManyRequests, send())
	require.Equal(t, 1, sweeper.sweeps)
}

func TestServerWithoutDepsSkipsDomainRoutes(t *testing.T) {
	srv := New(config.ServerConfig{}, Deps{})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/v1/throttle/endpoints", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
