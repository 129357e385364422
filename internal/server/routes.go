package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atlasdao/painel-sub005/internal/observability"
	"github.com/atlasdao/painel-sub005/internal/server/handlers"
	servermw "github.com/atlasdao/painel-sub005/internal/server/middleware"
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	s.router.Route("/v1", func(r chi.Router) {
		if s.deps.Throttle != nil {
			th := handlers.NewThrottleHandler(s.deps.Throttle, s.deps.Stats)
			r.Get("/throttle/endpoints", th.ListEndpoints)
			r.Get("/throttle/endpoints/{endpoint}", th.GetEndpoint)
			r.Get("/throttle/decisions", th.Decisions)
		}
		if s.deps.Reconciler != nil {
			rh := handlers.NewReconcilerHandler(s.deps.Reconciler)
			r.Get("/reconciler/stats", rh.Stats)
			s.registerSweepEndpoint(r, rh)
		}
	})

	s.registerAdminEndpoint()
}

// registerSweepEndpoint mounts the manual sweep behind the admin token.
func (s *Server) registerSweepEndpoint(r chi.Router, rh *handlers.ReconcilerHandler) {
	admin := s.deps.Admin
	if admin.Token == "" {
		observability.Server().Debug("Manual sweep endpoint disabled (no admin token set)")
		return
	}

	r.With(
		servermw.BearerToken(admin.Token),
		servermw.RateLimit(admin.RatePerMinute, admin.Burst),
	).Post("/reconciler/sweep", rh.Sweep)

	observability.Server().Info("Manual sweep endpoint enabled",
		zap.String("path", "/v1/reconciler/sweep"),
		zap.Float64("rate_per_minute", admin.RatePerMinute),
		zap.Int("burst", admin.Burst))
}

// registerAdminEndpoint exposes the gofulmen signal handler so operators can
// trigger reload or shutdown over HTTP.
func (s *Server) registerAdminEndpoint() {
	token := s.deps.Admin.Token
	if token == "" {
		observability.Server().Debug("Admin signal endpoint disabled (no admin token set)")
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: token,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	observability.Server().Info("Admin signal endpoint enabled",
		zap.String("path", "/admin/signal"),
		zap.String("rate_limit", "10/min, burst 5"))
	observability.Server().Warn("Admin endpoints enabled - ensure this server is not exposed to public internet")
}
