package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atlasdao/painel-sub005/internal/core"
	"github.com/atlasdao/painel-sub005/internal/core/engine"
	apperrors "github.com/atlasdao/painel-sub005/internal/errors"
)

// ThrottleView is the read side of the outbound throttle.
type ThrottleView interface {
	Status(endpoint string) (core.EndpointStatus, bool)
	Statuses() []core.EndpointStatus
}

// ThrottleHandler serves /v1/throttle.
type ThrottleHandler struct {
	throttle ThrottleView
	stats    engine.StatsReader
}

// NewThrottleHandler builds the handler. stats may be nil when decisions are
// not recorded.
func NewThrottleHandler(throttle ThrottleView, stats engine.StatsReader) *ThrottleHandler {
	return &ThrottleHandler{throttle: throttle, stats: stats}
}

type endpointListResponse struct {
	Endpoints   []core.EndpointStatus `json:"endpoints"`
	GeneratedAt time.Time             `json:"generated_at"`
}

type decisionsResponse struct {
	Endpoints   map[string]engine.EndpointCounters `json:"endpoints"`
	GeneratedAt time.Time                          `json:"generated_at"`
}

// ListEndpoints handles GET /v1/throttle/endpoints.
func (h *ThrottleHandler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	statuses := h.throttle.Statuses()
	if statuses == nil {
		statuses = []core.EndpointStatus{}
	}
	writeJSON(w, http.StatusOK, endpointListResponse{
		Endpoints:   statuses,
		GeneratedAt: time.Now().UTC(),
	})
}

// GetEndpoint handles GET /v1/throttle/endpoints/{endpoint}.
func (h *ThrottleHandler) GetEndpoint(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "endpoint")
	status, ok := h.throttle.Status(name)
	if !ok {
		envelope := apperrors.NewNotFoundError("no budget registered for endpoint")
		envelope = envelope.WithDetails(map[string]interface{}{"endpoint": name})
		respondWithError(w, r, envelope)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Decisions handles GET /v1/throttle/decisions.
func (h *ThrottleHandler) Decisions(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeJSON(w, http.StatusOK, decisionsResponse{
			Endpoints:   map[string]engine.EndpointCounters{},
			GeneratedAt: time.Now().UTC(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	counters, err := h.stats.Counters(ctx)
	if err != nil {
		respondWithError(w, r, apperrors.Wrap(r.Context(), apperrors.CodeServiceUnavailable, err, "throttle statistics backend unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, decisionsResponse{
		Endpoints:   counters,
		GeneratedAt: time.Now().UTC(),
	})
}
