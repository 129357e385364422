package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/atlasdao/painel-sub005/internal/core/reconciler"
	apperrors "github.com/atlasdao/painel-sub005/internal/errors"
)

// Sweeper is the reconciler surface exposed over HTTP.
type Sweeper interface {
	Stats(ctx context.Context) (reconciler.Stats, error)
	ManualSweep(ctx context.Context) (int64, error)
}

// ReconcilerHandler serves /v1/reconciler.
type ReconcilerHandler struct {
	reconciler Sweeper
	now        func() time.Time
}

func NewReconcilerHandler(r Sweeper) *ReconcilerHandler {
	return &ReconcilerHandler{reconciler: r, now: time.Now}
}

// SweepResponse reports the outcome of an operator-triggered sweep.
type SweepResponse struct {
	Expired int64     `json:"expired"`
	RanAt   time.Time `json:"ran_at"`
}

// Stats handles GET /v1/reconciler/stats.
func (h *ReconcilerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reconciler.Stats(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to read pending transaction statistics"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Sweep handles POST /v1/reconciler/sweep.
func (h *ReconcilerHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	ranAt := h.now().UTC()
	expired, err := h.reconciler.ManualSweep(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "expiry sweep failed"))
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Expired: expired, RanAt: ranAt})
}
