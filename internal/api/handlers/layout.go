package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/onnwee/layout-engine/internal/apierr"
	"github.com/onnwee/layout-engine/internal/layout"
	"github.com/onnwee/layout-engine/internal/logger"
	"github.com/onnwee/layout-engine/internal/store"
)

// LayoutStatusResponse is the payload of GET /api/layout/status.
type LayoutStatusResponse struct {
	Running bool             `json:"running"`
	LastRun *store.LayoutRun `json:"last_run,omitempty"`
}

// RunLayout starts a layout run in the background. It answers 202 when the
// run was started and 409 when one is already active.
func (h *Handler) RunLayout(w http.ResponseWriter, r *http.Request) {
	// Detach from the request so the run survives the response.
	ctx := context.WithoutCancel(r.Context())
	if err := h.layout.RunAsync(ctx); err != nil {
		if errors.Is(err, layout.ErrBusy) {
			apierr.WriteErrorWithContext(w, r, apierr.LayoutBusy())
			return
		}
		logger.ErrorContext(r.Context(), "Failed to start layout run", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.LayoutRunFailed(""))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// GetLayoutStatus reports whether a run is active and the latest run record.
func (h *Handler) GetLayoutStatus(w http.ResponseWriter, r *http.Request) {
	resp := LayoutStatusResponse{Running: h.layout.Running()}

	run, err := h.store.LatestLayoutRun(r.Context())
	switch {
	case err == nil:
		resp.LastRun = run
	case errors.Is(err, store.ErrNoRows):
	default:
		logger.ErrorContext(r.Context(), "Failed to load latest layout run", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemDatabase(""))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
