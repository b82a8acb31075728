// Package handlers implements the HTTP handlers of the layout API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/onnwee/layout-engine/internal/apierr"
	"github.com/onnwee/layout-engine/internal/cache"
	"github.com/onnwee/layout-engine/internal/layout"
	"github.com/onnwee/layout-engine/internal/logger"
	"github.com/onnwee/layout-engine/internal/metrics"
	"github.com/onnwee/layout-engine/internal/store"
)

// Handler bundles the dependencies shared by all endpoints.
type Handler struct {
	store    store.Store
	cache    cache.Cache
	layout   *layout.Service
	cacheTTL time.Duration
}

func New(st store.Store, c cache.Cache, svc *layout.Service, cacheTTL time.Duration) *Handler {
	return &Handler{store: st, cache: c, layout: svc, cacheTTL: cacheTTL}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

// cached serves an endpoint's JSON body from the response cache, invoking
// fetch on a miss. Errors are never cached.
func (h *Handler) cached(w http.ResponseWriter, r *http.Request, endpoint, key string,
	fetch func(ctx context.Context) ([]byte, *apierr.Error)) {

	if h.cache != nil {
		if body, ok := h.cache.Get(key); ok {
			metrics.APICacheHits.WithLabelValues(endpoint).Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.Write(body)
			return
		}
		metrics.APICacheMisses.WithLabelValues(endpoint).Inc()
	}

	body, apiErr := fetch(r.Context())
	if apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}

	if h.cache != nil {
		h.cache.Set(key, body, h.cacheTTL)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.Write(body)
}
