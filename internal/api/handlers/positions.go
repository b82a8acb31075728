package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/onnwee/layout-engine/internal/apierr"
	"github.com/onnwee/layout-engine/internal/logger"
	"github.com/onnwee/layout-engine/internal/store"
)

// PositionsResponse is the payload of GET /api/positions.
type PositionsResponse struct {
	Positions []store.Position `json:"positions"`
	Count     int              `json:"count"`
}

// GetPositions returns the current computed coordinates for every
// positioned node.
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, "positions", "positions", func(ctx context.Context) ([]byte, *apierr.Error) {
		positions, err := h.store.LoadPositions(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to load positions", "error", err)
			return nil, apierr.SystemDatabase("")
		}
		if len(positions) == 0 {
			return nil, apierr.LayoutNoPositions()
		}

		body, err := json.Marshal(PositionsResponse{Positions: positions, Count: len(positions)})
		if err != nil {
			return nil, apierr.SystemInternal("")
		}
		return body, nil
	})
}
