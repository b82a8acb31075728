package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/onnwee/layout-engine/internal/apierr"
	"github.com/onnwee/layout-engine/internal/logger"
	"github.com/onnwee/layout-engine/internal/store"
)

// maxNodesCap bounds the ?max_nodes query parameter.
const maxNodesCap = 100000

// GraphResponse is the payload of GET /api/graph.
type GraphResponse struct {
	Nodes []store.Node `json:"nodes"`
	Links []store.Link `json:"links"`
}

// GetGraph returns the graph with current positions. ?max_nodes caps the
// node count, keeping the highest-weight nodes.
func (h *Handler) GetGraph(w http.ResponseWriter, r *http.Request) {
	maxNodes := 0
	if raw := r.URL.Query().Get("max_nodes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxNodesCap {
			apierr.WriteErrorWithContext(w, r, apierr.GraphInvalidParams(
				fmt.Sprintf("max_nodes must be an integer between 1 and %d", maxNodesCap)))
			return
		}
		maxNodes = n
	}

	key := fmt.Sprintf("graph:%d", maxNodes)
	h.cached(w, r, "graph", key, func(ctx context.Context) ([]byte, *apierr.Error) {
		graph, err := h.store.LoadGraph(ctx, maxNodes)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to load graph", "error", err)
			return nil, apierr.GraphQueryFailed("")
		}
		if len(graph.Nodes) == 0 {
			return nil, apierr.GraphNoData()
		}

		body, err := json.Marshal(GraphResponse{Nodes: graph.Nodes, Links: graph.Links})
		if err != nil {
			return nil, apierr.SystemInternal("")
		}
		return body, nil
	})
}
