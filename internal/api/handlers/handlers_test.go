package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/layout-engine/internal/cache"
	"github.com/onnwee/layout-engine/internal/layout"
	"github.com/onnwee/layout-engine/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	graph     *store.Graph
	positions []store.Position
	runs      []store.LayoutRun
	pingErr   error

	blockLoad chan struct{}
}

func (f *fakeStore) LoadGraph(ctx context.Context, maxNodes int) (*store.Graph, error) {
	if f.blockLoad != nil {
		<-f.blockLoad
	}
	g := &store.Graph{}
	if f.graph != nil {
		g.Nodes = append(g.Nodes, f.graph.Nodes...)
		g.Links = append(g.Links, f.graph.Links...)
	}
	if maxNodes > 0 && len(g.Nodes) > maxNodes {
		g.Nodes = g.Nodes[:maxNodes]
	}
	return g, nil
}

func (f *fakeStore) LoadPositions(ctx context.Context) ([]store.Position, error) {
	return f.positions, nil
}

func (f *fakeStore) SavePositions(ctx context.Context, positions []store.Position, batchSize int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = positions
	return len(positions), nil
}

func (f *fakeStore) RecordLayoutRun(ctx context.Context, run store.LayoutRun) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return int64(len(f.runs)), nil
}

func (f *fakeStore) LatestLayoutRun(ctx context.Context) (*store.LayoutRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return nil, store.ErrNoRows
	}
	run := f.runs[len(f.runs)-1]
	return &run, nil
}

func (f *fakeStore) CountNodes(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakeStore) CountLinks(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakeStore) Ping(ctx context.Context) error                { return f.pingErr }
func (f *fakeStore) Close() error                                  { return nil }

func newTestHandler(fs *fakeStore) *Handler {
	params := layout.Params{Iterations: 5}
	params.Engine.Seed = 7
	svc := layout.NewService(fs, params)
	return New(fs, cache.NewMockCache(), svc, time.Minute)
}

func decodeError(t *testing.T, body *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	return resp.Error.Code
}

func TestGetPositions(t *testing.T) {
	fs := &fakeStore{positions: []store.Position{
		{ID: "a", X: 1, Y: 2},
		{ID: "b", X: -3, Y: 4},
	}}
	h := newTestHandler(fs)

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rr := httptest.NewRecorder()
	h.GetPositions(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp PositionsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || len(resp.Positions) != 2 {
		t.Errorf("got %d positions, want 2", resp.Count)
	}
	if rr.Header().Get("X-Cache") != "MISS" {
		t.Errorf("first request X-Cache = %q, want MISS", rr.Header().Get("X-Cache"))
	}

	// Second request is served from the response cache
	rr2 := httptest.NewRecorder()
	h.GetPositions(rr2, httptest.NewRequest(http.MethodGet, "/api/positions", nil))
	if rr2.Header().Get("X-Cache") != "HIT" {
		t.Errorf("second request X-Cache = %q, want HIT", rr2.Header().Get("X-Cache"))
	}
}

func TestGetPositionsEmpty(t *testing.T) {
	h := newTestHandler(&fakeStore{})

	rr := httptest.NewRecorder()
	h.GetPositions(rr, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	if code := decodeError(t, rr); code != "LAYOUT_NO_POSITIONS" {
		t.Errorf("error code = %q, want LAYOUT_NO_POSITIONS", code)
	}
}

func TestGetGraph(t *testing.T) {
	fs := &fakeStore{graph: &store.Graph{
		Nodes: []store.Node{{ID: "a", Val: 2}, {ID: "b", Val: 1}},
		Links: []store.Link{{Source: "a", Target: "b"}},
	}}
	h := newTestHandler(fs)

	rr := httptest.NewRecorder()
	h.GetGraph(rr, httptest.NewRequest(http.MethodGet, "/api/graph", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp GraphResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Nodes) != 2 || len(resp.Links) != 1 {
		t.Errorf("got %d nodes / %d links, want 2 / 1", len(resp.Nodes), len(resp.Links))
	}
}

func TestGetGraphInvalidMaxNodes(t *testing.T) {
	h := newTestHandler(&fakeStore{})

	for _, raw := range []string{"abc", "-5", "0", "999999999"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/graph?max_nodes="+raw, nil)
		h.GetGraph(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("max_nodes=%s: status = %d, want 400", raw, rr.Code)
		}
	}
}

func TestGetGraphMaxNodesCap(t *testing.T) {
	fs := &fakeStore{graph: &store.Graph{
		Nodes: []store.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}}
	h := newTestHandler(fs)

	rr := httptest.NewRecorder()
	h.GetGraph(rr, httptest.NewRequest(http.MethodGet, "/api/graph?max_nodes=2", nil))

	var resp GraphResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Nodes) != 2 {
		t.Errorf("got %d nodes, want 2", len(resp.Nodes))
	}
}

func TestRunLayoutConflictWhileRunning(t *testing.T) {
	fs := &fakeStore{
		graph:     &store.Graph{Nodes: []store.Node{{ID: "a"}, {ID: "b"}}},
		blockLoad: make(chan struct{}),
	}
	h := newTestHandler(fs)

	rr := httptest.NewRecorder()
	h.RunLayout(rr, httptest.NewRequest(http.MethodPost, "/api/layout/run", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("first run status = %d, want 202", rr.Code)
	}

	rr2 := httptest.NewRecorder()
	h.RunLayout(rr2, httptest.NewRequest(http.MethodPost, "/api/layout/run", nil))
	if rr2.Code != http.StatusConflict {
		t.Fatalf("second run status = %d, want 409", rr2.Code)
	}
	if code := decodeError(t, rr2); code != "LAYOUT_BUSY" {
		t.Errorf("error code = %q, want LAYOUT_BUSY", code)
	}

	close(fs.blockLoad)
	deadline := time.Now().Add(2 * time.Second)
	for h.layout.Running() {
		if time.Now().After(deadline) {
			t.Fatal("background run did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGetLayoutStatus(t *testing.T) {
	fs := &fakeStore{}
	h := newTestHandler(fs)

	rr := httptest.NewRecorder()
	h.GetLayoutStatus(rr, httptest.NewRequest(http.MethodGet, "/api/layout/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp LayoutStatusResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Running || resp.LastRun != nil {
		t.Errorf("fresh service: got running=%v last_run=%v", resp.Running, resp.LastRun)
	}

	fs.RecordLayoutRun(context.Background(), store.LayoutRun{
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
		Status:     store.RunSucceeded,
	})

	rr2 := httptest.NewRecorder()
	h.GetLayoutStatus(rr2, httptest.NewRequest(http.MethodGet, "/api/layout/status", nil))
	var resp2 LayoutStatusResponse
	if err := json.NewDecoder(rr2.Body).Decode(&resp2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp2.LastRun == nil || resp2.LastRun.Status != store.RunSucceeded {
		t.Errorf("last_run = %+v, want a succeeded run", resp2.LastRun)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&fakeStore{})
	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("healthy status = %d, want 200", rr.Code)
	}

	h2 := newTestHandler(&fakeStore{pingErr: errors.New("connection refused")})
	rr2 := httptest.NewRecorder()
	h2.Health(rr2, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr2.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d, want 503", rr2.Code)
	}
}
