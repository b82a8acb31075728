package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/layout-engine/internal/api/handlers"
	"github.com/onnwee/layout-engine/internal/cache"
	"github.com/onnwee/layout-engine/internal/config"
	"github.com/onnwee/layout-engine/internal/layout"
	"github.com/onnwee/layout-engine/internal/store"
)

type stubStore struct{}

func (stubStore) LoadGraph(ctx context.Context, maxNodes int) (*store.Graph, error) {
	return &store.Graph{
		Nodes: []store.Node{{ID: "a"}, {ID: "b"}},
		Links: []store.Link{{Source: "a", Target: "b"}},
	}, nil
}

func (stubStore) LoadPositions(ctx context.Context) ([]store.Position, error) {
	return []store.Position{{ID: "a", X: 1, Y: 2}}, nil
}

func (stubStore) SavePositions(ctx context.Context, positions []store.Position, batchSize int) (int, error) {
	return len(positions), nil
}

func (stubStore) RecordLayoutRun(ctx context.Context, run store.LayoutRun) (int64, error) {
	return 1, nil
}

func (stubStore) LatestLayoutRun(ctx context.Context) (*store.LayoutRun, error) {
	return nil, store.ErrNoRows
}

func (stubStore) CountNodes(ctx context.Context) (int64, error) { return 2, nil }
func (stubStore) CountLinks(ctx context.Context) (int64, error) { return 1, nil }
func (stubStore) Ping(ctx context.Context) error                { return nil }
func (stubStore) Close() error                                  { return nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	params := layout.Params{Iterations: 3}
	params.Engine.Seed = 1
	svc := layout.NewService(stubStore{}, params)
	return NewRouter(Deps{
		Store:  stubStore{},
		Cache:  cache.NewMockCache(),
		Layout: svc,
		Hub:    handlers.NewHub(),
	})
}

func TestRouterRegistersEndpoints(t *testing.T) {
	config.ResetForTest()
	t.Cleanup(config.ResetForTest)
	router := newTestRouter(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/healthz"},
		{"GET", "/metrics"},
		{"GET", "/api/graph"},
		{"GET", "/api/positions"},
		{"GET", "/api/layout/status"},
		{"POST", "/api/layout/run"},
		{"GET", "/api/layout/progress"},
	}

	for _, e := range endpoints {
		t.Run(e.method+" "+e.path, func(t *testing.T) {
			req := httptest.NewRequest(e.method, e.path, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code == http.StatusNotFound {
				t.Errorf("%s %s not registered", e.method, e.path)
			}
		})
	}
}

func TestAdminAuthOnLayoutRun(t *testing.T) {
	tests := []struct {
		name       string
		adminToken string
		authHeader string
		wantStatus int
	}{
		{"valid token", "secret-123", "Bearer secret-123", http.StatusAccepted},
		{"invalid token", "secret-123", "Bearer wrong", http.StatusUnauthorized},
		{"missing header", "secret-123", "", http.StatusUnauthorized},
		{"malformed bearer", "secret-123", "Bearersecret-123", http.StatusUnauthorized},
		{"wrong scheme", "secret-123", "Basic dGVzdDp0ZXN0", http.StatusUnauthorized},
		{"token not configured", "", "Bearer secret-123", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ADMIN_API_TOKEN", tt.adminToken)
			config.ResetForTest()
			t.Cleanup(config.ResetForTest)
			router := newTestRouter(t)

			req := httptest.NewRequest(http.MethodPost, "/api/layout/run", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouterSetsRequestIDAndSecurityHeaders(t *testing.T) {
	config.ResetForTest()
	t.Cleanup(config.ResetForTest)
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers not applied")
	}
}

func TestGraphEndpointSupportsETagRevalidation(t *testing.T) {
	config.ResetForTest()
	t.Cleanup(config.ResetForTest)
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/graph", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	etag := rr.Header().Get("ETag")
	if etag == "" {
		t.Fatal("no ETag on graph response")
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/graph", nil)
	req2.Header.Set("If-None-Match", etag)
	rr2 := httptest.NewRecorder()
	router.ServeHTTP(rr2, req2)
	if rr2.Code != http.StatusNotModified {
		t.Errorf("revalidation status = %d, want 304", rr2.Code)
	}
}

func TestLayoutRunFinishesAfterAccepted(t *testing.T) {
	t.Setenv("ADMIN_API_TOKEN", "secret")
	config.ResetForTest()
	t.Cleanup(config.ResetForTest)

	params := layout.Params{Iterations: 3}
	params.Engine.Seed = 1
	svc := layout.NewService(stubStore{}, params)
	router := NewRouter(Deps{Store: stubStore{}, Cache: cache.NewMockCache(), Layout: svc})

	req := httptest.NewRequest(http.MethodPost, "/api/layout/run", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for svc.Running() {
		if time.Now().After(deadline) {
			t.Fatal("background run did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
