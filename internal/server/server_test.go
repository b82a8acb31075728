package server

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestServerStopsOnContextCancel(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := New(handler, "0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error on graceful shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after context cancellation")
	}
}

func TestServerAddr(t *testing.T) {
	srv := New(nil, "8000")
	if srv.Addr() != ":8000" {
		t.Errorf("Addr() = %q, want :8000", srv.Addr())
	}
}
