// Package server wraps the HTTP server with production timeouts and
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/onnwee/layout-engine/internal/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 60 * time.Second
	idleTimeout       = 120 * time.Second

	shutdownGrace = 15 * time.Second
)

type Server struct {
	http *http.Server
}

func New(handler http.Handler, port string) *Server {
	return &Server{
		http: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start serves until the context is cancelled, then drains in-flight
// requests before returning.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	logger.Info("Shutting down HTTP server")
	return s.http.Shutdown(shutdownCtx)
}
