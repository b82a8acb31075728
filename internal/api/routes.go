// Package api assembles the HTTP surface of the layout engine.
package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/layout-engine/internal/api/handlers"
	"github.com/onnwee/layout-engine/internal/cache"
	"github.com/onnwee/layout-engine/internal/config"
	"github.com/onnwee/layout-engine/internal/layout"
	"github.com/onnwee/layout-engine/internal/metrics"
	"github.com/onnwee/layout-engine/internal/middleware"
	"github.com/onnwee/layout-engine/internal/store"
)

// Deps carries everything the router needs.
type Deps struct {
	Store  store.Store
	Cache  cache.Cache
	Layout *layout.Service
	Hub    *handlers.Hub

	// RateLimiter is optional; when nil and rate limiting is enabled, one is
	// created from config.
	RateLimiter *middleware.RateLimiter
}

// NewRouter builds the full handler chain.
func NewRouter(deps Deps) http.Handler {
	cfg := config.Load()
	h := handlers.New(deps.Store, deps.Cache, deps.Layout, cfg.CacheTTL)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(instrument)

	// Read endpoints carry ETag plus negotiated compression; position and
	// graph payloads are large and highly compressible.
	api.Handle("/graph",
		middleware.ETag(middleware.Compress(http.HandlerFunc(h.GetGraph)))).Methods("GET")
	api.Handle("/positions",
		middleware.ETag(middleware.Compress(http.HandlerFunc(h.GetPositions)))).Methods("GET")

	api.HandleFunc("/layout/status", h.GetLayoutStatus).Methods("GET")
	api.Handle("/layout/run", adminOnly(cfg)(http.HandlerFunc(h.RunLayout))).Methods("POST")
	if deps.Hub != nil {
		// Registered on the root router so the connection upgrade sees the
		// raw ResponseWriter, not the instrumented wrapper.
		r.HandleFunc("/api/layout/progress", deps.Hub.ServeWS).Methods("GET")
	}

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = cfg.CORSAllowedOrigins
	}

	var handler http.Handler = r
	handler = middleware.ValidateRequestBody(handler)
	if cfg.EnableRateLimit {
		rl := deps.RateLimiter
		if rl == nil {
			rl = middleware.NewRateLimiter(cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst,
				cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst)
		}
		handler = rl.Limit(handler)
	}
	handler = middleware.CORS(corsConfig)(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.RecoverWithSentry(handler)
	handler = middleware.RequestID(handler)
	return handler
}

// adminOnly gates mutating endpoints behind the configured Bearer token.
func adminOnly(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.AdminAPIToken == "" {
				http.Error(w, "admin token not configured", http.StatusServiceUnavailable)
				return
			}
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix ||
				subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(cfg.AdminAPIToken)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// instrument records per-route request counts and latency.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.status)
		metrics.APIRequestDuration.WithLabelValues(endpoint, r.Method, status).
			Observe(time.Since(start).Seconds())
		metrics.APIRequestsTotal.WithLabelValues(endpoint, r.Method, status).Inc()
	})
}
