package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/layout-engine/internal/api"
	"github.com/onnwee/layout-engine/internal/api/handlers"
	"github.com/onnwee/layout-engine/internal/cache"
	"github.com/onnwee/layout-engine/internal/config"
	"github.com/onnwee/layout-engine/internal/errorreporting"
	"github.com/onnwee/layout-engine/internal/layout"
	"github.com/onnwee/layout-engine/internal/logger"
	"github.com/onnwee/layout-engine/internal/metrics"
	"github.com/onnwee/layout-engine/internal/server"
	"github.com/onnwee/layout-engine/internal/store"
	"github.com/onnwee/layout-engine/internal/tracing"
	"github.com/onnwee/layout-engine/internal/utils"
)

// runSampler adapts the layout run history to the metrics collector.
type runSampler struct {
	st store.Store
}

func (r runSampler) LastRunFinishedAt(ctx context.Context) (time.Time, error) {
	run, err := r.st.LatestLayoutRun(ctx)
	if errors.Is(err, store.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return run.FinishedAt, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	if err := errorreporting.Init(cfg.SentryEnvironment); err != nil {
		logger.Warn("Sentry initialization failed", "error", err)
	}
	defer errorreporting.Flush(2 * time.Second)

	shutdownTracing, err := tracing.Init("layout-engine")
	if err != nil {
		logger.Warn("Tracing initialization failed", "error", err)
	}

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL not set")
		return
	}

	var st *store.Postgres
	err = utils.Retry(5, 2*time.Second, func() error {
		var openErr error
		st, openErr = store.Open(cfg.DatabaseURL, cfg.DBStatementTimeout)
		return openErr
	})
	if err != nil {
		logger.Error("Database connection failed", "error", err)
		return
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("Schema setup failed", "error", err)
		return
	}

	responseCache, err := cache.NewLRU(cfg.CacheMaxBytes, cfg.CacheTTL)
	if err != nil {
		logger.Error("Cache initialization failed", "error", err)
		return
	}
	defer responseCache.Close()

	svc := layout.NewService(st, layout.ParamsFromConfig(cfg))

	hub := handlers.NewHub()
	go hub.Run(ctx)
	svc.OnProgress(hub.PublishProgress)

	if !cfg.DisableLayoutJob {
		job := layout.NewJob(svc, cfg.LayoutInterval)
		go job.Start(ctx)
	}

	collector := metrics.NewCollector(st, runSampler{st: st}, time.Minute)
	go collector.Start(ctx)

	router := api.NewRouter(api.Deps{
		Store:  st,
		Cache:  responseCache,
		Layout: svc,
		Hub:    hub,
	})

	srv := server.New(router, cfg.Port)
	if err := srv.Start(ctx); err != nil {
		logger.Error("HTTP server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown failed", "error", err)
	}
}
