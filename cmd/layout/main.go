// Command layout runs a single layout computation and exits. Useful for
// cron-style scheduling and for seeding positions before first serving.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/layout-engine/internal/config"
	"github.com/onnwee/layout-engine/internal/layout"
	"github.com/onnwee/layout-engine/internal/logger"
	"github.com/onnwee/layout-engine/internal/store"
)

func main() {
	iterations := flag.Int("iterations", 0, "override the configured iteration count")
	maxNodes := flag.Int("max-nodes", 0, "override the configured node cap")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	st, err := store.Open(cfg.DatabaseURL, cfg.DBStatementTimeout)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatalf("Schema setup failed: %v", err)
	}

	params := layout.ParamsFromConfig(cfg)
	if *iterations > 0 {
		params.Iterations = *iterations
	}
	if *maxNodes > 0 {
		params.MaxNodes = *maxNodes
	}

	svc := layout.NewService(st, params)
	started := time.Now()
	result, err := svc.Run(ctx)
	if err != nil {
		log.Fatalf("Layout run failed: %v", err)
	}

	logger.Info("Layout complete",
		"nodes", result.Nodes,
		"links", result.Links,
		"iterations", result.Iterations,
		"persisted", result.Persisted,
		"duration", time.Since(started).String())
}
