package layout

import (
	"context"
	"errors"
	"time"

	"github.com/onnwee/layout-engine/internal/logger"
)

// Job periodically recomputes the layout in the background.
type Job struct {
	service  *Service
	interval time.Duration
}

func NewJob(service *Service, interval time.Duration) *Job {
	return &Job{service: service, interval: interval}
}

// Start runs one layout immediately and then on every tick until the context
// is cancelled. Busy and empty-graph outcomes are expected and only logged.
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *Job) runOnce(ctx context.Context) {
	_, err := j.service.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrBusy):
		logger.InfoContext(ctx, "Skipping scheduled layout, a run is already active")
	case errors.Is(err, ErrEmptyGraph):
		logger.InfoContext(ctx, "Skipping scheduled layout, graph is empty")
	case errors.Is(err, context.Canceled):
	default:
		logger.ErrorContext(ctx, "Scheduled layout run failed", "error", err)
	}
}
