package metrics

import (
	"context"
	"time"

	"github.com/onnwee/layout-engine/internal/logger"
)

// StoreSampler is the slice of the store the collector reads.
type StoreSampler interface {
	CountNodes(ctx context.Context) (int64, error)
	CountLinks(ctx context.Context) (int64, error)
}

// RunSampler reports when the last layout run finished.
type RunSampler interface {
	LastRunFinishedAt(ctx context.Context) (time.Time, error)
}

// Collector periodically samples store-derived gauges.
type Collector struct {
	store    StoreSampler
	runs     RunSampler
	interval time.Duration
	stop     chan struct{}
}

// NewCollector creates a collector. runs may be nil when no layout run
// history is available.
func NewCollector(store StoreSampler, runs RunSampler, interval time.Duration) *Collector {
	return &Collector{
		store:    store,
		runs:     runs,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start begins the collection loop.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx)

	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stop)
}

func (c *Collector) collect(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if nodes, err := c.store.CountNodes(ctx); err != nil {
		MetricsCollectionErrors.Inc()
		logger.Warn("Failed to sample node count", "error", err)
	} else {
		GraphNodesTotal.Set(float64(nodes))
	}

	if links, err := c.store.CountLinks(ctx); err != nil {
		MetricsCollectionErrors.Inc()
		logger.Warn("Failed to sample link count", "error", err)
	} else {
		GraphLinksTotal.Set(float64(links))
	}

	if c.runs != nil {
		if finished, err := c.runs.LastRunFinishedAt(ctx); err == nil && !finished.IsZero() {
			LayoutLastRunTimestamp.Set(float64(finished.Unix()))
		}
	}
}
