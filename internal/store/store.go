// Package store provides persistence for the graph and its computed layout.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNoRows is returned when a lookup matches nothing.
var ErrNoRows = errors.New("store: no rows")

// Node is a graph node with its optional computed position.
type Node struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Val  float64 `json:"val"`
	Type string  `json:"type,omitempty"`

	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	HasPosition bool    `json:"-"`
}

// Link is a directed edge between two nodes.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph bundles nodes and the links among them.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Position is a computed 2D coordinate for a node.
type Position struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// LayoutRun records one layout computation.
type LayoutRun struct {
	ID         int64           `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Status     string          `json:"status"`
	Stats      json.RawMessage `json:"stats,omitempty"`
}

// Layout run statuses.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Store is the persistence surface the layout service and API depend on.
type Store interface {
	// LoadGraph returns up to maxNodes nodes (highest weight first) and the
	// links whose endpoints both made the cut. maxNodes <= 0 means no cap.
	LoadGraph(ctx context.Context, maxNodes int) (*Graph, error)

	// LoadPositions returns the current positions of all positioned nodes.
	LoadPositions(ctx context.Context) ([]Position, error)

	// SavePositions upserts positions in batches and reports how many rows
	// were written.
	SavePositions(ctx context.Context, positions []Position, batchSize int) (int, error)

	// RecordLayoutRun persists a run record and returns its id.
	RecordLayoutRun(ctx context.Context, run LayoutRun) (int64, error)

	// LatestLayoutRun returns the most recent run, or ErrNoRows.
	LatestLayoutRun(ctx context.Context) (*LayoutRun, error)

	// CountNodes and CountLinks report table sizes for metrics collection.
	CountNodes(ctx context.Context) (int64, error)
	CountLinks(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
