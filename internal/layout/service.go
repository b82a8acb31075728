// Package layout computes force-directed positions for the graph and
// persists them. Repulsion comes from the multipole engine, attraction from
// springs along the links.
package layout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/onnwee/layout-engine/internal/config"
	"github.com/onnwee/layout-engine/internal/errorreporting"
	"github.com/onnwee/layout-engine/internal/logger"
	"github.com/onnwee/layout-engine/internal/metrics"
	"github.com/onnwee/layout-engine/internal/multipole"
	"github.com/onnwee/layout-engine/internal/store"
	"github.com/onnwee/layout-engine/internal/tracing"
)

var (
	// ErrBusy is returned when a run is requested while another is active.
	ErrBusy = errors.New("layout: run already in progress")

	// ErrEmptyGraph is returned when there are no nodes to lay out.
	ErrEmptyGraph = errors.New("layout: graph has no nodes")
)

// progressEvery controls how often iteration progress is reported.
const progressEvery = 10

// Params configures a layout run.
type Params struct {
	MaxNodes        int
	Iterations      int
	BatchSize       int
	RepulsionScale  float64
	IdealEdgeLength float64
	Engine          multipole.Options
}

// ParamsFromConfig maps application configuration onto run parameters.
func ParamsFromConfig(cfg *config.Config) Params {
	strategy := multipole.PathByPath
	if cfg.EngineStrategy == "subtree" {
		strategy = multipole.SubtreeBySubtree
	}
	return Params{
		MaxNodes:        cfg.LayoutMaxNodes,
		Iterations:      cfg.LayoutIterations,
		BatchSize:       cfg.LayoutBatchSize,
		RepulsionScale:  cfg.RepulsionScale,
		IdealEdgeLength: cfg.IdealEdgeLength,
		Engine: multipole.Options{
			Precision:         cfg.EnginePrecision,
			ParticlesInLeaves: cfg.EngineLeafSize,
			MinNodeNumber:     cfg.EngineMinDirect,
			Strategy:          strategy,
			Seed:              cfg.EngineSeed,
		},
	}
}

func (p Params) withDefaults() Params {
	if p.Iterations <= 0 {
		p.Iterations = 400
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 5000
	}
	if p.RepulsionScale <= 0 {
		p.RepulsionScale = 1
	}
	if p.IdealEdgeLength <= 0 {
		p.IdealEdgeLength = 30
	}
	return p
}

// Progress describes the state of a run partway through.
type Progress struct {
	Iteration       int     `json:"iteration"`
	Total           int     `json:"total"`
	Nodes           int     `json:"nodes"`
	MaxDisplacement float64 `json:"max_displacement"`
}

// Result summarizes a completed run.
type Result struct {
	RunID      int64           `json:"run_id"`
	Nodes      int             `json:"nodes"`
	Links      int             `json:"links"`
	Iterations int             `json:"iterations"`
	Persisted  int             `json:"persisted"`
	Duration   time.Duration   `json:"-"`
	Engine     multipole.Stats `json:"engine"`
}

// Service runs layouts against a Store. At most one run is active at a time.
type Service struct {
	store      store.Store
	params     Params
	onProgress atomic.Pointer[func(Progress)]
	running    atomic.Bool
}

func NewService(st store.Store, params Params) *Service {
	return &Service{store: st, params: params.withDefaults()}
}

// OnProgress registers a callback invoked during runs. Safe to call while a
// run is active.
func (s *Service) OnProgress(fn func(Progress)) {
	s.onProgress.Store(&fn)
}

// Running reports whether a run is currently active.
func (s *Service) Running() bool {
	return s.running.Load()
}

func (s *Service) notify(p Progress) {
	if fn := s.onProgress.Load(); fn != nil {
		(*fn)(p)
	}
}

// Run computes a full layout and persists it. Concurrent calls beyond the
// first return ErrBusy.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.running.Store(false)
	return s.runLocked(ctx)
}

// RunAsync starts a run in the background. It returns ErrBusy immediately if
// a run is already active; any later failure is reported through logs,
// metrics and the run record.
func (s *Service) RunAsync(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	go func() {
		defer s.running.Store(false)
		if _, err := s.runLocked(ctx); err != nil && !errors.Is(err, ErrEmptyGraph) {
			logger.ErrorContext(ctx, "Background layout run failed", "error", err)
		}
	}()
	return nil
}

func (s *Service) runLocked(ctx context.Context) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "layout.Run")
	defer span.End()

	started := time.Now()
	result, err := s.run(ctx)
	elapsed := time.Since(started)

	if err != nil {
		if !errors.Is(err, ErrEmptyGraph) {
			metrics.LayoutRunsTotal.WithLabelValues("failed").Inc()
			errorreporting.CaptureErrorWithContext(err,
				map[string]string{"component": "layout"},
				map[string]interface{}{"duration": elapsed.String()})
			s.recordRun(context.WithoutCancel(ctx), store.LayoutRun{
				StartedAt:  started,
				FinishedAt: time.Now(),
				Status:     store.RunFailed,
			})
		}
		return nil, err
	}

	result.Duration = elapsed
	metrics.LayoutRunsTotal.WithLabelValues("success").Inc()
	metrics.LayoutRunDuration.Observe(elapsed.Seconds())
	metrics.LayoutNodesPositioned.Set(float64(result.Nodes))
	metrics.LayoutPositionsPersisted.Add(float64(result.Persisted))

	stats, _ := json.Marshal(result)
	result.RunID = s.recordRun(ctx, store.LayoutRun{
		StartedAt:  started,
		FinishedAt: time.Now(),
		Status:     store.RunSucceeded,
		Stats:      stats,
	})

	logger.InfoContext(ctx, "Layout run finished",
		"nodes", result.Nodes,
		"links", result.Links,
		"iterations", result.Iterations,
		"persisted", result.Persisted,
		"duration", elapsed.String())
	return result, nil
}

func (s *Service) recordRun(ctx context.Context, run store.LayoutRun) int64 {
	id, err := s.store.RecordLayoutRun(ctx, run)
	if err != nil {
		logger.WarnContext(ctx, "Failed to record layout run", "error", err)
		return 0
	}
	return id
}

func (s *Service) run(ctx context.Context) (*Result, error) {
	graph, err := s.store.LoadGraph(ctx, s.params.MaxNodes)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	if len(graph.Nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	particles := s.seedPositions(graph.Nodes)
	edges := resolveEdges(graph)

	k := s.params.IdealEdgeLength
	maxStep := k * math.Sqrt(float64(len(particles)))
	disp := make([]multipole.Force, len(particles))

	var engineStats multipole.Stats
	var maxDisp float64
	total := s.params.Iterations
	for iter := 0; iter < total; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		phaseStart := time.Now()
		rep, stats := multipole.ComputeRepulsiveForcesWithStats(particles, s.params.Engine)
		metrics.EnginePhaseDuration.WithLabelValues("total").Observe(time.Since(phaseStart).Seconds())
		if stats.Direct {
			metrics.EngineEvaluationsTotal.WithLabelValues("direct").Inc()
		} else {
			metrics.EngineEvaluationsTotal.WithLabelValues("multipole").Inc()
			metrics.EnginePhaseDuration.WithLabelValues("build").Observe(stats.BuildTime.Seconds())
			metrics.EnginePhaseDuration.WithLabelValues("propagate").Observe(stats.PropagateTime.Seconds())
			metrics.EnginePhaseDuration.WithLabelValues("evaluate").Observe(stats.EvaluateTime.Seconds())
			metrics.EngineTreeCells.Observe(float64(stats.Cells))
			metrics.EngineTreeDepth.Observe(float64(stats.MaxDepth))
		}
		engineStats = stats

		// Repulsion falls off as 1/d; scaling by k^2 gives the classic
		// k^2/d magnitude.
		repScale := s.params.RepulsionScale * k * k
		for i := range disp {
			disp[i].X = rep[i].X * repScale
			disp[i].Y = rep[i].Y * repScale
		}

		// Springs pull with d^2/k along each link.
		for _, e := range edges {
			dx := particles[e.b].X - particles[e.a].X
			dy := particles[e.b].Y - particles[e.a].Y
			dist := math.Hypot(dx, dy)
			if dist == 0 {
				continue
			}
			pull := dist / k
			disp[e.a].X += dx * pull
			disp[e.a].Y += dy * pull
			disp[e.b].X -= dx * pull
			disp[e.b].Y -= dy * pull
		}

		// Linear cooling caps how far a node may move this iteration.
		temp := maxStep * (1 - float64(iter)/float64(total))
		maxDisp = 0
		for i := range particles {
			dx, dy := disp[i].X, disp[i].Y
			dist := math.Hypot(dx, dy)
			if dist > temp && dist > 0 {
				scale := temp / dist
				dx *= scale
				dy *= scale
				dist = temp
			}
			particles[i].X += dx
			particles[i].Y += dy
			if dist > maxDisp {
				maxDisp = dist
			}
		}

		if iter%progressEvery == 0 || iter == total-1 {
			s.notify(Progress{
				Iteration:       iter + 1,
				Total:           total,
				Nodes:           len(particles),
				MaxDisplacement: maxDisp,
			})
		}
	}

	positions := make([]store.Position, len(particles))
	for i, p := range particles {
		positions[i] = store.Position{ID: graph.Nodes[i].ID, X: p.X, Y: p.Y}
	}
	persisted, err := s.store.SavePositions(ctx, positions, s.params.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("save positions: %w", err)
	}

	return &Result{
		Nodes:      len(particles),
		Links:      len(edges),
		Iterations: total,
		Persisted:  persisted,
		Engine:     engineStats,
	}, nil
}

// seedPositions keeps stored coordinates and scatters unplaced nodes on a
// ring sized to the graph. The scatter is deterministic for a fixed seed.
func (s *Service) seedPositions(nodes []store.Node) []multipole.Particle {
	seed := s.params.Engine.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	radius := s.params.IdealEdgeLength * math.Sqrt(float64(len(nodes)))
	particles := make([]multipole.Particle, len(nodes))
	for i, n := range nodes {
		if n.HasPosition {
			particles[i] = multipole.Particle{X: n.X, Y: n.Y, Owner: i}
			continue
		}
		angle := rng.Float64() * 2 * math.Pi
		r := radius * math.Sqrt(rng.Float64())
		particles[i] = multipole.Particle{
			X:     r * math.Cos(angle),
			Y:     r * math.Sin(angle),
			Owner: i,
		}
	}
	return particles
}

type edge struct{ a, b int }

// resolveEdges maps link endpoints to node indices, dropping self-links,
// duplicates and links whose endpoints were capped out of the node set.
func resolveEdges(g *store.Graph) []edge {
	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		index[n.ID] = i
	}

	seen := make(map[edge]struct{}, len(g.Links))
	edges := make([]edge, 0, len(g.Links))
	for _, l := range g.Links {
		a, okA := index[l.Source]
		b, okB := index[l.Target]
		if !okA || !okB || a == b {
			continue
		}
		e := edge{a, b}
		if a > b {
			e = edge{b, a}
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		edges = append(edges, e)
	}
	return edges
}
