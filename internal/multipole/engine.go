// Package multipole computes approximate repulsive forces between 2D point
// sets in near-linear time. It builds a reduced quadtree over the particles,
// propagates truncated multipole and local expansions of the logarithmic
// potential through it, and evaluates far, mid and near fields per particle.
// Small inputs fall back to the exact quadratic summation.
package multipole

import (
	"math/rand"
	"time"
)

const (
	// DefaultPrecision is the expansion truncation order.
	DefaultPrecision = 4
	// DefaultParticlesInLeaves is the leaf capacity of the quadtree.
	DefaultParticlesInLeaves = 25
	// DefaultMinNodeNumber is the input size below which the exact
	// quadratic method is faster than building a tree.
	DefaultMinNodeNumber = 175
)

// Options tunes one force evaluation. The zero value selects the defaults.
type Options struct {
	Precision         int
	ParticlesInLeaves int
	MinNodeNumber     int
	Strategy          BuildStrategy

	// Seed fixes the expansion-center jitter source; zero seeds from the
	// clock. Set it to make evaluations reproducible.
	Seed int64
}

func (o Options) withDefaults() Options {
	if o.Precision <= 0 {
		o.Precision = DefaultPrecision
	}
	if o.ParticlesInLeaves <= 0 {
		o.ParticlesInLeaves = DefaultParticlesInLeaves
	}
	if o.MinNodeNumber <= 0 {
		o.MinNodeNumber = DefaultMinNodeNumber
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	return o
}

// Stats describes one evaluation for observability.
type Stats struct {
	Particles int
	Cells     int
	Leaves    int
	MaxDepth  int
	Direct    bool // exact fallback was used

	// Per-phase wall time; zero when the exact fallback ran.
	BuildTime     time.Duration
	PropagateTime time.Duration
	EvaluateTime  time.Duration
}

// ComputeRepulsiveForces returns the repulsive force on every particle.
// Degenerate inputs (empty, single particle, coincident points) are absorbed,
// never rejected.
func ComputeRepulsiveForces(particles []Particle, opts Options) []Force {
	f, _ := ComputeRepulsiveForcesWithStats(particles, opts)
	return f
}

// ComputeRepulsiveForcesWithStats is ComputeRepulsiveForces plus evaluation
// statistics.
func ComputeRepulsiveForcesWithStats(particles []Particle, opts Options) ([]Force, Stats) {
	opts = opts.withDefaults()
	forces := make([]Force, len(particles))
	st := Stats{Particles: len(particles)}
	if len(particles) < 2 {
		st.Direct = true
		return forces, st
	}
	if len(particles) < opts.MinNodeNumber {
		st.Direct = true
		computeDirect(particles, forces)
		return forces, st
	}

	ec := &evalContext{
		p:   opts.Precision,
		bin: binomialsFor(opts.Precision),
		rng: rand.New(rand.NewSource(opts.Seed)),
	}
	start := time.Now()
	tb := newTreeBuilder(particles, opts.ParticlesInLeaves, opts.Strategy, ec)
	root := tb.build()
	treeStats(root, 0, &st)
	st.BuildTime = time.Since(start)

	start = time.Now()
	pr := &propagator{ps: particles, ec: ec}
	pr.run(root)
	st.PropagateTime = time.Since(start)

	start = time.Now()
	ev := &evaluator{ps: particles, ec: ec, forces: forces}
	ev.run(root)
	st.EvaluateTime = time.Since(start)
	return forces, st
}

func treeStats(c *quadTreeCell, depth int, st *Stats) {
	st.Cells++
	if depth > st.MaxDepth {
		st.MaxDepth = depth
	}
	if c.isLeaf() {
		st.Leaves++
		return
	}
	for _, ch := range c.children {
		treeStats(ch, depth+1, st)
	}
}
