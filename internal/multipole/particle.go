package multipole

// Particle is one 2D point fed into a force evaluation, with a back-reference
// to the owning graph node (its index in the caller's node slice). Particles
// are immutable for the duration of one evaluation call.
type Particle struct {
	X, Y  float64
	Owner int
}

// Force is the computed repulsive force on one particle.
type Force struct {
	X, Y float64
}

func pos(p Particle) complex128 { return complex(p.X, p.Y) }

// Positions builds a particle slice from coordinate slices; each particle
// owns the node at its own index.
func Positions(xs, ys []float64) []Particle {
	ps := make([]Particle, len(xs))
	for i := range xs {
		ps[i] = Particle{X: xs[i], Y: ys[i], Owner: i}
	}
	return ps
}
