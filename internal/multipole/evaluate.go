package multipole

// evaluator turns the propagated expansions into per-particle forces. Near
// fields are applied one-sided: every leaf computes the forces acting on its
// own particles only, so each exact interaction is visited exactly once per
// receiver regardless of how the two leaves classified each other.
type evaluator struct {
	ps     []Particle
	ec     *evalContext
	forces []Force
}

func (ev *evaluator) run(root *quadTreeCell) {
	ev.walk(root)
}

func (ev *evaluator) walk(c *quadTreeCell) {
	if !c.isLeaf() {
		for _, ch := range c.children {
			ev.walk(ch)
		}
		return
	}
	for _, i := range c.particles {
		z := pos(ev.ps[i])
		f := ev.ec.localDerivative(c.local, z, c.center)
		for _, m := range c.mSet {
			f += ev.ec.multipoleDerivative(m.multipole, z, m.center)
		}
		// the force field is the conjugate of the potential derivative
		ev.forces[i].X += real(f)
		ev.forces[i].Y += -imag(f)
	}

	// exact near field: same-leaf pairs, then bordering and close leaves
	for _, i := range c.particles {
		for _, j := range c.particles {
			if i == j {
				continue
			}
			ev.addPair(i, j)
		}
	}
	for _, b := range c.d1 {
		ev.addCell(c, b)
	}
	for _, b := range c.d2 {
		ev.addCell(c, b)
	}
}

func (ev *evaluator) addCell(c, b *quadTreeCell) {
	for _, i := range c.particles {
		for _, j := range b.particles {
			ev.addPair(i, j)
		}
	}
}

func (ev *evaluator) addPair(i, j int) {
	fx, fy := pairForce(ev.ps[i], ev.ps[j])
	ev.forces[i].X += fx
	ev.forces[i].Y += fy
}

// pairForce is the exact repulsive force exerted on p by q. It is
// antisymmetric by construction: swapping the arguments negates both
// components bit for bit. Coincident particles exert no force on each other.
func pairForce(p, q Particle) (fx, fy float64) {
	dx := p.X - q.X
	dy := p.Y - q.Y
	d2 := dx*dx + dy*dy
	if d2 == 0 {
		return 0, 0
	}
	return dx / d2, dy / d2
}

// computeDirect sums exact pair forces over all particle pairs, applying each
// pair to both endpoints. It is the fallback for small inputs and the
// reference the approximation is measured against.
func computeDirect(ps []Particle, forces []Force) {
	for i := 0; i < len(ps); i++ {
		for j := i + 1; j < len(ps); j++ {
			fx, fy := pairForce(ps[i], ps[j])
			forces[i].X += fx
			forces[i].Y += fy
			forces[j].X -= fx
			forces[j].Y -= fy
		}
	}
}
