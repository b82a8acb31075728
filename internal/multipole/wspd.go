package multipole

import "math/cmplx"

// convergenceRatio bounds how much of the theoretical convergence disk an
// expansion is allowed to use. Translations and evaluations outside this
// margin are refused and the pair is resolved at a finer level or exactly.
const convergenceRatio = 0.75

// propagator runs the two expansion passes over a built tree: multipole
// coefficients bottom-up, then the well-separated pair decomposition top-down
// that fills every cell's local expansion and relationship sets.
type propagator struct {
	ps []Particle
	ec *evalContext
}

func (pr *propagator) run(root *quadTreeCell) {
	pr.multipoleUp(root)
	pr.localDown(root, nil)
}

// multipoleUp fills multipole expansions leaf-first: leaves accumulate their
// own particles, internal cells absorb shifted child expansions.
func (pr *propagator) multipoleUp(c *quadTreeCell) {
	if c.isLeaf() {
		for _, i := range c.particles {
			pr.ec.addParticleMultipole(c.multipole, pos(pr.ps[i]), c.center)
		}
		return
	}
	for _, ch := range c.children {
		pr.multipoleUp(ch)
		pr.ec.shiftMultipole(ch.multipole, ch.center, c.center, c.multipole)
	}
}

// safeTranslation reports whether a multipole-to-local translation between
// the two cell centers converges with margin: both circumscribed circles must
// fit well inside the center distance.
func safeTranslation(a, b *quadTreeCell) bool {
	return a.radius()+b.radius() < convergenceRatio*cmplx.Abs(a.center-b.center)
}

// safePointTranslation reports whether folding a point source at z into c's
// local expansion converges everywhere inside c.
func safePointTranslation(z complex128, c *quadTreeCell) bool {
	return c.radius() < convergenceRatio*cmplx.Abs(z-c.center)
}

// safeEvaluation reports whether b's multipole expansion converges at every
// point of the leaf square c.
func safeEvaluation(b, c *quadTreeCell) bool {
	return b.radius() < convergenceRatio*c.distanceTo(b.center)
}

// localDown classifies every candidate against the receiver c and recurses.
// Candidates arrive from the parent's deferred and bordering sets plus the
// receiver's siblings; each is either translated into c's local expansion,
// deferred one level down, replaced by its children, or resolved exactly.
func (pr *propagator) localDown(c *quadTreeCell, candidates []*quadTreeCell) {
	work := append([]*quadTreeCell(nil), candidates...)
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		switch {
		case wellSeparated(c, b):
			switch {
			case safeTranslation(c, b):
				pr.ec.translateMultipoleToLocal(b.multipole, b.center, c.center, c.local)
			case !b.isLeaf() && b.boxLength >= c.boxLength:
				work = append(work, b.children...)
			case !c.isLeaf():
				c.iSet = append(c.iSet, b)
			case !b.isLeaf():
				work = append(work, b.children...)
			default:
				c.d2 = append(c.d2, b)
			}
		case b.level < c.level:
			// b is coarser than c; only c's children can separate from it
			c.iSet = append(c.iSet, b)
		case !b.isLeaf():
			work = append(work, b.children...)
		case bordering(c, b):
			c.d1 = append(c.d1, b)
		case c.isLeaf():
			c.d2 = append(c.d2, b)
		default:
			pr.foldLeaf(c, b)
		}
	}

	if c.isLeaf() {
		pr.refineLeaf(c)
		return
	}
	for _, ch := range c.children {
		next := make([]*quadTreeCell, 0, len(c.iSet)+len(c.d1)+len(c.children)-1)
		next = append(next, c.iSet...)
		next = append(next, c.d1...)
		for _, sib := range c.children {
			if sib != ch {
				next = append(next, sib)
			}
		}
		pr.ec.shiftLocal(c.local, c.center, ch.center, ch.local)
		pr.localDown(ch, next)
	}
}

// foldLeaf resolves a small far leaf b against an internal receiver c by
// folding b's particles into c's local expansion point by point. If any
// particle sits too close for the fold to converge the whole leaf is
// deferred to c's children instead.
func (pr *propagator) foldLeaf(c, b *quadTreeCell) {
	for _, i := range b.particles {
		if !safePointTranslation(pos(pr.ps[i]), c) {
			c.iSet = append(c.iSet, b)
			return
		}
	}
	for _, i := range b.particles {
		pr.ec.addPointLocal(pos(pr.ps[i]), c.center, c.local)
	}
}

// refineLeaf is the final refinement at a leaf receiver: the deferred set can
// no longer be pushed down, so every entry is resolved into an exact
// near-field set or the multipole evaluation set.
func (pr *propagator) refineLeaf(c *quadTreeCell) {
	work := c.iSet
	c.iSet = nil
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		if b.isLeaf() {
			if bordering(c, b) {
				c.d1 = append(c.d1, b)
			} else {
				c.d2 = append(c.d2, b)
			}
			continue
		}
		if bordering(c, b) || !safeEvaluation(b, c) {
			work = append(work, b.children...)
			continue
		}
		c.mSet = append(c.mSet, b)
	}
}
