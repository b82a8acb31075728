package multipole

import "math"

// quadTreeCell is one node of the reduced quadtree: a square aligned to the
// power-of-two subdivision of the root box, its owned children, the
// particles it holds as a leaf, one multipole and one local expansion, and
// the relationship sets that drive one propagation pass.
type quadTreeCell struct {
	dlcX, dlcY float64 // down-left corner
	boxLength  float64
	level      int
	ix, iy     uint64 // grid indices of the square at its level

	parent   *quadTreeCell // upward traversal only, never ownership
	children []*quadTreeCell

	particles []int // indices into the evaluation's particle slice; leaves only

	center    complex128
	multipole expansion
	local     expansion

	// Relationship sets: non-owning references, valid during one
	// propagation pass.
	// iSet: ill-separated cells deferred to the next level down.
	// d1:   bordering leaves, resolved by exact near-field forces.
	// d2:   close non-bordering leaves, also resolved exactly.
	// mSet: far cells whose multipole expansions are evaluated directly
	//       at each contained particle.
	iSet, d1, d2, mSet []*quadTreeCell

	count int // particles in the whole subtree
}

func (c *quadTreeCell) isLeaf() bool { return len(c.children) == 0 }

// radius is the circumscribed-circle radius of the cell square.
func (c *quadTreeCell) radius() float64 { return c.boxLength * math.Sqrt2 / 2 }

// gaps returns the per-axis separations between two cell squares, clamped to
// zero where the projections overlap or touch.
func gaps(a, b *quadTreeCell) (gx, gy float64) {
	gx = math.Max(a.dlcX-(b.dlcX+b.boxLength), b.dlcX-(a.dlcX+a.boxLength))
	gy = math.Max(a.dlcY-(b.dlcY+b.boxLength), b.dlcY-(a.dlcY+a.boxLength))
	return math.Max(gx, 0), math.Max(gy, 0)
}

// wellSeparated reports whether the smaller of the two cells, inflated to
// three times its size around its own region, stays clear of the other.
func wellSeparated(a, b *quadTreeCell) bool {
	s := math.Min(a.boxLength, b.boxLength)
	gx, gy := gaps(a, b)
	return gx > s || gy > s
}

// bordering reports whether two cells are geometric neighbors: shifting the
// smaller square by its own box length along one axis would make the squares
// touch. Snapped leaves of different depths rarely share edges exactly, so
// the shift absorbs up to one small-cell length of slack along the contact
// axis.
func bordering(a, b *quadTreeCell) bool {
	s := math.Min(a.boxLength, b.boxLength)
	gx, gy := gaps(a, b)
	return (gx <= s && gy <= 0) || (gy <= s && gx <= 0)
}

// distanceTo is the distance from z to the nearest point of the cell square.
func (c *quadTreeCell) distanceTo(z complex128) float64 {
	dx := math.Max(0, math.Max(c.dlcX-real(z), real(z)-(c.dlcX+c.boxLength)))
	dy := math.Max(0, math.Max(c.dlcY-imag(z), imag(z)-(c.dlcY+c.boxLength)))
	return math.Hypot(dx, dy)
}
