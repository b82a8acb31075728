package multipole

import (
	"math"
	"math/bits"
	"sort"
)

// BuildStrategy selects how the reduced quadtree is constructed. Both
// strategies produce trees satisfying the same invariants; they are
// alternative performance trade-offs, not behavior differences.
type BuildStrategy int

const (
	// PathByPath splits one root-to-leaf path to completion before moving
	// on to the next.
	PathByPath BuildStrategy = iota
	// SubtreeBySubtree estimates a target depth from the particle count,
	// buckets every particle into a complete grid of candidate leaves in
	// one shot, then collapses empty, degenerate and sparse subtrees.
	SubtreeBySubtree
)

const (
	// maxGridLevel bounds the ambient power-of-two grid: cells deeper than
	// the float64 mantissa cannot be told apart anyway.
	maxGridLevel = 52

	// minBoxLength stops subdivision once a cell square has shrunk below
	// any physically meaningful size.
	minBoxLength = 1e-300

	// maxBucketGridDepth caps the one-shot candidate-leaf grid at 4^12
	// cells; overfull buckets are finished by the path-by-path splitter.
	maxBucketGridDepth = 12

	// centerJitterScale sizes the pseudo-random y offset of expansion
	// centers relative to the cell box length.
	centerJitterScale = 1e-6
)

// treeBuilder constructs a reduced quadtree over a particle set: adaptive
// splitting, smallest-enclosing-cell snapping, degenerate-cell collapsing
// and sparse-subtree collapsing. All geometric decisions are made on integer
// grid coordinates so the iterative and closed-form snapping methods agree
// exactly.
type treeBuilder struct {
	ps        []Particle
	threshold int // particles kept together in one leaf
	strategy  BuildStrategy
	ec        *evalContext

	rootX, rootY, rootLen float64
	maxLevel              int // deepest usable grid level for this root box

	gx, gy []uint64 // per-particle grid coordinates at maxLevel
}

func newTreeBuilder(ps []Particle, threshold int, strategy BuildStrategy, ec *evalContext) *treeBuilder {
	tb := &treeBuilder{ps: ps, threshold: threshold, strategy: strategy, ec: ec}
	minX, minY := ps[0].X, ps[0].Y
	maxX, maxY := minX, minY
	for _, p := range ps[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	side := math.Max(maxX-minX, maxY-minY)
	if side <= 0 {
		// all particles coincide; any ambient box works
		side = 1
	}
	// widen slightly so every particle lands strictly inside the grid
	tb.rootLen = side * (1 + 1e-12)
	tb.rootX, tb.rootY = minX, minY

	lvl := 0
	for l := tb.rootLen; lvl < maxGridLevel && l/2 >= minBoxLength; l /= 2 {
		lvl++
	}
	tb.maxLevel = lvl

	scale := float64(uint64(1) << uint(tb.maxLevel))
	tb.gx = make([]uint64, len(ps))
	tb.gy = make([]uint64, len(ps))
	for i, p := range ps {
		tb.gx[i] = gridCoord((p.X-tb.rootX)/tb.rootLen*scale, scale)
		tb.gy[i] = gridCoord((p.Y-tb.rootY)/tb.rootLen*scale, scale)
	}
	return tb
}

func gridCoord(v, scale float64) uint64 {
	if v < 0 {
		return 0
	}
	if v >= scale {
		return uint64(scale) - 1
	}
	return uint64(v)
}

// newCell creates the cell for a grid square identified by its level and
// grid indices. The expansion center is the square midpoint with a tiny
// pseudo-random y offset, keeping later complex logarithms away from
// coincident-center arguments.
func (tb *treeBuilder) newCell(level int, ix, iy uint64, parent *quadTreeCell) *quadTreeCell {
	length := tb.rootLen / float64(uint64(1)<<uint(level))
	x := tb.rootX + float64(ix)*length
	y := tb.rootY + float64(iy)*length
	jitter := (tb.ec.rng.Float64() - 0.5) * length * centerJitterScale
	c := &quadTreeCell{
		dlcX:      x,
		dlcY:      y,
		boxLength: length,
		level:     level,
		ix:        ix,
		iy:        iy,
		parent:    parent,
		center:    complex(x+length/2, y+length/2+jitter),
	}
	c.multipole = newExpansion(tb.ec.p)
	c.local = newExpansion(tb.ec.p)
	return c
}

// snapLevelIterative finds, one halving at a time, the deepest grid level at
// which the integer bounding box still fits inside a single cell. Always
// correct; the closed-form variant is property-tested against it.
func (tb *treeBuilder) snapLevelIterative(ax, ay, bx, by uint64) int {
	lvl := 0
	for lvl < tb.maxLevel {
		shift := uint(tb.maxLevel - lvl - 1)
		if ax>>shift != bx>>shift || ay>>shift != by>>shift {
			break
		}
		lvl++
	}
	return lvl
}

// snapLevelClosedForm computes the same level in O(1) from the most
// significant bit on which the min and max grid coordinates differ. It falls
// back to the iterative method when the grid is too deep for the bit width,
// and short-circuits the degenerate cases the bit formula cannot express: a
// point bounding box (both XORs zero) fits at every level, and a bounding
// box collapsed to an axis-parallel line is governed by the other axis
// alone.
func (tb *treeBuilder) snapLevelClosedForm(ax, ay, bx, by uint64) int {
	if tb.maxLevel > 63 {
		return tb.snapLevelIterative(ax, ay, bx, by)
	}
	dx := ax ^ bx
	dy := ay ^ by
	if dx == 0 && dy == 0 {
		return tb.maxLevel
	}
	diff := bits.Len64(dx)
	if l := bits.Len64(dy); l > diff {
		diff = l
	}
	return tb.maxLevel - diff
}

func (tb *treeBuilder) snapLevel(ax, ay, bx, by uint64) int {
	return tb.snapLevelClosedForm(ax, ay, bx, by)
}

// build constructs the reduced quadtree for the builder's particle set.
func (tb *treeBuilder) build() *quadTreeCell {
	byX := make([]int, len(tb.ps))
	byY := make([]int, len(tb.ps))
	for i := range byX {
		byX[i] = i
		byY[i] = i
	}
	sortByGrid(byX, tb.gx, tb.gy)
	sortByGrid(byY, tb.gy, tb.gx)
	if tb.strategy == SubtreeBySubtree {
		return tb.buildSubtrees(byX)
	}
	return tb.buildCell(nil, byX, byY)
}

// sortByGrid orders particle indices by a primary grid axis, breaking ties
// by the secondary axis and then by index, so splits are deterministic.
func sortByGrid(idx []int, primary, secondary []uint64) {
	sort.Slice(idx, func(a, b int) bool {
		i, j := idx[a], idx[b]
		if primary[i] != primary[j] {
			return primary[i] < primary[j]
		}
		if secondary[i] != secondary[j] {
			return secondary[i] < secondary[j]
		}
		return i < j
	})
}

// buildCell constructs the subtree for the given particles, supplied in
// x-sorted and y-sorted index order. The cell square is snapped to the
// smallest enclosing grid square before any split, so a split always
// scatters particles over at least two quadrants.
func (tb *treeBuilder) buildCell(parent *quadTreeCell, byX, byY []int) *quadTreeCell {
	ax, bx := tb.gx[byX[0]], tb.gx[byX[len(byX)-1]]
	ay, by := tb.gy[byY[0]], tb.gy[byY[len(byY)-1]]
	lvl := tb.snapLevel(ax, ay, bx, by)
	shift := uint(tb.maxLevel - lvl)
	c := tb.newCell(lvl, ax>>shift, ay>>shift, parent)
	c.count = len(byX)
	if len(byX) <= tb.threshold || lvl == tb.maxLevel {
		// small enough, or the box cannot shrink further (coincident or
		// near-coincident particles stay together; not an error)
		c.particles = append([]int(nil), byX...)
		return c
	}

	// split on the next grid bit; right/top halves take the set bit
	bit := uint(tb.maxLevel - lvl - 1)
	var qx, qy [4][]int
	for _, i := range byX {
		q := int((tb.gy[i]>>bit&1)<<1 | tb.gx[i]>>bit&1)
		qx[q] = append(qx[q], i)
	}
	for _, i := range byY {
		q := int((tb.gy[i]>>bit&1)<<1 | tb.gx[i]>>bit&1)
		qy[q] = append(qy[q], i)
	}

	// recurse into the most populated quadrant first
	order := []int{0, 1, 2, 3}
	sort.SliceStable(order, func(a, b int) bool { return len(qx[order[a]]) > len(qx[order[b]]) })
	for _, q := range order {
		if len(qx[q]) == 0 {
			continue
		}
		c.children = append(c.children, tb.buildCell(c, qx[q], qy[q]))
	}
	return c
}

// leafFor creates a leaf holding the given particles, snapped to the
// smallest grid square containing their bounding box.
func (tb *treeBuilder) leafFor(parent *quadTreeCell, idx []int) *quadTreeCell {
	ax, bx := tb.gx[idx[0]], tb.gx[idx[0]]
	ay, by := tb.gy[idx[0]], tb.gy[idx[0]]
	for _, i := range idx[1:] {
		ax = min(ax, tb.gx[i])
		bx = max(bx, tb.gx[i])
		ay = min(ay, tb.gy[i])
		by = max(by, tb.gy[i])
	}
	lvl := tb.snapLevel(ax, ay, bx, by)
	shift := uint(tb.maxLevel - lvl)
	c := tb.newCell(lvl, ax>>shift, ay>>shift, parent)
	c.count = len(idx)
	c.particles = append([]int(nil), idx...)
	return c
}

// buildSubtrees is the subtree-by-subtree strategy: bucket particles into a
// 2^d x 2^d grid of candidate leaves sized from log4(n), assemble the tree
// over the non-empty buckets and collapse on the way up.
func (tb *treeBuilder) buildSubtrees(byX []int) *quadTreeCell {
	n := len(tb.ps)
	d := int(math.Ceil(math.Log(float64(n)) / math.Log(4)))
	if d < 1 {
		d = 1
	}
	if d > maxBucketGridDepth {
		d = maxBucketGridDepth
	}
	if d > tb.maxLevel {
		d = tb.maxLevel
	}
	shift := uint(tb.maxLevel - d)
	buckets := make(map[uint64][]int)
	// bucket in x-sorted order so bucket contents stay deterministic
	for _, i := range byX {
		key := (tb.gx[i]>>shift)<<uint(d) | tb.gy[i]>>shift
		buckets[key] = append(buckets[key], i)
	}
	return tb.assemble(nil, buckets, d, 0, 0, 0)
}

// assemble builds the subtree over the candidate-leaf grid rooted at the
// level-lvl cell with grid prefix (ix, iy), applying the collapsing rules on
// the way back up: empty subtrees vanish, sparse subtrees become one snapped
// leaf, and a cell left with a single child is replaced by that child.
func (tb *treeBuilder) assemble(parent *quadTreeCell, buckets map[uint64][]int, depth, lvl int, ix, iy uint64) *quadTreeCell {
	if lvl == depth {
		idx := buckets[ix<<uint(depth)|iy]
		if len(idx) == 0 {
			return nil
		}
		return tb.finishBucket(parent, idx)
	}
	c := tb.newCell(lvl, ix, iy, parent)
	for q := 0; q < 4; q++ {
		child := tb.assemble(c, buckets, depth, lvl+1, ix<<1|uint64(q&1), iy<<1|uint64(q>>1))
		if child == nil {
			continue
		}
		c.count += child.count
		c.children = append(c.children, child)
	}
	switch {
	case len(c.children) == 0:
		return nil
	case c.count <= tb.threshold:
		return tb.leafFor(parent, gatherParticles(c, nil))
	case len(c.children) == 1:
		child := c.children[0]
		child.parent = parent
		return child
	}
	return c
}

// finishBucket turns one candidate-leaf bucket into a real subtree: small
// buckets become snapped leaves, overfull ones are split further.
func (tb *treeBuilder) finishBucket(parent *quadTreeCell, idx []int) *quadTreeCell {
	if len(idx) <= tb.threshold {
		return tb.leafFor(parent, idx)
	}
	byX := append([]int(nil), idx...)
	byY := append([]int(nil), idx...)
	sortByGrid(byX, tb.gx, tb.gy)
	sortByGrid(byY, tb.gy, tb.gx)
	return tb.buildCell(parent, byX, byY)
}

// gatherParticles appends the particle indices of every leaf under c, in
// child order.
func gatherParticles(c *quadTreeCell, dst []int) []int {
	if c.isLeaf() {
		return append(dst, c.particles...)
	}
	for _, ch := range c.children {
		dst = gatherParticles(ch, dst)
	}
	return dst
}

// collapseDegenerate removes internal cells with exactly one child,
// re-parenting the child. Idempotent: both build strategies already produce
// trees this pass leaves untouched.
func collapseDegenerate(c *quadTreeCell) *quadTreeCell {
	for i, ch := range c.children {
		c.children[i] = collapseDegenerate(ch)
		c.children[i].parent = c
	}
	if len(c.children) == 1 {
		child := c.children[0]
		child.parent = c.parent
		return child
	}
	return c
}

// collapseSparse discards any subtree holding at most the leaf threshold of
// particles, keeping one snapped leaf in its place. Idempotent.
func (tb *treeBuilder) collapseSparse(c *quadTreeCell) *quadTreeCell {
	if c.isLeaf() {
		return c
	}
	if c.count <= tb.threshold {
		return tb.leafFor(c.parent, gatherParticles(c, nil))
	}
	for i, ch := range c.children {
		c.children[i] = tb.collapseSparse(ch)
		c.children[i].parent = c
	}
	return c
}
