package multipole

import (
	"math/cmplx"
	"math/rand"
	"sync"
)

// logBranchEps nudges complex-logarithm arguments off the branch cut (the
// non-positive real axis), where the imaginary part is discontinuous and the
// origin itself is singular.
const logBranchEps = 1e-12

// expansion is a truncated potential series: coeff[0..precision] of complex
// numbers. A fresh expansion is all zeros. Depending on use it holds either
// multipole coefficients (far-field of a particle group) or local
// coefficients (field felt by a region from distant sources).
type expansion []complex128

func newExpansion(precision int) expansion { return make(expansion, precision+1) }

// binomials is a Pascal-triangle table C(n,k) for n <= maxN. Read-only after
// construction and shared across an evaluation call.
type binomials struct {
	c [][]float64
}

func newBinomials(maxN int) *binomials {
	c := make([][]float64, maxN+1)
	for n := 0; n <= maxN; n++ {
		c[n] = make([]float64, n+1)
		c[n][0] = 1
		c[n][n] = 1
		for k := 1; k < n; k++ {
			c[n][k] = c[n-1][k-1] + c[n-1][k]
		}
	}
	return &binomials{c: c}
}

func (b *binomials) at(n, k int) float64 { return b.c[n][k] }

// The tables are O(precision²) floats, so keeping one per precision across
// calls avoids rebuilding them in tight layout loops.
var (
	binomialMu    sync.Mutex
	binomialCache = map[int]*binomials{}
)

func binomialsFor(precision int) *binomials {
	binomialMu.Lock()
	defer binomialMu.Unlock()
	if t, ok := binomialCache[precision]; ok {
		return t
	}
	t := newBinomials(2 * precision)
	binomialCache[precision] = t
	return t
}

// evalContext carries the expansion order, the read-only binomial table and
// the center-jitter source for one evaluation call, so the propagator has no
// package-level mutable state.
type evalContext struct {
	p   int
	bin *binomials
	rng *rand.Rand
}

// addParticleMultipole accumulates one unit-charge particle at z into a
// multipole expansion about center: coeff[0] counts charge, coeff[k] gains
// -Δ^k/k.
func (ec *evalContext) addParticleMultipole(me expansion, z, center complex128) {
	me[0] += 1
	d := z - center
	pow := complex(1, 0)
	for k := 1; k <= ec.p; k++ {
		pow *= d
		me[k] -= pow / complex(float64(k), 0)
	}
}

// shiftMultipole translates a multipole expansion from one center to another
// and adds it into dst (multipole-to-multipole): a binomial-weighted
// convolution of the coefficients with powers of the center offset.
func (ec *evalContext) shiftMultipole(src expansion, from, to complex128, dst expansion) {
	d := from - to
	pow := make([]complex128, ec.p+1)
	pow[0] = 1
	for k := 1; k <= ec.p; k++ {
		pow[k] = pow[k-1] * d
	}
	dst[0] += src[0]
	for l := 1; l <= ec.p; l++ {
		s := -src[0] * pow[l] / complex(float64(l), 0)
		for k := 1; k <= l; k++ {
			s += src[k] * pow[l-k] * complex(ec.bin.at(l-1, k-1), 0)
		}
		dst[l] += s
	}
}

// translateMultipoleToLocal folds a multipole expansion about from into a
// local expansion about to. Only valid for well-separated centers; the
// complex logarithm of the center distance is branch-cut guarded.
func (ec *evalContext) translateMultipoleToLocal(src expansion, from, to complex128, dst expansion) {
	d := from - to
	if d == 0 {
		d = complex(logBranchEps, logBranchEps)
	}
	inv := 1 / d
	// mk[k] = src[k] * (-1/d)^k
	mk := make([]complex128, ec.p+1)
	m := -inv
	pow := complex(1, 0)
	for k := 1; k <= ec.p; k++ {
		pow *= m
		mk[k] = src[k] * pow
	}
	c0 := src[0] * guardedLog(to-from)
	for k := 1; k <= ec.p; k++ {
		c0 += mk[k]
	}
	dst[0] += c0
	invl := complex(1, 0)
	for l := 1; l <= ec.p; l++ {
		invl *= inv
		s := -src[0] / complex(float64(l), 0)
		for k := 1; k <= ec.p; k++ {
			s += mk[k] * complex(ec.bin.at(l+k-1, k-1), 0)
		}
		dst[l] += invl * s
	}
}

// shiftLocal translates a local expansion between centers and adds it into
// dst (local-to-local): the same binomial machinery applied to the local
// coefficients.
func (ec *evalContext) shiftLocal(src expansion, from, to complex128, dst expansion) {
	d := to - from
	for l := 0; l <= ec.p; l++ {
		s := complex(0, 0)
		pow := complex(1, 0)
		for k := l; k <= ec.p; k++ {
			s += src[k] * complex(ec.bin.at(k, l), 0) * pow
			pow *= d
		}
		dst[l] += s
	}
}

// addPointLocal folds a single unit particle at z into a local expansion
// about center: the single-particle specialization of the multipole-to-local
// translation.
func (ec *evalContext) addPointLocal(z, center complex128, dst expansion) {
	d := center - z
	if d == 0 {
		d = complex(logBranchEps, logBranchEps)
	}
	dst[0] += guardedLog(d)
	inv := 1 / d
	pow := complex(1, 0)
	sign := 1.0
	for l := 1; l <= ec.p; l++ {
		pow *= inv
		dst[l] += complex(sign/float64(l), 0) * pow
		sign = -sign
	}
}

// localDerivative evaluates the derivative of a local expansion at z:
// Σ k·coeff[k]·Δ^(k-1).
func (ec *evalContext) localDerivative(e expansion, z, center complex128) complex128 {
	d := z - center
	s := complex(0, 0)
	pow := complex(1, 0)
	for k := 1; k <= ec.p; k++ {
		s += complex(float64(k), 0) * e[k] * pow
		pow *= d
	}
	return s
}

// multipoleDerivative evaluates the derivative of a multipole expansion at a
// point z outside the expansion's disk of divergence.
func (ec *evalContext) multipoleDerivative(e expansion, z, center complex128) complex128 {
	d := z - center
	if d == 0 {
		d = complex(logBranchEps, logBranchEps)
	}
	inv := 1 / d
	s := e[0] * inv
	pow := inv
	for k := 1; k <= ec.p; k++ {
		pow *= inv
		s -= complex(float64(k), 0) * e[k] * pow
	}
	return s
}

// guardedLog evaluates the complex logarithm, perturbing arguments that sit
// on the branch cut so the result stays finite and single-valued.
func guardedLog(z complex128) complex128 {
	if imag(z) == 0 && real(z) <= 0 {
		z = complex(real(z)+logBranchEps, logBranchEps)
	}
	return cmplx.Log(z)
}
