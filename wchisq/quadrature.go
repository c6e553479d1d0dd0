//go:build !noquadrature

package wchisq

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"
)

// roundoff is the relative disagreement between rules that is attributed to
// floating point error rather than to the rules themselves.
const roundoff = 50 * 2.220446049250313e-16

func defaultBackend() Integrator {
	return NewAdaptiveLegendre()
}

// AdaptiveLegendre is an adaptive Gauss-Legendre integrator built on gonum's
// quadrature rules. Each interval is integrated with a low and a high order
// rule; intervals where the two disagree by more than their share of the
// tolerance are bisected, up to MaxDepth times. Disagreement at the level of
// rounding error in the result is always accepted.
type AdaptiveLegendre struct {
	MaxDepth int

	lowX, lowW   []float64
	highX, highW []float64
}

// NewAdaptiveLegendre returns an integrator comparing 10- and 20-point
// Gauss-Legendre rules.
func NewAdaptiveLegendre() *AdaptiveLegendre {
	return NewAdaptiveLegendreOrder(10, 20, 16)
}

// NewAdaptiveLegendreOrder returns an integrator comparing rules of the two
// given orders, bisecting at most maxDepth times.
func NewAdaptiveLegendreOrder(low, high, maxDepth int) *AdaptiveLegendre {
	al := &AdaptiveLegendre{
		MaxDepth: maxDepth,
		lowX:     make([]float64, low),
		lowW:     make([]float64, low),
		highX:    make([]float64, high),
		highW:    make([]float64, high),
	}

	// Nodes on [-1, 1], mapped onto each interval on use
	quad.Legendre{}.FixedLocations(al.lowX, al.lowW, -1, 1)
	quad.Legendre{}.FixedLocations(al.highX, al.highW, -1, 1)

	return al
}

// Integrate satisfies Integrator.
func (al *AdaptiveLegendre) Integrate(f func(float64) float64, a, b, tol float64) (value, abserr float64, ok bool) {
	return al.integrate(f, a, b, tol, 0)
}

func (al *AdaptiveLegendre) integrate(f func(float64) float64, a, b, tol float64, depth int) (float64, float64, bool) {
	lo := rule(f, a, b, al.lowX, al.lowW)
	hi := rule(f, a, b, al.highX, al.highW)
	abserr := math.Abs(hi - lo)

	if abserr <= tol || abserr <= roundoff*math.Abs(hi) || math.IsNaN(abserr) {
		return hi, abserr, !math.IsNaN(abserr)
	}
	if depth >= al.MaxDepth {
		return hi, abserr, false
	}

	mid := 0.5 * (a + b)
	left, leftErr, leftOK := al.integrate(f, a, mid, 0.5*tol, depth+1)
	right, rightErr, rightOK := al.integrate(f, mid, b, 0.5*tol, depth+1)

	return left + right, leftErr + rightErr, leftOK && rightOK
}

// rule applies the Gauss rule with nodes x and weights w on [-1, 1] to [a, b].
func rule(f func(float64) float64, a, b float64, x, w []float64) float64 {
	half := 0.5 * (b - a)
	center := 0.5 * (a + b)

	var sum float64
	for i, xi := range x {
		sum += w[i] * f(center+half*xi)
	}

	return half * sum
}
