package wchisq

import (
	"errors"
	"math"
)

// ErrNoIntegrator is returned when Imhof is requested but no numerical
// integration backend is available.
var ErrNoIntegrator = errors.New("wchisq: Imhof requires a numerical integration backend, and none was compiled in")

// Integrator integrates f over [a, b]. abserr estimates the absolute error
// of value; ok is false if the backend could not reach tol.
type Integrator interface {
	Integrate(f func(float64) float64, a, b, tol float64) (value, abserr float64, ok bool)
}

// Imhof evaluates the inversion formula of J.P. Imhof, "Computing the
// distribution of quadratic forms in normal variables", Biometrika 48 (1961):
//
//	P(Q > x) = 1/2 + 1/π ∫₀^∞ sin θ(u) / (u·ρ(u)) du
//
// with θ(u) = ½·Σ atan(λj·u) − ½·x·u and ρ(u) = Π (1+λj²u²)^¼.
//
// Fault codes:
//
//	1  the backend did not reach the requested accuracy, or the integral
//	   needs more than Limit subintervals
//	2  the result lies outside [0,1]
type Imhof struct {
	// EpsAbs is the target absolute error of the probability.
	EpsAbs float64

	// Limit caps the number of subintervals handed to the backend.
	Limit int

	backend Integrator
}

// NewImhof returns an Imhof solver on the given backend. A nil backend
// selects the compiled-in default, if there is one.
func NewImhof(backend Integrator) (*Imhof, error) {
	if backend == nil {
		backend = defaultBackend()
	}
	if backend == nil {
		return nil, ErrNoIntegrator
	}

	return &Imhof{
		EpsAbs:  1e-10,
		Limit:   1000000,
		backend: backend,
	}, nil
}

// ProbQsupx returns P(Σ λj·Zj² > x).
func (im *Imhof) ProbQsupx(lambda []float64, x float64) Outcome {
	if len(lambda) < 1 {
		return Outcome{P: math.NaN(), Fault: 1}
	}

	// The form is a positive combination, so it exceeds any non-positive x
	// almost surely.
	if x <= 0 {
		return Outcome{P: 1}
	}

	f := func(u float64) float64 {
		if u == 0 {
			var sum float64
			for _, l := range lambda {
				sum += l
			}
			return 0.5 * (sum - x)
		}

		theta := -0.5 * x * u
		logRho := 0.0
		for _, l := range lambda {
			theta += 0.5 * math.Atan(l*u)
			logRho += 0.25 * math.Log1p(l*l*u*u)
		}

		return math.Sin(theta) / (u * math.Exp(logRho))
	}

	upper := im.truncationPoint(lambda, x)

	// Split [0, upper] into pieces no longer than half the shortest period of
	// sin θ, so that each piece is smooth for the backend.
	var maxRate float64
	for _, l := range lambda {
		maxRate += 0.5 * l
	}
	maxRate += 0.5 * x
	pieces := math.Ceil(upper * maxRate / math.Pi)
	if pieces > float64(im.Limit) {
		return Outcome{P: math.NaN(), Fault: 1}
	}
	n := int(math.Max(pieces, 1))

	// The integral is divided by π, and half the error budget went to the
	// truncation.
	tol := 0.5 * im.EpsAbs * math.Pi / float64(n)
	width := upper / float64(n)

	var integral float64
	fault := 0
	for i := 0; i < n; i++ {
		a := float64(i) * width
		b := a + width
		if i == n-1 {
			b = upper
		}
		v, _, ok := im.backend.Integrate(f, a, b, tol)
		if !ok {
			fault = 1
		}
		integral += v
	}

	p := 0.5 + integral/math.Pi
	if fault == 0 && (p < -im.EpsAbs || p > 1+im.EpsAbs) {
		fault = 2
	}

	return Outcome{P: p, Fault: fault}
}

// truncationPoint returns U such that the part of the integral beyond U
// contributes at most EpsAbs/2 to the probability. Two bounds are used:
// Imhof's bound on ∫ 1/(u·ρ(u)), and, since θ'(u) tends to −x/2, the
// alternating-series bound 8·g(U)/x with g(u) = 1/(u·ρ(u)) once |θ'| ≥ x/4.
func (im *Imhof) truncationPoint(lambda []float64, x float64) float64 {
	eps := 0.5 * im.EpsAbs
	k := 0.5 * float64(len(lambda))

	var sumLog float64
	for _, l := range lambda {
		sumLog += math.Log(l)
	}
	imhofU := math.Exp((-math.Log(math.Pi*k*eps) - 0.5*sumLog) / k)

	g := func(u float64) float64 {
		logRho := 0.0
		for _, l := range lambda {
			logRho += 0.25 * math.Log1p(l*l*u*u)
		}
		return 1 / (u * math.Exp(logRho))
	}
	rate := func(u float64) float64 {
		var sum float64
		for _, l := range lambda {
			sum += l / (1 + l*l*u*u)
		}
		return 0.5 * sum
	}

	u := 1.0
	for u < imhofU {
		if rate(u) <= x/4 && 8*g(u)/(math.Pi*x) <= eps {
			return u
		}
		u *= 2
	}

	return imhofU
}
