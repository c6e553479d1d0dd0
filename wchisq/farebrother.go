package wchisq

import "math"

// Farebrother expands the distribution of the quadratic form in a series of
// central chi-squared distributions, following R.W. Farebrother, "Algorithm
// AS 204: The distribution of a positive linear combination of chi-squared
// random variables", Applied Statistics 33 (1984), after H. Ruben (1962).
//
// The series is summed over upper tail probabilities rather than
// distribution functions, so results far out in the tail keep their
// relative precision instead of being lost to 1-P cancellation.
//
// Fault codes:
//
//	-i  the i-th coefficient is not positive (1-based)
//	 1  the leading series coefficient underflowed
//	 2  invalid x, MaxIt, Eps or a Mode for which the series diverges
//	 4  no convergence within MaxIt terms
//	+5  result outside [0,1]
//	+6  negative density
type Farebrother struct {
	// Mode scales the expansion parameter. A positive Mode uses Mode times
	// the smallest coefficient; otherwise the harmonic mean of the smallest
	// and largest coefficients is used.
	Mode float64

	MaxIt int

	// Eps bounds the truncation error of the series relative to the tail
	// probability.
	Eps float64
}

// NewFarebrother returns a Farebrother solver whose expansion uses the
// smallest coefficient, which keeps every series term non-negative.
func NewFarebrother() *Farebrother {
	return &Farebrother{
		Mode:  1,
		MaxIt: 100000,
		Eps:   1e-14,
	}
}

// ProbQsupx returns P(Σ λj·Zj² > x).
func (f *Farebrother) ProbQsupx(lambda []float64, x float64) Outcome {
	mult := make([]int, len(lambda))
	delta := make([]float64, len(lambda))
	for i := range mult {
		mult[i] = 1
	}

	p, _, fault := f.UpperTail(lambda, mult, delta, x)

	return Outcome{P: p, Fault: fault}
}

// UpperTail evaluates P(Σ λj·χ²(mult_j, delta_j) > c) and the density at c.
func (f *Farebrother) UpperTail(lambda []float64, mult []int, delta []float64, c float64) (prob, density float64, fault int) {
	const tol = -200.0
	const minLog = -745.0
	const lnSqrtPiOver2 = 0.22579135264472743236

	n := len(lambda)
	if n < 1 || len(mult) != n || len(delta) != n || c <= 0 || f.MaxIt < 1 || f.Eps <= 0 {
		return math.NaN(), math.NaN(), 2
	}

	smallest, largest := lambda[0], lambda[0]
	for i, hold := range lambda {
		if hold <= 0 || mult[i] < 1 || delta[i] < 0 {
			return math.NaN(), math.NaN(), -(i + 1)
		}
		smallest = math.Min(smallest, hold)
		largest = math.Max(largest, hold)
	}

	beta := 2 / (1/smallest + 1/largest)
	if f.Mode > 0 {
		beta = f.Mode * smallest
	}

	gamma := make([]float64, n)
	theta := make([]float64, n)
	k := 0
	logSum, sumDelta := 0.0, 0.0
	for i, l := range lambda {
		hold := beta / l
		gamma[i] = 1 - hold
		logSum += float64(mult[i]) * math.Log(hold)
		sumDelta += delta[i]
		k += mult[i]
		theta[i] = 1
	}

	// The series converges only if every |gamma| is below 1.
	g := 0.0
	for _, gi := range gamma {
		g = math.Max(g, math.Abs(gi))
	}
	if g >= 1 {
		return math.NaN(), math.NaN(), 2
	}

	lnAo := 0.5 * (logSum - sumDelta)
	ao := math.Exp(lnAo)
	if ao <= 0 {
		return 0, 0, 1
	}

	z := c / beta

	// Upper tail and density term of chi-squared on k degrees of freedom
	var lans, dans, qans float64
	i := 2
	if k%2 == 0 {
		lans = -0.5 * z
		dans = math.Exp(lans)
		qans = dans
	} else {
		i = 1
		lans = -0.5*(z+math.Log(z)) - lnSqrtPiOver2
		dans = math.Exp(lans)
		qans = math.Erfc(math.Sqrt(0.5 * z))
	}

	k -= 2
	for j := i; j <= k; j += 2 {
		if lans < tol {
			lans += math.Log(z / float64(j))
			dans = math.Exp(lans)
		} else {
			dans *= z / float64(j)
		}
		qans += dans
	}

	// Successive terms of the expansion. The terms left out after term m
	// are bounded by bound(m), and the series stops once that bound is
	// within Eps of the running tail probability.
	prob = qans
	density = dans
	bound := tailBound(gamma, mult, delta, g, z, k+2)
	a := []float64{0}
	b := []float64{0}

	// Equal coefficients of central terms leave nothing after the first term
	converged := g == 0 && sumDelta == 0
	for m := 1; m <= f.MaxIt && !converged; m++ {
		sum1 := 0.0
		for i := 0; i < n; i++ {
			hold := theta[i]
			hold2 := hold * gamma[i]
			theta[i] = hold2
			sum1 += hold2*float64(mult[i]) + float64(m)*delta[i]*(hold-hold2)
		}
		sum1 *= 0.5
		b = append(b, sum1)
		for i := m - 1; i >= 1; i-- {
			sum1 += b[i] * a[m-i]
		}
		hold := sum1 / float64(m)
		a = append(a, hold)

		k += 2
		if lans < tol {
			lans += math.Log(z / float64(k))
			dans = math.Exp(lans)
		} else {
			dans *= z / float64(k)
		}
		qans += dans

		density += dans * hold
		prob += qans * hold

		lnTail := bound(m)
		if lnAo+lnTail < minLog || (prob > 0 && lnTail <= math.Log(f.Eps)+math.Log(prob)) {
			converged = true
		}
	}

	if !converged {
		fault = 4
	}

	density = ao * density / (beta + beta)
	prob = ao * prob
	if prob < 0 || prob > 1 {
		fault += 5
	} else if density < 0 {
		fault += 6
	}

	return prob, density, fault
}

// tailBound returns a function giving the log of an upper bound on
// Σ_{j>m} |a_j|·Q(k+2j, z), the part of the unscaled series left out after
// term m, where Q(d, z) is the chi-squared(d) upper tail at z.
//
// The a_j are the coefficients of
//
//	A(t) = exp(½ Σ_i [-mult_i·log(1-γ_i·t) + δ_i·(1-γ_i)·t/(1-γ_i·t)])
//
// and are dominated by those of A⁺, the same function with every γ_i replaced
// by |γ_i|. For 1 <= r < s < 1/g, Q(d, z) <= exp(-z(1-1/r)/2)·r^(d/2) and
// Σ_{j>m} |a_j|·r^j <= A⁺(s)·(r/s)^(m+1). r is chosen per term to minimize
// the bound.
func tailBound(gamma []float64, mult []int, delta []float64, g, z float64, k int) func(m int) float64 {
	s := 16.0
	if g > 1.0/256 {
		s = 1 / math.Sqrt(g)
	}

	logA := 0.0
	for i, gi := range gamma {
		d := 1 - math.Abs(gi)*s
		logA += 0.5 * (-float64(mult[i])*math.Log(d) + delta[i]*(1-gi)*s/d)
	}

	logS := math.Log(s)
	rMax := math.Sqrt(s)
	half := 0.5 * float64(k)

	return func(m int) float64 {
		next := float64(m + 1)
		r := math.Max(1, math.Min(rMax, z/(float64(k)+2*next)))
		logR := math.Log(r)
		return logA - 0.5*z*(1-1/r) + half*logR + next*(logR-logS)
	}
}
