package wchisq

import "math"

// Davies inverts the characteristic function of the quadratic form
// numerically, following R.B. Davies, "Algorithm AS 155: The distribution of
// a linear combination of chi-squared random variables", Applied Statistics
// 29 (1980).
//
// Fault codes:
//
//	1  required accuracy not achieved within Lim integration terms
//	2  round-off error possibly significant
//	3  invalid parameters
//	4  unable to locate integration parameters
//
// A fault code of 2 still comes with a probability.
type Davies struct {
	// Acc is the maximum absolute error of the distribution function.
	Acc float64

	// Lim is the maximum number of integration terms.
	Lim int
}

// NewDavies returns a Davies solver accurate to 1e-12, which is also the
// default precision floor used when resolving gene scores.
func NewDavies() *Davies {
	return &Davies{
		Acc: 1e-12,
		Lim: 1000000,
	}
}

// ProbQsupx returns P(Σ λj·Zj² > x).
func (d *Davies) ProbQsupx(lambda []float64, x float64) Outcome {
	nc := make([]float64, len(lambda))
	df := make([]int, len(lambda))
	for i := range df {
		df[i] = 1
	}

	cdf, fault := d.CDF(lambda, nc, df, 0, x)
	if cdf < 0 {
		return Outcome{P: math.NaN(), Fault: fault}
	}

	return Outcome{P: 1 - cdf, Fault: fault}
}

// CDF evaluates P(Σ λj·χ²(df_j, nc_j) + sigma·Z < c). If no value could be
// computed, the returned probability is -1 and the fault code says why.
func (d *Davies) CDF(lb, nc []float64, df []int, sigma, c float64) (qfval float64, fault int) {
	q := &qf{
		lb:     lb,
		nc:     nc,
		n:      df,
		r:      len(lb),
		c:      c,
		lim:    d.Lim,
		th:     make([]int, len(lb)),
		ndtsrt: true,
	}

	qfval = -1
	defer func() {
		if rec := recover(); rec != nil {
			if _, ok := rec.(termLimitReached); !ok {
				panic(rec)
			}
			qfval, fault = -1, 4
		}
	}()

	if len(nc) != q.r || len(df) != q.r {
		return -1, 3
	}

	acc1 := d.Acc
	xlim := float64(d.Lim)

	// Mean, variance and extreme coefficients; validate the parameters.
	q.sigsq = sigma * sigma
	sd := q.sigsq
	for j := 0; j < q.r; j++ {
		nj, lj, ncj := float64(df[j]), lb[j], nc[j]
		if df[j] < 0 || ncj < 0 {
			return -1, 3
		}
		sd += lj * lj * (2*nj + 4*ncj)
		q.mean += lj * (nj + ncj)
		if q.lmax < lj {
			q.lmax = lj
		} else if q.lmin > lj {
			q.lmin = lj
		}
	}

	if sd == 0 {
		if c > 0 {
			return 1, 0
		}
		return 0, 0
	}
	if q.lmin == 0 && q.lmax == 0 && sigma == 0 {
		return -1, 3
	}

	sd = math.Sqrt(sd)
	almx := q.lmax
	if almx < -q.lmin {
		almx = -q.lmin
	}

	// Truncation point with no convergence factor
	utx := q.findu(16/sd, 0.5*acc1)
	up := 4.5 / sd
	un := -up

	// Does a convergence factor help?
	if c != 0 && almx > 0.07*sd {
		tausq := 0.25 * acc1 / q.cfe(c)
		if q.fail {
			q.fail = false
		} else if q.truncation(utx, tausq) < 0.2*acc1 {
			q.sigsq += tausq
			utx = q.findu(utx, 0.25*acc1)
		}
	}
	acc1 *= 0.5

	var intv, xnt float64
	for {
		// Range of the distribution; quit if c is outside it.
		d1 := q.ctff(acc1, &up) - c
		if d1 < 0 {
			return 1, 0
		}
		d2 := c - q.ctff(acc1, &un)
		if d2 < 0 {
			return 0, 0
		}

		intv = 2 * math.Pi / math.Max(d1, d2)

		// Terms required for the main and auxiliary integrations
		xnt = utx / intv
		xntm := 3 / math.Sqrt(acc1)
		if xnt <= xntm*1.5 {
			break
		}

		if xntm > xlim {
			return -1, 1
		}
		ntm := int(math.Floor(xntm + 0.5))
		intv1 := utx / float64(ntm)
		x := 2 * math.Pi / intv1
		if x <= math.Abs(c) {
			break
		}

		tausq := 0.33 * acc1 / (1.1 * (q.cfe(c-x) + q.cfe(c+x)))
		if q.fail {
			break
		}
		acc1 *= 0.67

		q.integrate(ntm, intv1, tausq, false)
		xlim -= xntm
		q.sigsq += tausq

		// New truncation point with the new convergence factor
		utx = q.findu(utx, 0.25*acc1)
		acc1 *= 0.75
	}

	// Main integration
	if xnt > xlim {
		return -1, 1
	}
	nt := int(math.Floor(xnt + 0.5))
	q.integrate(nt, intv, 0, true)
	qfval = 0.5 - q.intl

	// Round-off could be significant if acc/10 vanishes against the error
	// sum. Checked at several radices.
	up = q.ersm
	x := up + d.Acc/10
	for _, rat := range [...]float64{1, 2, 4, 8} {
		if rat*x == rat*up {
			fault = 2
		}
	}

	return qfval, fault
}

// termLimitReached unwinds the integration once the term budget is spent.
type termLimitReached struct{}

// qf carries the working state of a single CDF evaluation.
type qf struct {
	lb, nc []float64
	n      []int
	th     []int
	r      int

	sigsq, lmax, lmin, mean, c float64
	intl, ersm                 float64

	count, lim   int
	ndtsrt, fail bool
}

func (q *qf) counter() {
	q.count++
	if q.count > q.lim {
		panic(termLimitReached{})
	}
}

// order fills th with the indices of lb by decreasing absolute value.
func (q *qf) order() {
	for j := 0; j < q.r; j++ {
		lj := math.Abs(q.lb[j])
		k := j - 1
		for ; k >= 0; k-- {
			if lj <= math.Abs(q.lb[q.th[k]]) {
				break
			}
			q.th[k+1] = q.th[k]
		}
		q.th[k+1] = j
	}
	q.ndtsrt = false
}

// errbd bounds the tail probability using the moment generating function
// and returns the corresponding cutoff point.
func (q *qf) errbd(u float64) (bound, cx float64) {
	q.counter()

	xconst := u * q.sigsq
	sum1 := u * xconst
	u *= 2
	for j := q.r - 1; j >= 0; j-- {
		nj, lj, ncj := float64(q.n[j]), q.lb[j], q.nc[j]
		x := u * lj
		y := 1 - x
		xconst += lj * (ncj/y + nj) / y
		sum1 += ncj*(x/y)*(x/y) + nj*(x*x/y+log1(-x, false))
	}

	return exp1(-0.5 * sum1), xconst
}

// ctff finds a cutoff c such that P(Q > c) < accx if *upn > 0, or
// P(Q < c) < accx otherwise.
func (q *qf) ctff(accx float64, upn *float64) float64 {
	u2 := *upn
	u1 := 0.0
	c1 := q.mean
	rb := 2 * q.lmin
	if u2 > 0 {
		rb = 2 * q.lmax
	}

	var c2 float64
	for {
		bound, cx := q.errbd(u2 / (1 + u2*rb))
		c2 = cx
		if bound <= accx {
			break
		}
		u1, c1 = u2, c2
		u2 *= 2
	}

	for u := (c1 - q.mean) / (c2 - q.mean); u < 0.9; u = (c1 - q.mean) / (c2 - q.mean) {
		u = (u1 + u2) / 2
		bound, xconst := q.errbd(u / (1 + u*rb))
		if bound > accx {
			u1, c1 = u, xconst
		} else {
			u2, c2 = u, xconst
		}
	}

	*upn = u2
	return c2
}

// truncation bounds the integration error due to truncating at u.
func (q *qf) truncation(u, tausq float64) float64 {
	q.counter()

	var sum1, prod2, prod3 float64
	s := 0
	sum2 := (q.sigsq + tausq) * u * u
	prod1 := 2 * sum2
	u *= 2
	for j := 0; j < q.r; j++ {
		lj, ncj, nj := q.lb[j], q.nc[j], float64(q.n[j])
		x := (u * lj) * (u * lj)
		sum1 += ncj * x / (1 + x)
		if x > 1 {
			prod2 += nj * math.Log(x)
			prod3 += nj * log1(x, true)
			s += q.n[j]
		} else {
			prod1 += nj * log1(x, true)
		}
	}
	sum1 *= 0.5
	prod2 += prod1
	prod3 += prod1

	x := exp1(-sum1-0.25*prod2) / math.Pi
	y := exp1(-sum1-0.25*prod3) / math.Pi

	err1 := 1.0
	if s != 0 {
		err1 = x * 2 / float64(s)
	}
	err2 := 1.0
	if prod3 > 1 {
		err2 = 2.5 * y
	}
	if err2 < err1 {
		err1 = err2
	}

	x = 0.5 * sum2
	err2 = 1.0
	if x > y {
		err2 = y / x
	}

	return math.Min(err1, err2)
}

// findu returns u such that truncation(u) < accx and truncation(u/1.2) > accx.
func (q *qf) findu(ut, accx float64) float64 {
	u := ut / 4
	if q.truncation(u, 0) > accx {
		for u = ut; q.truncation(u, 0) > accx; u = ut {
			ut *= 4
		}
	} else {
		ut = u
		for u /= 4; q.truncation(u, 0) <= accx; u /= 4 {
			ut = u
		}
	}

	for _, divis := range [...]float64{2, 1.4, 1.2, 1.1} {
		u = ut / divis
		if q.truncation(u, 0) <= accx {
			ut = u
		}
	}

	return ut
}

// integrate carries out the integration with nterm terms at stepsize interv.
// Unless mainx, the integrand is multiplied by 1-exp(-tausq·u²/2).
func (q *qf) integrate(nterm int, interv, tausq float64, mainx bool) {
	inpi := interv / math.Pi
	for k := nterm; k >= 0; k-- {
		u := (float64(k) + 0.5) * interv
		sum1 := -2 * u * q.c
		sum2 := math.Abs(sum1)
		sum3 := -0.5 * q.sigsq * u * u
		for j := q.r - 1; j >= 0; j-- {
			nj := float64(q.n[j])
			x := 2 * q.lb[j] * u
			y := x * x
			sum3 -= 0.25 * nj * log1(y, true)
			y = q.nc[j] * x / (1 + y)
			z := nj*math.Atan(x) + y
			sum1 += z
			sum2 += math.Abs(z)
			sum3 -= 0.5 * x * y
		}

		x := inpi * exp1(sum3) / u
		if !mainx {
			x *= 1 - exp1(-0.5*tausq*u*u)
		}
		q.intl += math.Sin(0.5*sum1) * x
		q.ersm += 0.5 * sum2 * x
	}
}

// cfe is the coefficient of tausq in the error when the convergence factor
// exp(-tausq·u²/2) is used and the distribution is evaluated at x.
func (q *qf) cfe(x float64) float64 {
	const log28 = 0.0866 // log(2)/8

	q.counter()
	if q.ndtsrt {
		q.order()
	}

	axl := math.Abs(x)
	sxl := -1.0
	if x > 0 {
		sxl = 1
	}

	sum1 := 0.0
	for j := q.r - 1; j >= 0; j-- {
		t := q.th[j]
		if q.lb[t]*sxl <= 0 {
			continue
		}

		lj := math.Abs(q.lb[t])
		axl1 := axl - lj*(float64(q.n[t])+q.nc[t])
		axl2 := lj / log28
		if axl1 > axl2 {
			axl = axl1
			continue
		}

		if axl > axl2 {
			axl = axl2
		}
		sum1 = (axl - axl1) / lj
		for k := j - 1; k >= 0; k-- {
			sum1 += float64(q.n[q.th[k]]) + q.nc[q.th[k]]
		}
		break
	}

	if sum1 > 100 {
		q.fail = true
		return 1
	}

	return math.Pow(2, sum1/4) / (math.Pi * axl * axl)
}

func exp1(x float64) float64 {
	if x < -50 {
		return 0
	}
	return math.Exp(x)
}

// log1 returns log(1+x) if first, else log(1+x)-x, keeping precision for
// small x.
func log1(x float64, first bool) float64 {
	if math.Abs(x) > 0.1 {
		if first {
			return math.Log1p(x)
		}
		return math.Log1p(x) - x
	}

	y := x / (2 + x)
	term := 2 * y * y * y
	k := 3.0
	s := -x * y
	if first {
		s = 2 * y
	}
	y *= y
	for s1 := s + term/k; s1 != s; s1 = s + term/k {
		k += 2
		term *= y
		s = s1
	}

	return s
}
