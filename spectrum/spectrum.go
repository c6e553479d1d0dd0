// Package spectrum turns a variant covariance matrix and a weight vector into
// the eigenvalue spectrum of the weighted quadratic form whose tail
// probability yields a gene score.
package spectrum

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultCutoffFraction is the share of the positive eigenvalue mass that the
// retained spectrum must account for unless configured otherwise.
const DefaultCutoffFraction = 0.9999

var (
	ErrNonConvergentDecomposition = errors.New("spectrum: eigendecomposition failed to converge")
	ErrNoPositiveEigenvalues      = errors.New("spectrum: no positive eigenvalues")
	ErrDimensionMismatch          = errors.New("spectrum: dimension mismatch")
	ErrNegativeWeight             = errors.New("spectrum: negative weight")
	ErrInvalidCutoff              = errors.New("spectrum: cutoff fraction must be in (0,1]")
)

// Spectrum holds the retained eigenvalues, largest first. Every value is
// strictly positive and a valid Spectrum is never empty.
type Spectrum []float64

// Total returns the sum of the retained eigenvalues.
func (s Spectrum) Total() float64 {
	return floats.Sum(s)
}

// Build computes the spectrum of factorᵀ·diag(weights)·factor, where factor is
// a square root of cov with its negative eigenvalues clipped to zero, and
// trims it to the leading eigenvalues carrying cutoffFraction of the positive
// mass. cov is not modified.
func Build(cov mat.Symmetric, weights []float64, cutoffFraction float64) (Spectrum, error) {
	if !(cutoffFraction > 0 && cutoffFraction <= 1) {
		return nil, fmt.Errorf("Build: %v: %w", cutoffFraction, ErrInvalidCutoff)
	}

	n := cov.SymmetricDim()
	if n < 1 {
		return nil, fmt.Errorf("Build: empty covariance matrix: %w", ErrDimensionMismatch)
	}
	if len(weights) != n {
		return nil, fmt.Errorf("Build: %d weights for %d variants: %w", len(weights), n, ErrDimensionMismatch)
	}
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return nil, fmt.Errorf("Build: weight %d is %v: %w", i, w, ErrNegativeWeight)
		}
	}

	factor, err := SqrtFactor(cov)
	if err != nil {
		return nil, err
	}

	values, err := sortedEigenvalues(reweight(factor, weights))
	if err != nil {
		return nil, err
	}

	out := Trim(values, cutoffFraction)
	if len(out) < 1 {
		return nil, fmt.Errorf("Build: %w", ErrNoPositiveEigenvalues)
	}

	return out, nil
}

// SqrtFactor returns V·diag(sqrt(max(λ,0))) for the eigendecomposition
// cov = V·diag(λ)·Vᵀ, so that factor·factorᵀ is cov with its negative
// eigenvalues clipped.
func SqrtFactor(cov mat.Symmetric) (*mat.Dense, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return nil, fmt.Errorf("SqrtFactor: %w", ErrNonConvergentDecomposition)
	}

	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// Scale column j of V by sqrt(λj)
	n := len(values)
	factor := mat.NewDense(n, n, nil)
	for j, v := range values {
		s := math.Sqrt(math.Max(v, 0))
		for i := 0; i < n; i++ {
			factor.Set(i, j, vectors.At(i, j)*s)
		}
	}

	return factor, nil
}

// reweight forms factorᵀ·diag(weights)·factor. The product is symmetric in
// exact arithmetic; the two triangles are averaged to remove rounding skew.
func reweight(factor *mat.Dense, weights []float64) *mat.SymDense {
	n, _ := factor.Dims()

	var scaled mat.Dense
	scaled.Apply(func(i, j int, v float64) float64 {
		return v * weights[i]
	}, factor)

	var prod mat.Dense
	prod.Mul(factor.T(), &scaled)

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, 0.5*(prod.At(i, j)+prod.At(j, i)))
		}
	}

	return out
}

// sortedEigenvalues returns the eigenvalues of m, largest first. Equal values
// keep the order in which the decomposition produced them.
func sortedEigenvalues(m mat.Symmetric) ([]float64, error) {
	var eig mat.EigenSym
	if ok := eig.Factorize(m, false); !ok {
		return nil, fmt.Errorf("sortedEigenvalues: %w", ErrNonConvergentDecomposition)
	}

	values := eig.Values(nil)
	sort.SliceStable(values, func(i, j int) bool { return values[i] > values[j] })

	return values, nil
}

// Trim returns the shortest prefix of the descending values whose sum reaches
// cutoffFraction of the sum of all positive values. Non-positive values are
// never retained, so the result is empty only if no value is positive.
func Trim(values []float64, cutoffFraction float64) Spectrum {
	var total float64
	positive := 0
	for _, v := range values {
		if v <= 0 {
			break
		}
		total += v
		positive++
	}

	target := cutoffFraction * total
	var cumulative float64
	k := 0
	for _, v := range values[:positive] {
		cumulative += v
		k++
		if cumulative >= target {
			break
		}
	}

	out := make(Spectrum, k)
	copy(out, values[:k])

	return out
}
