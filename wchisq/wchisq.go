// Package wchisq computes upper tail probabilities of weighted sums of
// independent chi-squared(1) variables, P(Σ λj·Zj² > x). Three algorithms are
// provided; each reports an integer fault code alongside its probability, and
// only a zero fault code means the probability can be trusted.
package wchisq

import (
	"fmt"
	"strings"
)

// Outcome is the result of one solver invocation.
type Outcome struct {
	P     float64
	Fault int
}

// OK reports whether the solver vouches for P.
func (o Outcome) OK() bool {
	return o.Fault == 0
}

// Solver is implemented by each tail probability algorithm. Implementations
// hold only configuration and may be shared between goroutines.
type Solver interface {
	ProbQsupx(lambda []float64, x float64) Outcome
}

// Algorithm identifies a Solver implementation.
type Algorithm int

const (
	AlgorithmDavies Algorithm = iota
	AlgorithmFarebrother
	AlgorithmImhof
)

var algorithmNames = [...]string{
	AlgorithmDavies:      "davies",
	AlgorithmFarebrother: "farebrother",
	AlgorithmImhof:       "imhof",
}

func (a Algorithm) String() string {
	if a < 0 || int(a) >= len(algorithmNames) {
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
	return algorithmNames[a]
}

// ParseAlgorithm maps a case-insensitive algorithm name onto an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	for i, v := range algorithmNames {
		if strings.EqualFold(name, v) {
			return Algorithm(i), nil
		}
	}

	return 0, fmt.Errorf("Algorithm %q is not found. Valid algorithm names include: %s", name, strings.Join(algorithmNames[:], ", "))
}

// New returns a solver with default settings for the algorithm. Imhof
// requires a numerical integration backend and fails with ErrNoIntegrator if
// none was compiled in.
func New(a Algorithm) (Solver, error) {
	switch a {
	case AlgorithmDavies:
		return NewDavies(), nil
	case AlgorithmFarebrother:
		return NewFarebrother(), nil
	case AlgorithmImhof:
		im, err := NewImhof(nil)
		if err != nil {
			return nil, err
		}
		return im, nil
	}

	return nil, fmt.Errorf("New: unknown algorithm %v", a)
}
