package vegas

import (
	"fmt"
	"math"

	"github.com/carbocation/genescore/wchisq"
)

// notRun marks a solver outcome that was never computed.
var notRun = wchisq.Outcome{P: math.NaN(), Fault: -1}

// Resolution is the reconciled answer of one or two solvers.
type Resolution struct {
	Status Status
	PValue float64

	// Main and Aux are the raw solver outcomes. Aux is only meaningful if
	// AuxRun is true.
	Main   wchisq.Outcome
	Aux    wchisq.Outcome
	AuxRun bool
}

// Resolver turns solver outcomes into a single p-value and status. In
// cascading mode Main is Davies and Aux is Farebrother; in single algorithm
// mode Aux is nil.
type Resolver struct {
	Main  wchisq.Solver
	Aux   wchisq.Solver
	Floor float64
}

// NewResolver builds the solvers that s asks for.
func NewResolver(s Settings) (*Resolver, error) {
	a, single, err := s.algorithm()
	if err != nil {
		return nil, fmt.Errorf("NewResolver: %w", err)
	}

	if single {
		main, err := wchisq.New(a)
		if err != nil {
			return nil, fmt.Errorf("NewResolver: %w", err)
		}
		return &Resolver{Main: main, Floor: s.PrecisionFloor}, nil
	}

	return &Resolver{
		Main:  wchisq.NewDavies(),
		Aux:   wchisq.NewFarebrother(),
		Floor: s.PrecisionFloor,
	}, nil
}

// Single reports whether only one solver is used.
func (r *Resolver) Single() bool {
	return r.Aux == nil
}

// Resolve computes P(Σ λj·Zj² > x). The auxiliary solver only runs if the
// main one fails or falls below the precision floor.
func (r *Resolver) Resolve(lambda []float64, x float64) Resolution {
	res := Resolution{
		Main: r.Main.ProbQsupx(lambda, x),
		Aux:  notRun,
	}

	if r.Single() {
		res.Status, res.PValue = single(res.Main)
		return res
	}

	if !preciseEnough(res.Main, r.Floor) {
		res.Aux = r.Aux.ProbQsupx(lambda, x)
		res.AuxRun = true
	}

	res.Status, res.PValue = cascade(res.Main, res.Aux, r.Floor)

	return res
}

func single(main wchisq.Outcome) (Status, float64) {
	if !main.OK() {
		return Fail, math.NaN()
	}
	return Converged, main.P
}

// preciseEnough is false for a NaN probability, so a converged NaN is
// treated like a tiny one.
func preciseEnough(main wchisq.Outcome, floor float64) bool {
	return main.OK() && main.P >= floor
}

// cascade is the decision table for Davies (main) and Farebrother (aux).
// aux is ignored when main is precise enough.
func cascade(main, aux wchisq.Outcome, floor float64) (Status, float64) {
	switch {
	case preciseEnough(main, floor):
		return DaviesSuccess, main.P
	case main.OK() && aux.OK():
		return DaviesLowPrecisionFarebrotherSuccess, aux.P
	case main.OK():
		return DaviesLowPrecisionFarebrotherFail, floor
	case aux.OK():
		return DaviesFailFarebrotherSuccess, aux.P
	default:
		return DaviesFailFarebrotherFail, math.NaN()
	}
}
