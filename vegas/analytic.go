package vegas

import (
	"errors"
	"fmt"
	"math"

	"github.com/carbocation/genescore/spectrum"
	"github.com/carbocation/genescore/wchisq"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrNoScores     = errors.New("no variant scores")
	ErrInvalidScore = errors.New("variant score is not a finite statistic")
)

// ScoreResult describes the last computation of an AnalyticVegas.
type ScoreResult struct {
	// PValue is -1 until a score is computed and NaN if the solvers failed.
	PValue float64

	Status    Status
	NumInputs int

	// TestStatistic is -1 until a score is computed.
	TestStatistic float64

	// NumEigenvalues is the length of the retained spectrum.
	NumEigenvalues int

	// Raw solver outcomes. Main has Fault -1 if no solver ran, as when the
	// closed form applies.
	Main   wchisq.Outcome
	Aux    wchisq.Outcome
	AuxRun bool
}

func newScoreResult(numInputs int) ScoreResult {
	return ScoreResult{
		PValue:        -1,
		TestStatistic: -1,
		Status:        NotRun,
		NumInputs:     numInputs,
		Main:          notRun,
		Aux:           notRun,
	}
}

// AnalyticVegas computes gene p-values analytically from the eigenvalues of
// the weighted variant covariance. It keeps the result of the last call, so
// an AnalyticVegas must not be shared between goroutines.
type AnalyticVegas struct {
	settings Settings
	resolver *Resolver
	result   ScoreResult

	build func(cov mat.Symmetric, weights []float64, cutoffFraction float64) (spectrum.Spectrum, error)
}

// NewAnalyticVegas validates s and prepares its solvers. It fails if s asks
// for Imhof and no integration backend is available.
func NewAnalyticVegas(s Settings) (*AnalyticVegas, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("NewAnalyticVegas: %w", err)
	}

	r, err := NewResolver(s)
	if err != nil {
		return nil, fmt.Errorf("NewAnalyticVegas: %w", err)
	}

	return &AnalyticVegas{
		settings: s,
		resolver: r,
		result:   newScoreResult(0),
		build:    spectrum.Build,
	}, nil
}

func (av *AnalyticVegas) Settings() Settings {
	return av.settings
}

// Result returns the outcome of the last ComputeScore call.
func (av *AnalyticVegas) Result() ScoreResult {
	return av.result
}

// ComputeScore scores one gene. Nothing from a previous call carries over.
//
// Invalid input yields an error and leaves the result at its initial values.
// If an eigendecomposition does not converge, the status is Fail, the p-value
// is NaN and the error wraps spectrum.ErrNonConvergentDecomposition. The
// boolean depends on the status alone: it is false only when both cascading
// solvers failed, so callers must check the error to detect bad input.
func (av *AnalyticVegas) ComputeScore(in Input) (bool, error) {
	av.result = newScoreResult(len(in.Scores))

	weights, err := av.checkInput(in)
	if err != nil {
		return av.succeeded(), fmt.Errorf("ComputeScore: %w", err)
	}

	stat := av.testStatistic(in.Scores, weights)

	lambda, err := av.build(in.Covariance, weights, av.settings.CutoffFraction)
	if errors.Is(err, spectrum.ErrNonConvergentDecomposition) {
		av.result.TestStatistic = stat
		av.result.Status = Fail
		av.result.PValue = math.NaN()
		return av.succeeded(), fmt.Errorf("ComputeScore: %w", err)
	} else if err != nil {
		return av.succeeded(), fmt.Errorf("ComputeScore: %w", err)
	}

	av.result.TestStatistic = stat
	av.result.NumEigenvalues = len(lambda)

	// A single eigenvalue means the statistic is a scaled chi-squared(1).
	if len(lambda) == 1 {
		av.result.PValue = distuv.ChiSquared{K: 1}.Survival(stat / lambda[0])
		av.result.Status = NotRun
		return av.succeeded(), nil
	}

	res := av.resolver.Resolve(lambda, stat)
	av.result.PValue = res.PValue
	av.result.Status = res.Status
	av.result.Main = res.Main
	av.result.Aux = res.Aux
	av.result.AuxRun = res.AuxRun

	return av.succeeded(), nil
}

func (av *AnalyticVegas) succeeded() bool {
	return av.result.Status != DaviesFailFarebrotherFail
}

// checkInput validates in and returns the weights to use.
func (av *AnalyticVegas) checkInput(in Input) ([]float64, error) {
	if len(in.Scores) == 0 {
		return nil, ErrNoScores
	}

	if in.Covariance == nil {
		return nil, fmt.Errorf("%w: no covariance matrix", spectrum.ErrDimensionMismatch)
	}
	if n := in.Covariance.SymmetricDim(); n != len(in.Scores) {
		return nil, fmt.Errorf("%w: %d scores but a %dx%d covariance matrix", spectrum.ErrDimensionMismatch, len(in.Scores), n, n)
	}

	for i, v := range in.Scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: score %d is %v", ErrInvalidScore, i, v)
		}
		if av.settings.StatisticMode == StatisticChiSquared && v < 0 {
			return nil, fmt.Errorf("%w: chi-squared score %d is negative (%v)", ErrInvalidScore, i, v)
		}
	}

	weights := in.Weights
	if weights == nil {
		weights = make([]float64, len(in.Scores))
		for i := range weights {
			weights[i] = 1
		}
	}
	if len(weights) != len(in.Scores) {
		return nil, fmt.Errorf("%w: %d scores but %d weights", spectrum.ErrDimensionMismatch, len(in.Scores), len(weights))
	}
	for i, w := range weights {
		if math.IsNaN(w) || w < 0 {
			return nil, fmt.Errorf("%w: weight %d is %v", spectrum.ErrNegativeWeight, i, w)
		}
	}

	return weights, nil
}

func (av *AnalyticVegas) testStatistic(scores, weights []float64) float64 {
	var stat float64
	for i, v := range scores {
		if av.settings.StatisticMode == StatisticChiSquared {
			stat += v * weights[i]
		} else {
			stat += v * v * weights[i]
		}
	}
	return stat
}

// Score returns the p-value.
func (av *AnalyticVegas) Score() []float64 {
	return []float64{av.result.PValue}
}

func (av *AnalyticVegas) ResultsString() string {
	return fmt.Sprintf("\t%d\t%s\t%s", av.result.NumInputs, Scientific(av.result.PValue), av.result.Status)
}

func (av *AnalyticVegas) ResultsHeader() string {
	return "\tnumSnps\tpvalue\tStatus"
}

// ConsoleOutput is the status name in detailed mode, and empty otherwise.
func (av *AnalyticVegas) ConsoleOutput() string {
	if av.settings.DetailedOutput {
		return av.result.Status.String()
	}
	return ""
}

func (av *AnalyticVegas) NoScoreOutput() string {
	return Scientific(av.result.PValue) + "\t" + av.result.Status.String()
}

func (av *AnalyticVegas) NoScoreHeader() string {
	return "Score\tStatus"
}

func (av *AnalyticVegas) TypeString() string {
	return "sum"
}
