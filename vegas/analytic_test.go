package vegas

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/carbocation/genescore/spectrum"
	"github.com/carbocation/genescore/wchisq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

func identity(n int) *mat.SymDense {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.SetSym(i, i, 1)
	}
	return m
}

// zscores returns n equal z-scores whose squares sum to stat.
func zscores(n int, stat float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sqrt(stat / float64(n))
	}
	return out
}

func newEngine(t *testing.T, s Settings) *AnalyticVegas {
	t.Helper()
	av, err := NewAnalyticVegas(s)
	require.NoError(t, err)
	return av
}

func TestSingleEigenvalueClosedForm(t *testing.T) {
	av := newEngine(t, DefaultSettings())

	ok, err := av.ComputeScore(Input{
		Scores:     []float64{math.Sqrt(3.841459)},
		Covariance: identity(1),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	res := av.Result()
	assert.InDelta(t, 0.05, res.PValue, 1e-7)
	assert.InDelta(t, distuv.ChiSquared{K: 1}.Survival(3.841459), res.PValue, 1e-12)
	assert.Equal(t, NotRun, res.Status)
	assert.Equal(t, 1, res.NumEigenvalues)
	assert.Equal(t, 1, res.NumInputs)
	assert.InDelta(t, 3.841459, res.TestStatistic, 1e-12)
	assert.Equal(t, -1, res.Main.Fault)
	assert.False(t, res.AuxRun)
}

func TestPerfectlyCorrelatedVariants(t *testing.T) {
	av := newEngine(t, DefaultSettings())

	cov := mat.NewSymDense(3, []float64{
		1, 1, 1,
		1, 1, 1,
		1, 1, 1,
	})
	ok, err := av.ComputeScore(Input{Scores: []float64{1, 1, 1}, Covariance: cov})
	require.NoError(t, err)
	assert.True(t, ok)

	// The statistic 3 is 3·χ²(1)
	res := av.Result()
	assert.Equal(t, NotRun, res.Status)
	assert.InDelta(t, distuv.ChiSquared{K: 1}.Survival(1), res.PValue, 1e-9)
}

func TestIndependentVariantsCascade(t *testing.T) {
	av := newEngine(t, DefaultSettings())

	ok, err := av.ComputeScore(Input{Scores: zscores(10, 15.99), Covariance: identity(10)})
	require.NoError(t, err)
	assert.True(t, ok)

	res := av.Result()
	assert.Equal(t, DaviesSuccess, res.Status)
	assert.False(t, res.AuxRun)
	assert.Equal(t, 10, res.NumEigenvalues)
	assert.InDelta(t, distuv.ChiSquared{K: 10}.Survival(15.99), res.PValue, 1e-8)
}

func TestTinyPValueFallsBackToFarebrother(t *testing.T) {
	av := newEngine(t, DefaultSettings())

	ok, err := av.ComputeScore(Input{Scores: zscores(10, 150), Covariance: identity(10)})
	require.NoError(t, err)
	assert.True(t, ok)

	res := av.Result()
	assert.True(t, res.AuxRun)
	assert.Contains(t, []Status{DaviesLowPrecisionFarebrotherSuccess, DaviesFailFarebrotherSuccess}, res.Status)
	assert.InEpsilon(t, distuv.ChiSquared{K: 10}.Survival(150), res.PValue, 1e-6)
}

// A weighted form whose p-value is far below the precision floor.
// 2·χ²(2) + χ²(2) has survival 2·exp(-x/4) - exp(-x/2).
func TestDeepTailWeightedForm(t *testing.T) {
	s := DefaultSettings()
	s.StatisticMode = StatisticChiSquared
	av := newEngine(t, s)

	for _, x := range []float64{150, 300} {
		ok, err := av.ComputeScore(Input{
			Scores:     []float64{x / 4, x / 4, 0, 0},
			Covariance: identity(4),
			Weights:    []float64{2, 2, 1, 1},
		})
		require.NoError(t, err)
		assert.True(t, ok)

		res := av.Result()
		assert.InDelta(t, x, res.TestStatistic, 1e-9)
		assert.Equal(t, 4, res.NumEigenvalues)
		assert.True(t, res.AuxRun, "x=%v", x)
		assert.Zero(t, res.Aux.Fault, "x=%v", x)
		assert.Contains(t, []Status{DaviesLowPrecisionFarebrotherSuccess, DaviesFailFarebrotherSuccess}, res.Status)
		assert.InEpsilon(t, 2*math.Exp(-x/4)-math.Exp(-x/2), res.PValue, 1e-10, "x=%v", x)
	}
}

func TestSingleAlgorithmMode(t *testing.T) {
	s := DefaultSettings()
	s.Algorithm = "farebrother"
	av := newEngine(t, s)

	ok, err := av.ComputeScore(Input{Scores: zscores(4, 9.487729), Covariance: identity(4)})
	require.NoError(t, err)
	assert.True(t, ok)

	res := av.Result()
	assert.Equal(t, Converged, res.Status)
	assert.InDelta(t, distuv.ChiSquared{K: 4}.Survival(9.487729), res.PValue, 1e-10)
}

func TestWeightsAndChiSquaredMode(t *testing.T) {
	s := DefaultSettings()
	s.Algorithm = "farebrother"
	s.StatisticMode = StatisticChiSquared
	av := newEngine(t, s)

	// The third variant carries no weight, so the form is χ²(2) and the
	// statistic ignores its score.
	ok, err := av.ComputeScore(Input{
		Scores:     []float64{3, 4, 1000},
		Covariance: identity(3),
		Weights:    []float64{1, 1, 0},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	res := av.Result()
	assert.InDelta(t, 7.0, res.TestStatistic, 1e-12)
	assert.Equal(t, 2, res.NumEigenvalues)
	assert.InDelta(t, math.Exp(-3.5), res.PValue, 1e-12)

	// Doubling a weight doubles both the statistic and the eigenvalue.
	ok, err = av.ComputeScore(Input{
		Scores:     []float64{3, 4, 1000},
		Covariance: identity(3),
		Weights:    []float64{2, 2, 0},
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 14.0, av.Result().TestStatistic, 1e-12)
	assert.InDelta(t, math.Exp(-3.5), av.Result().PValue, 1e-12)
}

func TestInputErrorsLeaveSentinels(t *testing.T) {
	av := newEngine(t, DefaultSettings())

	for i, v := range []struct {
		In   Input
		Want error
	}{
		{Input{Covariance: identity(2)}, ErrNoScores},
		{Input{Scores: []float64{1, 2}}, spectrum.ErrDimensionMismatch},
		{Input{Scores: []float64{1, 2}, Covariance: identity(3)}, spectrum.ErrDimensionMismatch},
		{Input{Scores: []float64{1, 2}, Covariance: identity(2), Weights: []float64{1}}, spectrum.ErrDimensionMismatch},
		{Input{Scores: []float64{1, 2}, Covariance: identity(2), Weights: []float64{1, -1}}, spectrum.ErrNegativeWeight},
		{Input{Scores: []float64{1, math.NaN()}, Covariance: identity(2)}, ErrInvalidScore},
		{Input{Scores: []float64{1, 2}, Covariance: mat.NewSymDense(2, nil)}, spectrum.ErrNoPositiveEigenvalues},
	} {
		// A good computation first, so that stale state would show.
		_, err := av.ComputeScore(Input{Scores: zscores(10, 15.99), Covariance: identity(10)})
		require.NoError(t, err)

		// No solver ran, so this is not a solver failure.
		ok, err := av.ComputeScore(v.In)
		assert.True(t, ok, "case %d", i)
		assert.True(t, errors.Is(err, v.Want), "case %d: %v", i, err)

		res := av.Result()
		assert.Equal(t, -1.0, res.PValue, "case %d", i)
		assert.Equal(t, -1.0, res.TestStatistic, "case %d", i)
		assert.Equal(t, NotRun, res.Status, "case %d", i)
		assert.Zero(t, res.NumEigenvalues, "case %d", i)
		assert.False(t, res.AuxRun, "case %d", i)
	}
}

func TestNegativeChiSquaredScoreIsRejected(t *testing.T) {
	s := DefaultSettings()
	s.StatisticMode = StatisticChiSquared
	av := newEngine(t, s)

	_, err := av.ComputeScore(Input{Scores: []float64{1, -2}, Covariance: identity(2)})
	assert.True(t, errors.Is(err, ErrInvalidScore))
}

func TestNonConvergentDecomposition(t *testing.T) {
	av := newEngine(t, DefaultSettings())
	av.build = func(mat.Symmetric, []float64, float64) (spectrum.Spectrum, error) {
		return nil, fmt.Errorf("sortedEigenvalues: %w", spectrum.ErrNonConvergentDecomposition)
	}

	ok, err := av.ComputeScore(Input{Scores: []float64{1, 2}, Covariance: identity(2)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, spectrum.ErrNonConvergentDecomposition))
	assert.True(t, ok)

	res := av.Result()
	assert.Equal(t, Fail, res.Status)
	assert.True(t, math.IsNaN(res.PValue))
	assert.InDelta(t, 5.0, res.TestStatistic, 1e-12)
	assert.Equal(t, "\t2\tNaN\tFAIL", av.ResultsString())
}

// Success is false exactly when both cascading solvers fail.
func TestSuccessFollowsStatus(t *testing.T) {
	for _, v := range []struct {
		Main, Aux wchisq.Outcome
		OK        bool
	}{
		{wchisq.Outcome{P: 0.2}, wchisq.Outcome{}, true},
		{wchisq.Outcome{P: 1e-20}, wchisq.Outcome{Fault: 1}, true},
		{wchisq.Outcome{Fault: 1}, wchisq.Outcome{P: 1e-3}, true},
		{wchisq.Outcome{Fault: 1}, wchisq.Outcome{Fault: 4}, false},
	} {
		av := newEngine(t, DefaultSettings())
		av.resolver = &Resolver{Main: &fakeSolver{out: v.Main}, Aux: &fakeSolver{out: v.Aux}, Floor: DefaultPrecisionFloor}

		ok, err := av.ComputeScore(Input{Scores: []float64{1, 2}, Covariance: identity(2)})
		require.NoError(t, err)
		assert.Equal(t, v.OK, ok, "%+v", v)
		assert.Equal(t, v.OK, av.Result().Status != DaviesFailFarebrotherFail)
	}
}

func TestReportStrings(t *testing.T) {
	s := DefaultSettings()
	av := newEngine(t, s)
	av.resolver = &Resolver{Main: &fakeSolver{out: wchisq.Outcome{P: 0.05}}, Aux: &fakeSolver{}, Floor: DefaultPrecisionFloor}

	_, err := av.ComputeScore(Input{Scores: []float64{1, 2}, Covariance: identity(2)})
	require.NoError(t, err)

	assert.Equal(t, "\t2\t5E-2\tDAVIES_SUCCESS", av.ResultsString())
	assert.Equal(t, "\tnumSnps\tpvalue\tStatus", av.ResultsHeader())
	assert.Equal(t, "5E-2\tDAVIES_SUCCESS", av.NoScoreOutput())
	assert.Equal(t, "Score\tStatus", av.NoScoreHeader())
	assert.Equal(t, "", av.ConsoleOutput())
	assert.Equal(t, "sum", av.TypeString())
	assert.Equal(t, []float64{0.05}, av.Score())

	s.DetailedOutput = true
	ev, err := NewEvaluator(s)
	require.NoError(t, err)
	_, err = ev.ComputeScore(Input{Scores: []float64{2}, Covariance: identity(1)})
	require.NoError(t, err)
	assert.Equal(t, "NOT_RUN", ev.ConsoleOutput())

	// Before any computation the sentinels are reported.
	fresh := newEngine(t, s)
	assert.Equal(t, "\t0\t-1E0\tNOT_RUN", fresh.ResultsString())
}

func TestNewAnalyticVegasRejectsInvalidSettings(t *testing.T) {
	s := DefaultSettings()
	s.CutoffFraction = 1.5
	_, err := NewAnalyticVegas(s)
	assert.True(t, errors.Is(err, ErrInvalidSettings))

	s = DefaultSettings()
	s.Algorithm = "liu"
	_, err = NewEvaluator(s)
	assert.True(t, errors.Is(err, ErrInvalidSettings))
}
