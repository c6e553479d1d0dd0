// Package vegas scores a gene from the association statistics of its variants,
// accounting for the correlation between variants. The gene statistic is a
// weighted sum of squared variant z-scores (or of chi-squared statistics),
// whose null distribution is a weighted sum of chi-squared(1) variables with
// weights given by the eigenvalues of the weighted variant covariance.
package vegas

import "gonum.org/v1/gonum/mat"

// Evaluator computes a gene score and formats it for result tables.
type Evaluator interface {
	// ComputeScore scores one gene. The boolean is false only when every
	// solver failed; the error separately reports invalid input or a failed
	// decomposition.
	ComputeScore(in Input) (bool, error)

	Score() []float64
	ResultsString() string
	ResultsHeader() string
	ConsoleOutput() string
	NoScoreOutput() string
	NoScoreHeader() string
	TypeString() string
}

// Input holds the data for one gene.
type Input struct {
	// Scores has one entry per variant: a z-score, or a chi-squared
	// statistic when the engine is in StatisticChiSquared mode.
	Scores []float64

	// Covariance is the variant covariance (usually the LD correlation
	// matrix). It need not be exactly positive semidefinite and is not
	// modified.
	Covariance mat.Symmetric

	// Weights are optional non-negative variant weights. Nil weighs every
	// variant equally.
	Weights []float64
}

// NewEvaluator returns the analytic evaluator for s.
func NewEvaluator(s Settings) (Evaluator, error) {
	av, err := NewAnalyticVegas(s)
	if err != nil {
		return nil, err
	}
	return av, nil
}

var _ Evaluator = (*AnalyticVegas)(nil)
