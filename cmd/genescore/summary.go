package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/carbocation/genescore/vegas"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Summary describes a batch of gene results.
type Summary struct {
	Genes    int
	Failed   int // genes whose solvers all failed
	Errors   int // genes with invalid input or a failed decomposition
	Statuses map[vegas.Status]int

	// LambdaGC is the genomic inflation factor of the valid p-values: the
	// median of their chi-squared(1) quantiles over the null median. It is
	// NaN if there are no valid p-values.
	LambdaGC float64
}

// chiSquared1Median is the median of the chi-squared(1) distribution.
var chiSquared1Median = distuv.ChiSquared{K: 1}.Quantile(0.5)

func Summarize(results []GeneResult) Summary {
	s := Summary{
		Genes:    len(results),
		Statuses: make(map[vegas.Status]int),
		LambdaGC: math.NaN(),
	}

	chi2 := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			s.Errors++
		}
		if r.Err == nil && !r.OK {
			s.Failed++
		}
		if r.Err == nil {
			s.Statuses[r.Result.Status]++
		}

		p := r.Result.PValue
		if r.Err != nil || math.IsNaN(p) || p <= 0 || p > 1 {
			continue
		}
		chi2 = append(chi2, distuv.ChiSquared{K: 1}.Quantile(1-p))
	}

	if len(chi2) > 0 {
		if median, err := stats.Median(chi2); err == nil {
			s.LambdaGC = median / chiSquared1Median
		}
	}

	return s
}

func (s Summary) String() string {
	parts := make([]string, 0, len(s.Statuses))
	for _, status := range vegas.Statuses() {
		if n := s.Statuses[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", status, n))
		}
	}

	return fmt.Sprintf("Scored %d genes (%d errors, %d failed). Statuses: %s. Lambda GC: %.4f",
		s.Genes, s.Errors, s.Failed, strings.Join(parts, ", "), s.LambdaGC)
}
