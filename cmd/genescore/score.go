package main

import (
	"context"
	"log"

	"github.com/carbocation/genescore/vegas"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// GeneResult is the outcome for one gene. Line is the gene's output row.
type GeneResult struct {
	Gene   string
	Line   string
	OK     bool
	Err    error
	Result vegas.ScoreResult
}

// Covariance assembles the LD matrix of the gene's variants.
func Covariance(g *Gene, ld LD) *mat.SymDense {
	n := len(g.SNPs)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, ld.R(g.SNPs[i], g.SNPs[j]))
		}
	}
	return cov
}

// ScoreGenes scores every gene with up to workers goroutines, each with its
// own engine, and returns the results in the order of genes.
func ScoreGenes(ctx context.Context, genes []*Gene, ld LD, settings vegas.Settings, workers int) ([]GeneResult, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]GeneResult, len(genes))
	work := make(chan int)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(work)
		for i := range genes {
			select {
			case work <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			engine, err := vegas.NewAnalyticVegas(settings)
			if err != nil {
				return err
			}

			for i := range work {
				results[i] = scoreGene(engine, genes[i], ld)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func scoreGene(engine *vegas.AnalyticVegas, gene *Gene, ld LD) GeneResult {
	ok, err := engine.ComputeScore(vegas.Input{
		Scores:     gene.Scores,
		Covariance: Covariance(gene, ld),
		Weights:    gene.Weights,
	})

	out := GeneResult{
		Gene:   gene.Name,
		OK:     ok,
		Err:    err,
		Result: engine.Result(),
	}

	if err != nil {
		log.Printf("%s: %v\n", gene.Name, err)
		out.Line = gene.Name + "\t" + engine.NoScoreOutput()
		return out
	}

	out.Line = gene.Name + engine.ResultsString()
	if console := engine.ConsoleOutput(); console != "" {
		log.Printf("%s: %s\n", gene.Name, console)
	}

	return out
}
