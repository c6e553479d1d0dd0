package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/genescore"
	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"gopkg.in/guregu/null.v3"
)

// OptionalFloat is a number that may be missing (empty, NA, NaN or .).
type OptionalFloat struct {
	null.Float
}

// UnmarshalCSV satisfies gocsv.TypeUnmarshaller.
func (f *OptionalFloat) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", "NA", "NAN", ".":
		f.Float = null.Float{}
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.Float = null.FloatFrom(v)

	return nil
}

// MarshalCSV satisfies gocsv.TypeMarshaller, writing NA for a missing value.
func (f OptionalFloat) MarshalCSV() (string, error) {
	if !f.Valid {
		return "NA", nil
	}
	return strconv.FormatFloat(f.Float64, 'g', -1, 64), nil
}

// ScoreRow is one line of the variant score file.
type ScoreRow struct {
	Gene   string        `csv:"gene"`
	SNP    string        `csv:"snp"`
	Score  OptionalFloat `csv:"score"`
	Weight OptionalFloat `csv:"weight"`
}

// LDRow is one line of the pairwise LD file.
type LDRow struct {
	SNPA string  `csv:"SNP_A"`
	SNPB string  `csv:"SNP_B"`
	R    float64 `csv:"R"`
}

// Gene collects the variants of one gene in file order.
type Gene struct {
	Name    string
	SNPs    []string
	Scores  []float64
	Weights []float64
}

// ReadGenes reads the score file and groups its rows by gene, keeping genes
// in order of first appearance. Rows without a score are skipped, and a
// missing weight counts as 1.
func ReadGenes(ctx context.Context, path string, client *storage.Client) ([]*Gene, error) {
	tbl, err := genescore.OpenTable(ctx, path, client)
	if err != nil {
		return nil, err
	}
	defer tbl.Close()

	rows := []*ScoreRow{}
	if err := gocsv.UnmarshalCSV(tbl.Reader, &rows); err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	genes := make([]*Gene, 0)
	byName := make(map[string]*Gene)
	seen := make(map[string]map[string]struct{})
	skipped, duplicates := 0, 0

	for _, row := range rows {
		if !row.Score.Valid {
			skipped++
			continue
		}

		g, exists := byName[row.Gene]
		if !exists {
			g = &Gene{Name: row.Gene}
			byName[row.Gene] = g
			seen[row.Gene] = make(map[string]struct{})
			genes = append(genes, g)
		}

		if _, dup := seen[row.Gene][row.SNP]; dup {
			duplicates++
			continue
		}
		seen[row.Gene][row.SNP] = struct{}{}

		g.SNPs = append(g.SNPs, row.SNP)
		g.Scores = append(g.Scores, row.Score.Float64)
		g.Weights = append(g.Weights, row.Weight.ValueOrZero())
		if !row.Weight.Valid {
			g.Weights[len(g.Weights)-1] = 1
		}
	}

	if skipped > 0 {
		log.Printf("Skipped %d rows of %s without a score\n", skipped, path)
	}
	if duplicates > 0 {
		log.Printf("Skipped %d rows of %s that repeated a SNP within its gene\n", duplicates, path)
	}

	return genes, nil
}

type snpPair struct {
	a, b string
}

func newSNPPair(a, b string) snpPair {
	if b < a {
		a, b = b, a
	}
	return snpPair{a, b}
}

// LD holds pairwise correlations between variants. Pairs that were not
// listed have no correlation.
type LD map[snpPair]float64

// R returns the correlation between two variants. A variant is perfectly
// correlated with itself.
func (ld LD) R(a, b string) float64 {
	if a == b {
		return 1
	}
	return ld[newSNPPair(a, b)]
}

// ReadLD reads the LD file. If wanted is non-nil, only pairs whose variants
// are both in wanted are kept.
func ReadLD(ctx context.Context, path string, client *storage.Client, wanted map[string]struct{}) (LD, error) {
	tbl, err := genescore.OpenTable(ctx, path, client)
	if err != nil {
		return nil, err
	}
	defer tbl.Close()

	rows := []*LDRow{}
	if err := gocsv.UnmarshalCSV(tbl.Reader, &rows); err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
	}

	out := make(LD)
	for _, row := range rows {
		if row.SNPA == row.SNPB {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[row.SNPA]; !ok {
				continue
			}
			if _, ok := wanted[row.SNPB]; !ok {
				continue
			}
		}
		out[newSNPPair(row.SNPA, row.SNPB)] = row.R
	}

	return out, nil
}
