package main

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/carbocation/genescore/vegas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInput(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func scoreFile() string {
	var b strings.Builder
	b.WriteString("gene\tsnp\tscore\tweight\n")
	b.WriteString("ONE\trs1\t1.959964\t\n")
	b.WriteString("PAIR\trs2\t1\t1\n")
	b.WriteString("PAIR\trs3\t1\t1\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "TEN\trs%d\t1.2645\t\n", 10+i)
	}
	b.WriteString("MISSING\trs99\tNA\t\n")
	b.WriteString("PAIR\trs2\t5\t1\n")
	return b.String()
}

const ldFile = "SNP_A\tSNP_B\tR\nrs2\trs3\t1\nrs10\trs1000\t0.5\n"

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		ScoresFile: writeInput(t, dir, "scores.tsv", scoreFile()),
		LDFile:     writeInput(t, dir, "ld.tsv", ldFile),
		Settings:   vegas.DefaultSettings(),
		Workers:    3,
	}

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "gene\tnumSnps\tpvalue\tStatus", lines[0])

	fields := strings.Split(lines[1], "\t")
	require.Len(t, fields, 4)
	assert.Equal(t, []string{"ONE", "1"}, fields[:2])
	p, err := strconv.ParseFloat(fields[2], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, p, 1e-6)
	assert.Equal(t, "NOT_RUN", fields[3])

	// rs2 and rs3 are perfectly correlated; the repeated rs2 row is ignored.
	fields = strings.Split(lines[2], "\t")
	assert.Equal(t, []string{"PAIR", "2"}, fields[:2])
	assert.Equal(t, "NOT_RUN", fields[3])

	fields = strings.Split(lines[3], "\t")
	assert.Equal(t, []string{"TEN", "10"}, fields[:2])
	assert.Equal(t, "DAVIES_SUCCESS", fields[3])
}

func TestReadGenes(t *testing.T) {
	dir := t.TempDir()
	genes, err := ReadGenes(context.Background(), writeInput(t, dir, "scores.tsv", scoreFile()), nil)
	require.NoError(t, err)

	require.Len(t, genes, 3)
	assert.Equal(t, "ONE", genes[0].Name)
	assert.Equal(t, "PAIR", genes[1].Name)
	assert.Equal(t, "TEN", genes[2].Name)

	assert.Equal(t, []string{"rs2", "rs3"}, genes[1].SNPs)
	assert.Equal(t, []float64{1, 1}, genes[1].Scores)
	assert.Equal(t, []float64{1}, genes[0].Weights)
}

func TestReadLD(t *testing.T) {
	dir := t.TempDir()
	path := writeInput(t, dir, "ld.csv", "SNP_A,SNP_B,R\nrs1,rs2,0.25\nrs3,rs2,-0.5\nrs4,rs5,0.9\n")

	ld, err := ReadLD(context.Background(), path, nil, map[string]struct{}{"rs1": {}, "rs2": {}, "rs3": {}})
	require.NoError(t, err)
	assert.Len(t, ld, 2)
	assert.Equal(t, 0.25, ld.R("rs2", "rs1"))
	assert.Equal(t, -0.5, ld.R("rs2", "rs3"))
	assert.Equal(t, 0.0, ld.R("rs1", "rs3"))
	assert.Equal(t, 1.0, ld.R("rs4", "rs4"))
	assert.Equal(t, 0.0, ld.R("rs4", "rs5"))
}

func TestCovariance(t *testing.T) {
	ld := LD{newSNPPair("b", "a"): 0.3}
	cov := Covariance(&Gene{SNPs: []string{"a", "b", "c"}}, ld)

	assert.Equal(t, 3, cov.SymmetricDim())
	assert.Equal(t, 1.0, cov.At(2, 2))
	assert.Equal(t, 0.3, cov.At(0, 1))
	assert.Equal(t, 0.3, cov.At(1, 0))
	assert.Equal(t, 0.0, cov.At(0, 2))
}

func TestOptionalFloat(t *testing.T) {
	for in, want := range map[string]float64{
		"1.5":   1.5,
		" -2 ":  -2,
		"3e-4":  3e-4,
		"":      math.NaN(),
		"NA":    math.NaN(),
		"nan":   math.NaN(),
		".":     math.NaN(),
		"1e999": math.Inf(1),
	} {
		var f OptionalFloat
		err := f.UnmarshalCSV(in)
		if math.IsInf(want, 1) {
			assert.Error(t, err, in)
			continue
		}
		require.NoError(t, err, in)
		if math.IsNaN(want) {
			assert.False(t, f.Valid, in)
		} else {
			assert.True(t, f.Valid, in)
			assert.Equal(t, want, f.Float64, in)
		}
	}

	var f OptionalFloat
	assert.Error(t, f.UnmarshalCSV("abc"))

	s, err := OptionalFloat{}.MarshalCSV()
	require.NoError(t, err)
	assert.Equal(t, "NA", s)
}

func TestSummarize(t *testing.T) {
	results := []GeneResult{
		{OK: true, Result: vegas.ScoreResult{PValue: 0.5, Status: vegas.DaviesSuccess}},
		{OK: true, Result: vegas.ScoreResult{PValue: 0.5, Status: vegas.NotRun}},
		{OK: true, Result: vegas.ScoreResult{PValue: 0.5, Status: vegas.DaviesSuccess}},
		{OK: false, Result: vegas.ScoreResult{PValue: math.NaN(), Status: vegas.DaviesFailFarebrotherFail}},
		{OK: true, Err: fmt.Errorf("no scores"), Result: vegas.ScoreResult{PValue: -1}},
		{OK: false, Err: fmt.Errorf("no scores"), Result: vegas.ScoreResult{PValue: -1}},
	}

	s := Summarize(results)
	assert.Equal(t, 6, s.Genes)
	assert.Equal(t, 2, s.Errors)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 2, s.Statuses[vegas.DaviesSuccess])
	assert.Equal(t, 1, s.Statuses[vegas.DaviesFailFarebrotherFail])
	assert.InDelta(t, 1.0, s.LambdaGC, 1e-9)
	assert.Contains(t, s.String(), "DAVIES_SUCCESS=2")

	assert.True(t, math.IsNaN(Summarize(nil).LambdaGC))
}
