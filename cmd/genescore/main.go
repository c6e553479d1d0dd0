// genescore computes gene-level p-values from variant association statistics
// and the LD between variants, using the analytic VEGAS sum statistic.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"

	"cloud.google.com/go/storage"
	_ "github.com/carbocation/genescore/compileinfoprint"
	"github.com/carbocation/genescore/vegas"
)

// Config holds everything a run needs besides its output.
type Config struct {
	ScoresFile string
	LDFile     string
	Settings   vegas.Settings
	Workers    int

	client *storage.Client
}

func main() {
	var scoresFile, ldFile, configFile, algorithm string
	var cutoff, floor float64
	var chisq, detailed bool
	var workers int
	flag.StringVar(&scoresFile, "scores", "", "Path to the variant score file with columns gene, snp, score and optionally weight. Optionally, may be a google storage URL (gs://)")
	flag.StringVar(&ldFile, "ld", "", "Path to the pairwise LD file with columns SNP_A, SNP_B and R. Unlisted pairs are uncorrelated. Optionally, may be a google storage URL (gs://)")
	flag.StringVar(&configFile, "config", "", "(Optional) Path to a YAML settings file. Flags that are set override it.")
	flag.StringVar(&algorithm, "algorithm", "", "(Optional) Use only this algorithm (davies, farebrother or imhof). By default Davies runs first and Farebrother refines failed or tiny p-values.")
	flag.Float64Var(&cutoff, "cutoff", vegas.DefaultSettings().CutoffFraction, "Fraction of the positive eigenvalue mass retained")
	flag.Float64Var(&floor, "floor", vegas.DefaultPrecisionFloor, "Smallest p-value reported when Davies loses precision and Farebrother fails")
	flag.BoolVar(&chisq, "chisq", false, "Scores are chi-squared statistics rather than z-scores")
	flag.BoolVar(&detailed, "detailed", false, "Log the status of every gene")
	flag.IntVar(&workers, "workers", runtime.NumCPU(), "Number of genes scored concurrently")
	flag.Parse()

	if scoresFile == "" {
		flag.Usage()
		log.Fatalln("Must specify a --scores file")
	}

	if ldFile == "" {
		flag.Usage()
		log.Fatalln("Must specify an --ld file")
	}

	settings := vegas.DefaultSettings()
	if configFile != "" {
		var err error
		settings, err = vegas.LoadSettings(configFile)
		if err != nil {
			log.Fatalln(err)
		}
	}

	// Only flags that were set override the settings file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "algorithm":
			settings.Algorithm = algorithm
		case "cutoff":
			settings.CutoffFraction = cutoff
		case "floor":
			settings.PrecisionFloor = floor
		case "chisq":
			settings.StatisticMode = vegas.StatisticZScore
			if chisq {
				settings.StatisticMode = vegas.StatisticChiSquared
			}
		case "detailed":
			settings.DetailedOutput = detailed
		}
	})

	if err := settings.Validate(); err != nil {
		log.Fatalln(err)
	}

	cfg := Config{
		ScoresFile: scoresFile,
		LDFile:     ldFile,
		Settings:   settings,
		Workers:    workers,
	}

	ctx := context.Background()

	if strings.HasPrefix(scoresFile, "gs://") || strings.HasPrefix(ldFile, "gs://") {
		var err error
		cfg.client, err = storage.NewClient(ctx)
		if err != nil {
			log.Fatalln(err)
		}
		defer cfg.client.Close()
	}

	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.Fatalln(err)
	}
}

func run(ctx context.Context, cfg Config, out io.Writer) error {
	log.Printf("Settings: %+v\n", cfg.Settings)

	genes, err := ReadGenes(ctx, cfg.ScoresFile, cfg.client)
	if err != nil {
		return err
	}

	wanted := make(map[string]struct{})
	for _, g := range genes {
		for _, snp := range g.SNPs {
			wanted[snp] = struct{}{}
		}
	}
	log.Printf("Read %d genes with %d distinct variants from %s\n", len(genes), len(wanted), cfg.ScoresFile)

	ld, err := ReadLD(ctx, cfg.LDFile, cfg.client, wanted)
	if err != nil {
		return err
	}
	log.Printf("Read %d variant pairs from %s\n", len(ld), cfg.LDFile)

	results, err := ScoreGenes(ctx, genes, ld, cfg.Settings, cfg.Workers)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(out)

	// The header row comes from an engine like the ones that scored the genes
	header, err := vegas.NewEvaluator(cfg.Settings)
	if err != nil {
		return err
	}
	fmt.Fprintln(bw, "gene"+header.ResultsHeader())

	for _, r := range results {
		fmt.Fprintln(bw, r.Line)
	}

	if err := bw.Flush(); err != nil {
		return err
	}

	log.Println(Summarize(results))

	return nil
}
