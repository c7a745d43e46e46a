// Command trialbatch drives the resumable batch orchestrator of spec.md
// §4.8 end to end: PREP through COST_CALCULATION, re-invocable after a
// DailyBudgetExhausted stop or any other interruption since all state lives
// in the Progress file under --output-dir.
//
// Usage:
//
//	trialbatch --input trials.csv --output-dir ./output --validation-run
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	"manifold/internal/batch"
	"manifold/internal/config"
	"manifold/internal/inputfile"
	"manifold/internal/obslog"
	"manifold/internal/trialerr"
)

func main() {
	var (
		input               = flag.String("input", "", "driving dataset file (required)")
		outputDir           = flag.String("output-dir", "./output", "directory for Progress, chunks, sidecars, and the summary table")
		delimiter           = flag.String("delimiter", ",", "input file field delimiter")
		pollIntervalSeconds = flag.Int("poll-interval", 60, "seconds between batch job status polls")
		validationRun       = flag.Bool("validation-run", false, "apply the input's dataset column as a max-date cutoff")
		localRegistrations  = flag.String("local-registrations", "", "directory of pre-fetched {trialId}.json registrations for the ctgov adapter")
		stepByStep          = flag.Bool("step-by-step", false, "advance a single FSM stage per invocation instead of running to completion")
	)
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "trialbatch: --input is required")
		os.Exit(1)
	}
	var delimRune rune
	if len(*delimiter) > 0 {
		delimRune = []rune(*delimiter)[0]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "trialbatch: load config: %v\n", err)
		os.Exit(1)
	}
	obslog.Init(cfg.LogLevel, cfg.LogPath)
	log := obslog.Logger()

	rows, err := inputfile.Read(*input, delimRune)
	if err != nil {
		log.Error().Err(err).Msg("trialbatch_read_input_failed")
		os.Exit(1)
	}

	ctx := context.Background()
	progressPath := filepath.Join(*outputDir, "progress.json")
	orch, err := batch.New(ctx, &cfg, progressPath, *localRegistrations)
	if err != nil {
		log.Error().Err(err).Msg("trialbatch_wire_failed")
		os.Exit(1)
	}

	opts := batch.RunOptions{
		ValidationRun:   *validationRun,
		PollInterval:    time.Duration(*pollIntervalSeconds) * time.Second,
		StepByStep:      *stepByStep,
		QueryGenEnabled: batch.QueryGenEnabled(cfg.Batch.Strategies),
		OutputDir:       *outputDir,
	}

	progress, runErr := orch.Run(ctx, *input, rows, opts)
	if runErr != nil {
		if trialerr.IsDailyBudgetExhausted(runErr) {
			log.Warn().Err(runErr).Msg("trialbatch_daily_budget_exhausted")
			fmt.Fprintf(os.Stderr, "trialbatch: %v (retryable tomorrow)\n", runErr)
			os.Exit(2)
		}
		log.Error().Err(runErr).Msg("trialbatch_run_failed")
		os.Exit(1)
	}

	log.Info().Str("stage", string(progress.Stage)).
		Int("rows", len(progress.Rows)).
		Msg("trialbatch_run_complete")
}
