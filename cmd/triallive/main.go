// Command triallive drives the synchronous single-run path of spec.md §6:
// PREP and PUB_DISCOVERY as the batch orchestrator does, but classification
// runs one request at a time against the synchronous LLM provider instead of
// through QUERY_GEN/RESULT_GEN's batch jobs. Meant for a handful of trials
// where the batch API's turnaround isn't worth the wait.
//
// Usage:
//
//	triallive --input trials.csv --output-dir ./output --retry-errors
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
)

func main() {
	var (
		input               = flag.String("input", "", "driving dataset file (required)")
		outputDir           = flag.String("output-dir", "./output", "directory for Progress, sidecars, and the summary table")
		delimiter           = flag.String("delimiter", ",", "input file field delimiter")
		pollIntervalSeconds = flag.Int("poll-interval", 60, "unused in live mode; accepted for command-surface parity with trialbatch")
		validationRun       = flag.Bool("validation-run", false, "apply the input's dataset column as a max-date cutoff")
		localRegistrations  = flag.String("local-registrations", "", "directory of pre-fetched {trialId}.json registrations for the ctgov adapter")
		stepByStep          = flag.Bool("step-by-step", false, "unused in live mode; accepted for command-surface parity with trialbatch")
		retryErrors         = flag.Bool("retry-errors", false, "re-attempt trials previously recorded with a row error")
	)
	flag.Parse()
	_ = stepByStep

	if *input == "" {
		fmt.Fprintln(os.Stderr, "triallive: --input is required")
		os.Exit(1)
	}
	var delimRune rune
	if len(*delimiter) > 0 {
		delimRune = []rune(*delimiter)[0]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "triallive: load config: %v\n", err)
		os.Exit(1)
	}
	obslog.Init(cfg.LogLevel, cfg.LogPath)
	log := obslog.Logger()

	rows, err := inputfile.Read(*input, delimRune)
	if err != nil {
		log.Error().Err(err).Msg("triallive_read_input_failed")
		os.Exit(1)
	}

	ctx := context.Background()
	progressPath := filepath.Join(*outputDir, "progress.json")
	orch, err := batch.New(ctx, &cfg, progressPath, *localRegistrations)
	if err != nil {
		log.Error().Err(err).Msg("triallive_wire_failed")
		os.Exit(1)
	}

	opts := batch.RunOptions{
		ValidationRun:   *validationRun,
		PollInterval:    time.Duration(*pollIntervalSeconds) * time.Second,
		QueryGenEnabled: false,
		OutputDir:       *outputDir,
	}

	progress, runErr := orch.RunLive(ctx, *input, rows, opts, *retryErrors)
	if runErr != nil {
		log.Error().Err(runErr).Msg("triallive_run_failed")
		os.Exit(1)
	}

	log.Info().Str("stage", string(progress.Stage)).
		Int("rows", len(progress.Rows)).
		Msg("triallive_run_complete")
}
