package batch

import (
	"context"
	"fmt"
	"time"

	"manifold/internal/classifier"
	"manifold/internal/config"
	"manifold/internal/llmclient"
	"manifold/internal/obslog"
	"manifold/internal/pubmedclient"
	"manifold/internal/registry"
	"manifold/internal/store"
	"manifold/internal/trialmodel"
	"manifold/internal/websearchclient"
)

// InputRow is one line of the driver's input file: a trial identifier and the
// validation dataset it belongs to, if any (spec.md §6).
type InputRow struct {
	TrialId string
	Dataset string
}

// RunOptions configures one orchestrator Run invocation.
type RunOptions struct {
	// ValidationRun applies datefilter's max-date cutoff keyed by Dataset
	// instead of running an unbounded live discovery.
	ValidationRun bool
	// PollInterval governs how long RESULT_GEN_POLL/QUERY_GEN_POLL sleep
	// between unfinished polls.
	PollInterval time.Duration
	// StepByStep returns control to the caller after a single stage
	// transition instead of looping to completion (spec.md §6 --step-by-step).
	StepByStep bool
	// QueryGenEnabled activates the QUERY_GEN_* stages; when false the FSM
	// skips directly from PREP to PUB_DISCOVERY and strategies call the LLM
	// synchronously inline (spec.md §4.4 live mode).
	QueryGenEnabled bool
	// OutputDir is where FINALIZE writes per-trial sidecars and the summary
	// table (spec.md §6).
	OutputDir string
}

// Orchestrator drives the 12-stage resumable FSM of spec.md §4.8. It holds
// every collaborator the stages need; none of them are stage-specific state,
// which all lives in the trialmodel.Progress passed through Run.
type Orchestrator struct {
	Cfg *config.Config

	Registry *registry.Dispatcher
	Pubmed   *pubmedclient.Client

	RegStore   *store.RegistrationStore
	PubStore   *store.PublicationStore
	ClassStore *store.ClassificationStore
	Progress   *store.ProgressStore

	SyncLLM    llmclient.Provider
	BatchLLM   llmclient.BatchProvider
	Classifier *classifier.Classifier

	WebSearch *websearchclient.Client

	// outputDir is latched from RunOptions at the start of Run so later
	// stages (COST_CALCULATION) that don't take RunOptions directly can
	// still find where FINALIZE wrote its output.
	outputDir string
}

// Run loads (or creates) Progress for input and advances the FSM stage by
// stage, persisting after every transition, until it reaches COMPLETE or
// StepByStep stops it after one stage. A DailyBudgetExhaustedError returned
// from RESULT_GEN_UPLOAD is a clean stop, not a fatal abort: callers should
// re-invoke Run on a later day to resume (spec.md §4.8).
func (o *Orchestrator) Run(ctx context.Context, inputPath string, rows []InputRow, opts RunOptions) (*trialmodel.Progress, error) {
	progress, found, err := o.Progress.Load()
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	if !found {
		progress = trialmodel.NewProgress(inputPath, store.Clock())
	}
	o.outputDir = opts.OutputDir

	for {
		log := obslog.Logger().With().Str("stage", string(progress.Stage)).Logger()
		log.Info().Msg("batch_stage_enter")

		var stageErr error
		switch progress.Stage {
		case trialmodel.StagePrep:
			stageErr = o.runPrep(ctx, progress, rows)
		case trialmodel.StageQueryGenUpload:
			if !opts.QueryGenEnabled {
				progress.Stage = trialmodel.StagePubDiscovery
				continue
			}
			stageErr = o.runQueryGenUpload(ctx, progress)
		case trialmodel.StageQueryGenPoll:
			stageErr = o.runQueryGenPoll(ctx, progress, opts)
		case trialmodel.StageQueryGenProcess:
			stageErr = o.runQueryGenProcess(ctx, progress)
		case trialmodel.StagePubDiscovery:
			stageErr = o.runPubDiscovery(ctx, progress, opts)
		case trialmodel.StageResultGenPreparation:
			stageErr = o.runResultGenPreparation(ctx, progress)
		case trialmodel.StageResultGenUpload:
			stageErr = o.runResultGenUpload(ctx, progress)
		case trialmodel.StageResultGenPoll:
			stageErr = o.runResultGenPoll(ctx, progress, opts)
		case trialmodel.StageResultGenProcess:
			stageErr = o.runResultGenProcess(ctx, progress)
		case trialmodel.StageFinalize:
			stageErr = o.runFinalize(ctx, progress, opts)
		case trialmodel.StageCostCalculation:
			stageErr = o.runCostCalculation(ctx, progress)
		case trialmodel.StageComplete:
			return progress, nil
		default:
			return progress, fmt.Errorf("unknown stage %q", progress.Stage)
		}

		if stageErr != nil {
			log.Error().Err(stageErr).Msg("batch_stage_failed")
			// Persist whatever partial progress the stage made (e.g. chunks
			// already uploaded before a daily-budget-exhausted stop) even
			// though the stage itself is reporting an error.
			if saveErr := o.Progress.Save(progress); saveErr != nil {
				log.Error().Err(saveErr).Msg("batch_progress_save_failed_after_stage_error")
			}
			return progress, stageErr
		}

		if err := o.Progress.Save(progress); err != nil {
			return progress, fmt.Errorf("save progress after stage %s: %w", progress.Stage, err)
		}

		if opts.StepByStep {
			return progress, nil
		}
	}
}

// advance moves Progress to the stage the caller names. Each stage handler
// passes its own successor; Run additionally sets Stage directly when it
// skips the query-generation stages.
func advance(p *trialmodel.Progress, next trialmodel.Stage) {
	p.Stage = next
}

// saveProgress persists p immediately, for stages that make more than one
// external call (e.g. one CreateBatch per chunk) and so must write Progress
// after each one, not just once when the stage returns (spec.md §5: every
// mutation to Progress is followed by a write to the Progress file before
// the next external call). A nil Progress store (as in stage-level unit
// tests that exercise a single call) is a no-op rather than a panic.
func (o *Orchestrator) saveProgress(p *trialmodel.Progress) error {
	if o.Progress == nil {
		return nil
	}
	return o.Progress.Save(p)
}
