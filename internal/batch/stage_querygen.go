package batch

import (
	"context"
	"fmt"
	"time"

	"manifold/internal/discovery"
	"manifold/internal/llmclient"
	"manifold/internal/obslog"
	"manifold/internal/trialerr"
	"manifold/internal/trialmodel"
)

func strategyEnabled(strategies []string, id string) bool {
	for _, s := range strategies {
		if s == id {
			return true
		}
	}
	return false
}

// QueryGenEnabled reports whether any configured strategy needs the
// QUERY_GEN_* batch stages (spec.md §4.8): true whenever pubmed_gpt_v1 or
// pubmed_gpt_v2 is enabled. Drivers use this to set RunOptions.QueryGenEnabled
// without duplicating the strategy list.
func QueryGenEnabled(strategies []string) bool {
	return strategyEnabled(strategies, "pubmed_gpt_v1") || strategyEnabled(strategies, "pubmed_gpt_v2")
}

// runQueryGenUpload builds and submits one batch job per enabled
// pubmed_gpt_v1/v2 strategy, covering every registration gathered in PREP
// (spec.md §4.8 QUERY_GEN_UPLOAD). A job already recorded from a prior
// attempt is left untouched so resume never double-submits. Progress is
// saved immediately after each job's CreateBatch succeeds, before the next
// strategy's non-idempotent submission runs, for the same reason
// runResultGenUpload saves per chunk (spec.md §5).
func (o *Orchestrator) runQueryGenUpload(ctx context.Context, p *trialmodel.Progress) error {
	if strategyEnabled(o.Cfg.Batch.Strategies, "pubmed_gpt_v1") && p.BatchJobs.QueryGenV1 == nil {
		job, err := o.submitQueryGenBatch(ctx, p, func(reg trialmodel.Registration) llmclient.BatchItem {
			return discovery.NewQueryV1BatchItem(reg, o.Cfg.SystemPrompts.QueryV1, o.Cfg.Models.QueryV1, int64(o.Cfg.Batch.MaxTokensQueryV1))
		})
		if err != nil {
			return err
		}
		p.BatchJobs.QueryGenV1 = job
		if err := o.saveProgress(p); err != nil {
			return fmt.Errorf("save progress after submitting query_gen_v1 batch: %w", err)
		}
	}
	if strategyEnabled(o.Cfg.Batch.Strategies, "pubmed_gpt_v2") && p.BatchJobs.QueryGenV2 == nil {
		job, err := o.submitQueryGenBatch(ctx, p, func(reg trialmodel.Registration) llmclient.BatchItem {
			return discovery.NewQueryV2BatchItem(reg, o.Cfg.SystemPrompts.QueryV2, o.Cfg.Models.QueryV2, int64(o.Cfg.Batch.MaxTokensQueryV2))
		})
		if err != nil {
			return err
		}
		p.BatchJobs.QueryGenV2 = job
		if err := o.saveProgress(p); err != nil {
			return fmt.Errorf("save progress after submitting query_gen_v2 batch: %w", err)
		}
	}

	advance(p, trialmodel.StageQueryGenPoll)
	return nil
}

func (o *Orchestrator) submitQueryGenBatch(ctx context.Context, p *trialmodel.Progress, build func(trialmodel.Registration) llmclient.BatchItem) (*trialmodel.QueryGenJob, error) {
	var items []llmclient.BatchItem
	for _, reg := range p.Registrations {
		items = append(items, build(reg))
	}
	if len(items) == 0 {
		return nil, nil
	}

	fileID, err := o.BatchLLM.UploadBatchFile(ctx, items)
	if err != nil {
		return nil, err
	}
	batchID, err := o.BatchLLM.CreateBatch(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return &trialmodel.QueryGenJob{ID: batchID, Status: trialmodel.BatchValidating, InputFileId: fileID}, nil
}

// runQueryGenPoll blocks, re-polling every configured PollInterval, until
// every submitted query-gen job reaches a terminal status. A terminal
// failure aborts the run outright (spec.md §7: batch terminal failures are
// fatal); completion records the job's output file id for QUERY_GEN_PROCESS.
func (o *Orchestrator) runQueryGenPoll(ctx context.Context, p *trialmodel.Progress, opts RunOptions) error {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 60 * time.Second
	}

	jobs := make([]*trialmodel.QueryGenJob, 0, 2)
	if p.BatchJobs.QueryGenV1 != nil {
		jobs = append(jobs, p.BatchJobs.QueryGenV1)
	}
	if p.BatchJobs.QueryGenV2 != nil {
		jobs = append(jobs, p.BatchJobs.QueryGenV2)
	}

	for {
		allDone := true
		for _, job := range jobs {
			if job.Status == trialmodel.BatchCompleted {
				continue
			}
			status, err := o.BatchLLM.RetrieveBatch(ctx, job.ID)
			if err != nil {
				return err
			}
			job.Status = trialmodel.BatchJobStatus(status.Status)
			if job.Status.IsTerminalFailure() {
				return &trialerr.BatchTerminalFailureError{ChunkIndex: -1, BatchId: job.ID, Status: string(job.Status)}
			}
			if job.Status != trialmodel.BatchCompleted {
				allDone = false
				continue
			}
			job.OutputFileId = status.OutputFileID
		}
		if allDone {
			break
		}
		obslog.Logger().Info().Dur("poll_interval", poll).Msg("query_gen_poll_waiting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}

	advance(p, trialmodel.StageQueryGenProcess)
	return nil
}

// runQueryGenProcess downloads each completed job's output and stores the
// raw per-trial JSON in Progress.QueryResults, to be decoded by the
// discovery strategies during PUB_DISCOVERY (spec.md §4.8 QUERY_GEN_PROCESS).
// A custom_id with no matching output line (provider-side partial failure)
// simply leaves that trial's query bundle empty; PUB_DISCOVERY's strategy
// isolation handles the rest.
func (o *Orchestrator) runQueryGenProcess(ctx context.Context, p *trialmodel.Progress) error {
	if p.QueryResults == nil {
		p.QueryResults = map[string]trialmodel.QueryGenResult{}
	}

	if job := p.BatchJobs.QueryGenV1; job != nil && job.OutputFileId != "" {
		results, err := o.BatchLLM.DownloadBatchResults(ctx, job.OutputFileId)
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Error != "" {
				obslog.Logger().Warn().Str("trial_id", r.CustomID).Str("error", r.Error).Msg("query_gen_v1_item_failed")
				continue
			}
			qr := p.QueryResults[r.CustomID]
			qr.V1Raw = r.RawJSON
			p.QueryResults[r.CustomID] = qr
		}
	}
	if job := p.BatchJobs.QueryGenV2; job != nil && job.OutputFileId != "" {
		results, err := o.BatchLLM.DownloadBatchResults(ctx, job.OutputFileId)
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Error != "" {
				obslog.Logger().Warn().Str("trial_id", r.CustomID).Str("error", r.Error).Msg("query_gen_v2_item_failed")
				continue
			}
			qr := p.QueryResults[r.CustomID]
			qr.V2Raw = r.RawJSON
			p.QueryResults[r.CustomID] = qr
		}
	}

	advance(p, trialmodel.StagePubDiscovery)
	return nil
}
