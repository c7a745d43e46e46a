package batch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"manifold/internal/classifier"
	"manifold/internal/llmclient"
	"manifold/internal/obslog"
	"manifold/internal/trialerr"
	"manifold/internal/trialmodel"
)

// runResultGenPreparation packs one classification request per (trial, pmid)
// pair that survived PUB_DISCOVERY's filters and isn't already classified,
// into dual byte/request-bounded chunks (spec.md §4.8). Re-entering this
// stage with chunks already recorded is a no-op: chunking, once done, is
// never redone, since redoing it against resumed Publications/Registrations
// map iteration order would silently reshuffle chunk boundaries.
func (o *Orchestrator) runResultGenPreparation(ctx context.Context, p *trialmodel.Progress) error {
	if len(p.BatchJobs.ResultDetection.Chunks) > 0 {
		advance(p, trialmodel.StageResultGenUpload)
		return nil
	}

	trialIds := make([]string, 0, len(p.Publications))
	for trialId := range p.Publications {
		trialIds = append(trialIds, trialId)
	}
	sort.Strings(trialIds)

	var items []llmclient.BatchItem
	for _, trialId := range trialIds {
		reg, ok := p.Registrations[trialId]
		if !ok {
			continue
		}
		for _, pub := range p.Publications[trialId].Candidates {
			if _, found, err := o.ClassStore.Get(ctx, trialId, pub.PMID); err == nil && found {
				continue
			}
			items = append(items, o.Classifier.BuildBatchItem(reg, pub))
		}
	}

	plans, err := PackChunks(items, o.Cfg.Batch)
	if err != nil {
		return err
	}

	total := 0
	for idx, plan := range plans {
		customIDs := make([]string, len(plan.Items))
		for i, it := range plan.Items {
			customIDs[i] = it.CustomID
		}
		p.BatchJobs.ResultDetection.Chunks = append(p.BatchJobs.ResultDetection.Chunks, trialmodel.Chunk{
			Index:           idx,
			InputFile:       fmt.Sprintf("chunk-%s-%04d.jsonl", p.RunID, idx),
			RequestCount:    len(plan.Items),
			EstimatedTokens: plan.EstimatedTokens,
			SizeBytes:       plan.SizeBytes,
			Status:          trialmodel.ChunkPending,
			CustomIDs:       customIDs,
		})
		total += plan.EstimatedTokens
	}
	p.BatchJobs.ResultDetection.TotalEstimatedTokens = total

	advance(p, trialmodel.StageResultGenUpload)
	return nil
}

// rebuildChunkItems reconstructs a chunk's batch items from its recorded
// custom_ids, looking the (registration, publication) pair back up in
// Progress rather than duplicating full prompt payloads on disk.
func (o *Orchestrator) rebuildChunkItems(p *trialmodel.Progress, customIDs []string) ([]llmclient.BatchItem, error) {
	items := make([]llmclient.BatchItem, 0, len(customIDs))
	for _, id := range customIDs {
		trialId, pmid, ok := trialmodel.SplitClassificationKey(id)
		if !ok {
			return nil, fmt.Errorf("malformed chunk custom_id %q", id)
		}
		reg, ok := p.Registrations[trialId]
		if !ok {
			return nil, fmt.Errorf("chunk references unknown trial %q", trialId)
		}
		pub, ok := findPublication(p.Publications[trialId], pmid)
		if !ok {
			return nil, fmt.Errorf("chunk references unknown publication %q for trial %q", pmid, trialId)
		}
		items = append(items, o.Classifier.BuildBatchItem(reg, pub))
	}
	return items, nil
}

func findPublication(set trialmodel.PublicationSet, pmid string) (trialmodel.Publication, bool) {
	for _, pub := range set.Candidates {
		if pub.PMID == pmid {
			return pub, true
		}
	}
	return trialmodel.Publication{}, false
}

// runResultGenUpload uploads every still-pending chunk, enforcing the daily
// token budget (spec.md §4.8): a chunk whose estimate would exceed today's
// remaining budget stops the run cleanly with a DailyBudgetExhaustedError,
// leaving every chunk uploaded so far recorded and the rest pending for a
// later day's run. Progress is saved after each chunk's CreateBatch
// succeeds, not just once when the stage returns: CreateBatch is a
// non-idempotent external call, so a crash between two chunks must never
// find the earlier chunk's batchId or DailyTokensUsed increment unsaved —
// otherwise resume re-uploads it, creates a duplicate batch job, and
// re-charges the day's budget (spec.md §5, §8).
func (o *Orchestrator) runResultGenUpload(ctx context.Context, p *trialmodel.Progress) error {
	today := time.Now().UTC().Format("2006-01-02")
	rd := &p.BatchJobs.ResultDetection
	if rd.DailyTokensUsed.Date != today {
		rd.DailyTokensUsed = trialmodel.DailyTokens{Date: today, Tokens: 0}
	}

	for i := range rd.Chunks {
		c := &rd.Chunks[i]
		if c.Status != trialmodel.ChunkPending {
			continue
		}

		if o.Cfg.Batch.MaxTokensPerDay > 0 {
			remaining := o.Cfg.Batch.MaxTokensPerDay - rd.DailyTokensUsed.Tokens
			if c.EstimatedTokens > remaining {
				return &trialerr.DailyBudgetExhaustedError{
					ChunkIndex: c.Index, NeededTokens: c.EstimatedTokens, RemainingBudget: remaining,
				}
			}
		}

		items, err := o.rebuildChunkItems(p, c.CustomIDs)
		if err != nil {
			return err
		}
		fileID, err := o.BatchLLM.UploadBatchFile(ctx, items)
		if err != nil {
			return err
		}
		batchID, err := o.BatchLLM.CreateBatch(ctx, fileID)
		if err != nil {
			return err
		}

		now := time.Now()
		c.Status = trialmodel.ChunkUploaded
		c.BatchId = batchID
		c.InputFileId = fileID
		c.UploadedAt = &now
		rd.DailyTokensUsed.Tokens += c.EstimatedTokens

		if err := o.saveProgress(p); err != nil {
			return fmt.Errorf("save progress after uploading chunk %d: %w", c.Index, err)
		}
	}

	advance(p, trialmodel.StageResultGenPoll)
	return nil
}

// runResultGenPoll polls every uploaded chunk until each reaches a terminal
// status. A terminal failure aborts the run (spec.md §7). Once every
// uploaded chunk is completed, the stage routes back to RESULT_GEN_UPLOAD if
// pending chunks remain (budget was exhausted on a previous day), or forward
// to RESULT_GEN_PROCESS once nothing is left pending.
func (o *Orchestrator) runResultGenPoll(ctx context.Context, p *trialmodel.Progress, opts RunOptions) error {
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 60 * time.Second
	}
	rd := &p.BatchJobs.ResultDetection

	for {
		allSettled := true
		for i := range rd.Chunks {
			c := &rd.Chunks[i]
			if !trialmodel.NonTerminalPollStatuses[c.Status] {
				continue
			}
			status, err := o.BatchLLM.RetrieveBatch(ctx, c.BatchId)
			if err != nil {
				return err
			}
			if trialmodel.BatchJobStatus(status.Status).IsTerminalFailure() {
				return &trialerr.BatchTerminalFailureError{ChunkIndex: c.Index, BatchId: c.BatchId, Status: status.Status}
			}
			c.Status = trialmodel.ChunkStatus(status.Status)
			if c.Status != trialmodel.ChunkCompleted {
				allSettled = false
				continue
			}
			c.OutputFileId = status.OutputFileID
			now := time.Now()
			c.CompletedAt = &now
		}
		if allSettled {
			break
		}
		obslog.Logger().Info().Dur("poll_interval", poll).Msg("result_gen_poll_waiting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}

	anyPending := false
	for _, c := range rd.Chunks {
		if c.Status == trialmodel.ChunkPending {
			anyPending = true
			break
		}
	}
	if anyPending {
		advance(p, trialmodel.StageResultGenUpload)
	} else {
		advance(p, trialmodel.StageResultGenProcess)
	}
	return nil
}

// runResultGenProcess downloads, parses, and persists every completed
// chunk's classifications (spec.md §4.8 RESULT_GEN_PROCESS). A chunk already
// marked processed (resume case) is skipped.
func (o *Orchestrator) runResultGenProcess(ctx context.Context, p *trialmodel.Progress) error {
	rd := &p.BatchJobs.ResultDetection

	for i := range rd.Chunks {
		c := &rd.Chunks[i]
		if c.Status != trialmodel.ChunkCompleted {
			continue
		}

		results, err := o.BatchLLM.DownloadBatchResults(ctx, c.OutputFileId)
		if err != nil {
			return err
		}
		for _, r := range results {
			trialId, pmid, verdict := classifier.ParseBatchResult(r)
			if trialId == "" {
				obslog.Logger().Warn().Str("custom_id", r.CustomID).Msg("result_gen_process_malformed_custom_id")
				continue
			}
			class := classifier.ToClassification(trialId, pmid, verdict)
			if err := o.ClassStore.Put(ctx, class); err != nil {
				return err
			}
		}

		now := time.Now()
		c.ProcessedAt = &now
		c.Status = trialmodel.ChunkProcessed
	}

	advance(p, trialmodel.StageFinalize)
	return nil
}
