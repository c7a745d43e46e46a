package batch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/config"
	"manifold/internal/llmclient"
	"manifold/internal/store"
	"manifold/internal/trialmodel"
)

// recordingBatchProvider wraps fakeBatchProvider but lets a test force a
// specific RetrieveBatch status sequence, for exercising
// runQueryGenPoll's terminal-failure-abort path.
type recordingBatchProvider struct {
	fakeBatchProvider
	statuses []string
	calls    int
}

func (f *recordingBatchProvider) RetrieveBatch(ctx context.Context, batchID string) (llmclient.BatchStatus, error) {
	status := f.statuses[f.calls]
	if f.calls < len(f.statuses)-1 {
		f.calls++
	}
	return llmclient.BatchStatus{ID: batchID, Status: status, OutputFileID: "out-x"}, nil
}

func TestRunQueryGenUploadSubmitsOneJobPerEnabledStrategy(t *testing.T) {
	fake := &fakeBatchProvider{}
	o := &Orchestrator{
		Cfg: &config.Config{Batch: config.BatchConfig{Strategies: []string{"pubmed_gpt_v1", "pubmed_gpt_v2"}}},
		BatchLLM: fake,
	}
	p := trialmodel.NewProgress("in.csv", store.Clock())
	p.Registrations["NCT1"] = trialmodel.Registration{TrialId: "NCT1"}

	require.NoError(t, o.runQueryGenUpload(context.Background(), p))
	require.Equal(t, trialmodel.StageQueryGenPoll, p.Stage)
	require.NotNil(t, p.BatchJobs.QueryGenV1)
	require.NotNil(t, p.BatchJobs.QueryGenV2)
	require.Equal(t, 2, fake.uploadCalls)
}

func TestRunQueryGenUploadLeavesAlreadySubmittedJobUntouched(t *testing.T) {
	fake := &fakeBatchProvider{}
	o := &Orchestrator{
		Cfg: &config.Config{Batch: config.BatchConfig{Strategies: []string{"pubmed_gpt_v1"}}},
		BatchLLM: fake,
	}
	p := trialmodel.NewProgress("in.csv", store.Clock())
	p.Registrations["NCT1"] = trialmodel.Registration{TrialId: "NCT1"}
	p.BatchJobs.QueryGenV1 = &trialmodel.QueryGenJob{ID: "already-there", Status: trialmodel.BatchInProgress}

	require.NoError(t, o.runQueryGenUpload(context.Background(), p))
	require.Equal(t, "already-there", p.BatchJobs.QueryGenV1.ID)
	require.Equal(t, 0, fake.uploadCalls)
}

func TestRunQueryGenUploadPersistsFirstJobBeforeSecondSubmission(t *testing.T) {
	fake := &failingSecondCreateBatchProvider{}
	progressPath := t.TempDir() + "/progress.json"
	progressStore := store.NewProgressStore(progressPath)
	o := &Orchestrator{
		Cfg:      &config.Config{Batch: config.BatchConfig{Strategies: []string{"pubmed_gpt_v1", "pubmed_gpt_v2"}}},
		BatchLLM: fake,
		Progress: progressStore,
	}
	p := trialmodel.NewProgress("in.csv", store.Clock())
	p.Registrations["NCT1"] = trialmodel.Registration{TrialId: "NCT1"}

	err := o.runQueryGenUpload(context.Background(), p)
	require.Error(t, err)
	require.Contains(t, err.Error(), "simulated crash")

	reloaded, found, loadErr := progressStore.Load()
	require.NoError(t, loadErr)
	require.True(t, found)
	require.NotNil(t, reloaded.BatchJobs.QueryGenV1)
	require.Equal(t, "batch-x", reloaded.BatchJobs.QueryGenV1.ID)
	require.Nil(t, reloaded.BatchJobs.QueryGenV2)
}

func TestRunQueryGenPollAbortsOnTerminalFailure(t *testing.T) {
	fake := &recordingBatchProvider{statuses: []string{"failed"}}
	o := &Orchestrator{BatchLLM: fake}
	p := trialmodel.NewProgress("in.csv", store.Clock())
	p.BatchJobs.QueryGenV1 = &trialmodel.QueryGenJob{ID: "b1", Status: trialmodel.BatchInProgress}

	err := o.runQueryGenPoll(context.Background(), p, RunOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "b1")
}

func TestRunQueryGenPollAdvancesOnceAllJobsComplete(t *testing.T) {
	fake := &recordingBatchProvider{statuses: []string{"completed"}}
	o := &Orchestrator{BatchLLM: fake}
	p := trialmodel.NewProgress("in.csv", store.Clock())
	p.BatchJobs.QueryGenV1 = &trialmodel.QueryGenJob{ID: "b1", Status: trialmodel.BatchInProgress}

	require.NoError(t, o.runQueryGenPoll(context.Background(), p, RunOptions{}))
	require.Equal(t, trialmodel.StageQueryGenProcess, p.Stage)
	require.Equal(t, "out-x", p.BatchJobs.QueryGenV1.OutputFileId)
}

func TestRunQueryGenProcessStoresRawResultsPerTrial(t *testing.T) {
	fake := &fakeBatchProviderWithResults{
		results: []llmclient.BatchResult{
			{CustomID: "NCT1", RawJSON: `{"query":"x"}`},
			{CustomID: "NCT2", Error: "boom"},
		},
	}
	o := &Orchestrator{BatchLLM: fake}
	p := trialmodel.NewProgress("in.csv", store.Clock())
	p.BatchJobs.QueryGenV1 = &trialmodel.QueryGenJob{ID: "b1", Status: trialmodel.BatchCompleted, OutputFileId: "out-x"}

	require.NoError(t, o.runQueryGenProcess(context.Background(), p))
	require.Equal(t, trialmodel.StagePubDiscovery, p.Stage)
	require.Equal(t, `{"query":"x"}`, p.QueryResults["NCT1"].V1Raw)
	require.Empty(t, p.QueryResults["NCT2"].V1Raw)
}

type fakeBatchProviderWithResults struct {
	fakeBatchProvider
	results []llmclient.BatchResult
}

func (f *fakeBatchProviderWithResults) DownloadBatchResults(ctx context.Context, outputFileID string) ([]llmclient.BatchResult, error) {
	return f.results, nil
}
