package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"manifold/internal/classifier"
	"manifold/internal/config"
	"manifold/internal/registry"
	"manifold/internal/store"
	"manifold/internal/trialmodel"
)

func writeLocalRegistration(t *testing.T, dir, trialId string) {
	t.Helper()
	body := []byte(`{
		"protocolSection": {
			"identificationModule": {"nctId": "` + trialId + `", "briefTitle": "A trial"},
			"statusModule": {}
		}
	}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, trialId+".json"), body, 0o644))
}

func newTestOrchestrator(t *testing.T, localDir string) *Orchestrator {
	t.Helper()
	progressPath := filepath.Join(t.TempDir(), "progress.json")
	return &Orchestrator{
		Cfg: &config.Config{Batch: config.BatchConfig{}},
		Registry: &registry.Dispatcher{
			CTGov: registry.NewCTGovAdapter("", localDir),
			EUCTR: registry.NewEUCTRAdapter("", ""),
			DRKS:  registry.NewDRKSAdapter(""),
		},
		RegStore:   store.NewRegistrationStore(store.NewMemoryKV(), 0),
		PubStore:   store.NewPublicationStore(store.NewMemoryKV()),
		ClassStore: store.NewClassificationStore(store.NewMemoryKV()),
		Progress:   store.NewProgressStore(progressPath),
		Classifier: classifier.New("", "model"),
	}
}

func TestRunLiveCompletesWithNoDiscoveryStrategiesConfigured(t *testing.T) {
	localDir := t.TempDir()
	writeLocalRegistration(t, localDir, "NCT00000001")
	o := newTestOrchestrator(t, localDir)
	outputDir := t.TempDir()

	progress, err := o.RunLive(context.Background(),
		"trials.csv",
		[]InputRow{{TrialId: "NCT00000001"}},
		RunOptions{OutputDir: outputDir},
		false,
	)
	require.NoError(t, err)
	require.Equal(t, trialmodel.RowSuccess, progress.Rows["NCT00000001"].Status)

	_, err = os.Stat(filepath.Join(outputDir, "summary.csv"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(outputDir, "sidecars", "NCT00000001.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(outputDir, "cost.json"))
	require.NoError(t, err)
}

func TestRunLiveRetryErrorsClearsPriorRowError(t *testing.T) {
	localDir := t.TempDir()
	writeLocalRegistration(t, localDir, "NCT00000002")
	o := newTestOrchestrator(t, localDir)

	seeded, _, err := o.Progress.Load()
	require.NoError(t, err)
	require.False(t, seeded)

	progress := trialmodel.NewProgress("trials.csv", store.Clock())
	progress.Rows["NCT00000002"] = trialmodel.RowState{Status: trialmodel.RowError, LastErr: "boom"}
	require.NoError(t, o.Progress.Save(progress))

	result, err := o.RunLive(context.Background(),
		"trials.csv",
		[]InputRow{{TrialId: "NCT00000002"}},
		RunOptions{OutputDir: t.TempDir()},
		true,
	)
	require.NoError(t, err)
	require.Equal(t, trialmodel.RowSuccess, result.Rows["NCT00000002"].Status)
}

func TestRunLiveWithoutRetryErrorsLeavesPriorRowErrorUntouched(t *testing.T) {
	localDir := t.TempDir()
	o := newTestOrchestrator(t, localDir)

	progress := trialmodel.NewProgress("trials.csv", store.Clock())
	progress.Rows["NCT00000003"] = trialmodel.RowState{Status: trialmodel.RowError, LastErr: "boom"}
	require.NoError(t, o.Progress.Save(progress))

	result, err := o.RunLive(context.Background(),
		"trials.csv",
		[]InputRow{{TrialId: "NCT00000003"}},
		RunOptions{OutputDir: t.TempDir()},
		false,
	)
	require.NoError(t, err)
	require.Equal(t, trialmodel.RowError, result.Rows["NCT00000003"].Status)
}
