package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.LLM.Provider)
	require.Contains(t, cfg.Batch.Strategies, "linked_at_registration")
	require.Equal(t, 0.9, cfg.Batch.SafetyBuffer)
	require.Equal(t, 30*24*3600, cfg.Cache.TTLFor("linked-at-registration"))
	require.Equal(t, cfg.Cache.TTLDefault, cfg.Cache.TTLFor("unknown-cache-type"))
}

func TestLoadRejectsBadProvider(t *testing.T) {
	os.Clearenv()
	t.Setenv("LLM_PROVIDER", "bogus")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsBadSafetyBuffer(t *testing.T) {
	os.Clearenv()
	t.Setenv("TRIALPUB_SAFETY_BUFFER", "1.5")
	_, err := Load()
	require.Error(t, err)
}

func TestEffectiveMaxBytes(t *testing.T) {
	b := BatchConfig{MaxBytesPerBatch: 1000, SafetyBuffer: 0.9}
	require.Equal(t, 900, b.EffectiveMaxBytes())
}

func TestLoadAppliesYAMLOverlayWhenEnvUnset(t *testing.T) {
	os.Clearenv()
	path := t.TempDir() + "/trialpub.yaml"
	require.NoError(t, os.WriteFile(path, []byte("strategies: [pubmed_naive]\nprompts:\n  results: you are a classifier\n"), 0o644))
	t.Setenv("TRIALPUB_CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"pubmed_naive"}, cfg.Batch.Strategies)
	require.Equal(t, "you are a classifier", cfg.SystemPrompts.Results)
}

func TestLoadEnvOverridesYAMLOverlay(t *testing.T) {
	os.Clearenv()
	path := t.TempDir() + "/trialpub.yaml"
	require.NoError(t, os.WriteFile(path, []byte("strategies: [pubmed_naive]\n"), 0o644))
	t.Setenv("TRIALPUB_CONFIG_FILE", path)
	t.Setenv("TRIALPUB_BATCH_STRATEGIES", "google_scholar")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"google_scholar"}, cfg.Batch.Strategies)
}

func TestLoadMissingYAMLOverlayFileIsNotAnError(t *testing.T) {
	os.Clearenv()
	t.Setenv("TRIALPUB_CONFIG_FILE", "/nonexistent/trialpub.yaml")

	cfg, err := Load()
	require.NoError(t, err)
	require.Contains(t, cfg.Batch.Strategies, "linked_at_registration")
}
