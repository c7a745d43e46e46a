package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"manifold/internal/trialmodel"
)

// sidecarPayload is the full per-trial detail written alongside the summary
// table, for analysts who need more than the flattened CSV row carries
// (spec.md §6: "one JSON sidecar per trial with the full candidate and
// filtered-publication detail").
type sidecarPayload struct {
	TrialId      string                      `json:"trialId"`
	Registration trialmodel.Registration     `json:"registration"`
	Publications trialmodel.PublicationSet   `json:"publications"`
	Summary      TrialSummary                `json:"summary"`
}

// writeSidecar atomically writes one trial's detail JSON file under
// outputDir/sidecars/, following store.ProgressStore's write-temp-then-rename
// pattern so a crash mid-write never corrupts a previously written sidecar.
func writeSidecar(outputDir, trialId string, reg trialmodel.Registration, set trialmodel.PublicationSet, summary TrialSummary) error {
	if outputDir == "" {
		return nil
	}
	dir := filepath.Join(outputDir, "sidecars")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sidecar dir: %w", err)
	}

	payload := sidecarPayload{TrialId: trialId, Registration: reg, Publications: set, Summary: summary}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar for %s: %w", trialId, err)
	}

	path := filepath.Join(dir, trialId+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sidecar tmp file for %s: %w", trialId, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename sidecar tmp file for %s: %w", trialId, err)
	}
	return nil
}
