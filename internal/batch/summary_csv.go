package batch

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// summaryColumns is the fixed, mandated column order of spec.md §6.
var summaryColumns = []string{
	"nct_id", "trial_id", "tool_results", "has_error",
	"tool_prompted_pmids", "tool_result_pmids", "tool_ident_steps",
	"earliest_result_publication", "earliest_result_publication_date",
	"failed_publication_discoveries", "failed_result_discoveries", "reasons",
}

// writeSummaryCSV writes the run's aggregate output table. encoding/csv is
// used directly rather than through a third-party wrapper: there is no
// tabular-output dependency anywhere in the stack, and the stdlib writer
// already satisfies every requirement here (quoting, a fixed column order,
// one flush).
func writeSummaryCSV(outputDir string, summaries []TrialSummary) error {
	if outputDir == "" {
		return nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(outputDir, "summary.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(summaryColumns); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for _, s := range summaries {
		record := []string{
			s.NCTId,
			s.TrialId,
			strconv.FormatBool(s.ToolResults),
			strconv.FormatBool(s.HasError),
			strings.Join(s.ToolPromptedPMIDs, ","),
			strings.Join(s.ToolResultPMIDs, ","),
			strings.Join(s.ToolIdentSteps, ","),
			s.EarliestResultPublication,
			s.EarliestResultPublicationDate,
			strconv.Itoa(s.FailedPublicationDiscoveries),
			strconv.Itoa(s.FailedResultDiscoveries),
			strings.Join(s.Reasons, "; "),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write summary row for %s: %w", s.TrialId, err)
		}
	}
	w.Flush()
	return w.Error()
}
