// Package inputfile parses the batch/live drivers' driving dataset
// (spec.md §6): a delimited table with a trial-identifier column matched
// case-insensitively against {nct_id, nctid, trial_id, trialid}, plus an
// optional dataset column used by --validation-run to pick a max-date
// cutoff. encoding/csv is used directly for the same reason as
// internal/batch's summary writer: no third-party tabular-input dependency
// appears anywhere in the pack, and the stdlib reader already handles
// quoting and a configurable delimiter.
package inputfile

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"manifold/internal/batch"
)

var trialIdHeaders = map[string]bool{
	"nct_id": true, "nctid": true, "trial_id": true, "trialid": true,
}

// Read parses path using delimiter (the zero rune selects csv.Reader's
// default, ','). Rows with an empty trial-identifier cell are still
// returned; PREP accounts for them in Progress.SkippedCounts.NoTrialId
// rather than inputfile silently dropping them. A line that is entirely
// blank is skipped by the CSV reader and produces no row.
func Read(path string, delimiter rune) ([]batch.InputRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	if delimiter != 0 {
		r.Comma = delimiter
	}
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read input header: %w", err)
	}

	trialCol, datasetCol := -1, -1
	for i, col := range header {
		name := strings.ToLower(strings.TrimSpace(col))
		switch {
		case trialIdHeaders[name]:
			trialCol = i
		case name == "dataset":
			datasetCol = i
		}
	}
	if trialCol == -1 {
		return nil, fmt.Errorf("input file has no trial id column (expected one of nct_id, nctid, trial_id, trialid)")
	}

	var rows []batch.InputRow
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read input row: %w", err)
		}

		var row batch.InputRow
		if trialCol < len(record) {
			row.TrialId = strings.TrimSpace(record[trialCol])
		}
		if datasetCol != -1 && datasetCol < len(record) {
			row.Dataset = strings.TrimSpace(record[datasetCol])
		}
		rows = append(rows, row)
	}
	return rows, nil
}
