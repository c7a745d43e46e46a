package inputfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadMatchesTrialIdColumnCaseInsensitively(t *testing.T) {
	path := writeTemp(t, "NCT_ID,dataset\nNCT00000001,iv\nNCT00000002,\n")
	rows, err := Read(path, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "NCT00000001", rows[0].TrialId)
	require.Equal(t, "iv", rows[0].Dataset)
	require.Equal(t, "", rows[1].Dataset)
}

func TestReadAcceptsAnyRecognizedHeaderAlias(t *testing.T) {
	path := writeTemp(t, "trialid\nEUCTR2020-000001-99\n")
	rows, err := Read(path, 0)
	require.NoError(t, err)
	require.Equal(t, "EUCTR2020-000001-99", rows[0].TrialId)
}

func TestReadHonorsCustomDelimiter(t *testing.T) {
	path := writeTemp(t, "trial_id;dataset\nNCT00000003;eu\n")
	rows, err := Read(path, ';')
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "NCT00000003", rows[0].TrialId)
	require.Equal(t, "eu", rows[0].Dataset)
}

func TestReadKeepsRowsWithEmptyTrialId(t *testing.T) {
	path := writeTemp(t, "nct_id,dataset\n,iv\nNCT00000004,\n")
	rows, err := Read(path, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "", rows[0].TrialId)
	require.Equal(t, "NCT00000004", rows[1].TrialId)
}

func TestReadRejectsMissingTrialIdColumn(t *testing.T) {
	path := writeTemp(t, "foo,bar\n1,2\n")
	_, err := Read(path, 0)
	require.Error(t, err)
}
