package dataset

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func readCSV(t *testing.T, b []byte) [][]string {
	t.Helper()
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	recs, err := r.ReadAll()
	require.NoError(t, err)
	return recs
}

func TestWorkbookToCSV(t *testing.T) {
	payload := buildWorkbook(t, [][]interface{}{
		{"Call ID", "Call Transcript", "Account Owner"},
		{"c-1", "We struggle with onboarding", "Dana"},
		{"c-2", "", "Lee"},
		{"c-3", "Pricing is confusing", "Sam"},
	})

	out, rep, err := WorkbookToCSV(payload)
	require.NoError(t, err)
	assert.Equal(t, "Call Transcript", rep.SourceTranscript)
	assert.Equal(t, "Call ID", rep.SourceID)
	assert.Equal(t, 2, rep.Rows)
	assert.Equal(t, 1, rep.Dropped)

	recs := readCSV(t, out)
	assert.Equal(t, []string{"conversation_id", "transcript", "account_owner"}, recs[0])
	assert.Equal(t, []string{"c-1", "We struggle with onboarding", "Dana"}, recs[1])
	assert.Equal(t, []string{"c-3", "Pricing is confusing", "Sam"}, recs[2])
}

func TestWorkbookPrefersExactTranscriptHeader(t *testing.T) {
	payload := buildWorkbook(t, [][]interface{}{
		{"Transcript ID", "transcript_url", "Transcript"},
		{"t-1", "https://calls.example/t-1", "Customers want SSO"},
	})

	out, rep, err := WorkbookToCSV(payload)
	require.NoError(t, err)
	assert.Equal(t, "Transcript", rep.SourceTranscript)

	recs := readCSV(t, out)
	assert.Equal(t, []string{"transcript_id", "transcript_url", "transcript"}, recs[0])
	assert.Equal(t, "Customers want SSO", recs[1][2])
}

func TestDetectColumns(t *testing.T) {
	tr, id := detectColumns([]string{"Transcript ID", "Body", "Transcript"})
	assert.Equal(t, 2, tr)
	assert.Equal(t, -1, id)

	tr, _ = detectColumns([]string{"Call Transcript", "Body"})
	assert.Equal(t, 0, tr)

	tr, _ = detectColumns([]string{"Body", "Notes"})
	assert.Equal(t, 0, tr)

	tr, _ = detectColumns([]string{"Notes"})
	assert.Equal(t, -1, tr)
}

func TestWorkbookFallsBackToTextColumn(t *testing.T) {
	payload := buildWorkbook(t, [][]interface{}{
		{"Date", "Content"},
		{"2024-01-02", "Listens to Acquired every week"},
	})

	out, rep, err := WorkbookToCSV(payload)
	require.NoError(t, err)
	assert.Equal(t, "Content", rep.SourceTranscript)
	recs := readCSV(t, out)
	assert.Equal(t, []string{"date", "transcript"}, recs[0])
}

func TestWorkbookWithoutTranscript(t *testing.T) {
	payload := buildWorkbook(t, [][]interface{}{
		{"Name", "Stage"},
		{"Acme", "Closed Won"},
	})
	_, _, err := WorkbookToCSV(payload)
	assert.ErrorContains(t, err, "no transcript column")
}

func TestWorkbookRejectsGarbage(t *testing.T) {
	_, _, err := WorkbookToCSV([]byte("not a zip"))
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	assert.True(t, IsWorkbook("Export.XLSX"))
	assert.False(t, IsWorkbook("export.csv"))
	assert.Equal(t, "export.csv", CSVName("export.xlsx"))
}
